package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"privmsg/models"
	"privmsg/utils"

	"github.com/adhocore/gronx"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PurgeWorker hard-deletes sends that every participant has trashed. A send
// is the group of rows sharing thread, sender and sent_at; it is removed once
// all its rows are deleted and the newest deletion is older than After.
type PurgeWorker struct {
	DB       *gorm.DB
	Schedule string
	After    time.Duration
	Logger   *logrus.Entry

	mu      sync.Mutex
	running bool
	now     func() time.Time
}

func NewPurgeWorker(db *gorm.DB, schedule string, after time.Duration, logger *logrus.Entry) *PurgeWorker {
	return &PurgeWorker{
		DB:       db,
		Schedule: schedule,
		After:    after,
		Logger:   logger,
		now:      time.Now,
	}
}

// Start runs the purge on every tick of Schedule until ctx is cancelled.
func (pw *PurgeWorker) Start(ctx context.Context) {
	pw.Logger.WithField("cron", pw.Schedule).Info("Purge worker started")

	for {
		next, err := gronx.NextTickAfter(pw.Schedule, pw.now(), false)
		if err != nil {
			pw.Logger.WithError(err).Error("Failed to compute next purge run")
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			pw.runJob(ctx)
		case <-ctx.Done():
			pw.Logger.Info("Purge worker shutting down...")
			return
		}
	}
}

func (pw *PurgeWorker) runJob(ctx context.Context) {
	pw.mu.Lock()
	if pw.running {
		pw.mu.Unlock()
		return
	}
	pw.running = true
	pw.mu.Unlock()

	defer func() {
		pw.mu.Lock()
		pw.running = false
		pw.mu.Unlock()
	}()

	if _, err := pw.RunOnce(ctx); err != nil {
		utils.LogError("purge_failed", err, map[string]interface{}{"cron": pw.Schedule})
	}
}

// RunOnce purges every eligible send and returns the number of rows removed.
func (pw *PurgeWorker) RunOnce(ctx context.Context) (int64, error) {
	cutoff := pw.now().Add(-pw.After)
	var purged int64

	err := pw.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups := tx.Model(&models.Message{}).
			Select("thread, sender_id, sent_at").
			Where("thread IS NOT NULL AND sent_at IS NOT NULL").
			Group("thread, sender_id, sent_at").
			Having("SUM(CASE WHEN deleted THEN 0 ELSE 1 END) = 0 AND MAX(deleted_at) < ?", cutoff)

		res := tx.Where("(thread, sender_id, sent_at) IN (?)", groups).Delete(&models.Message{})
		if res.Error != nil {
			return fmt.Errorf("failed to purge sends: %w", res.Error)
		}
		purged += res.RowsAffected

		// Rows written before threading have no group to wait for.
		res = tx.Where("thread IS NULL AND deleted = ? AND deleted_at < ?", true, cutoff).Delete(&models.Message{})
		if res.Error != nil {
			return fmt.Errorf("failed to purge unthreaded messages: %w", res.Error)
		}
		purged += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	utils.MessagesPurged.Add(float64(purged))
	pw.Logger.WithFields(logrus.Fields{
		"purged": purged,
		"cutoff": cutoff,
	}).Info("Purge completed")

	return purged, nil
}
