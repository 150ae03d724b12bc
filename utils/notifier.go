package utils

import (
	"context"
	"errors"
	"time"

	"privmsg/models"

	"github.com/sirupsen/logrus"
)

const (
	LabelMessageReceived = "messages_received"
	LabelReplyReceived   = "messages_reply_received"
)

// Notification tells a recipient that a copy landed in their inbox.
type Notification struct {
	Label   string          `json:"label"`
	Message *models.Message `json:"message"`
}

// NewNotification picks the label from whether msg answers an earlier message.
func NewNotification(msg *models.Message) Notification {
	label := LabelMessageReceived
	if msg.IsReply() {
		label = LabelReplyReceived
	}
	return Notification{Label: label, Message: msg}
}

// Notifier is one delivery channel for notifications.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// MultiNotifier fans a notification out to every registered sink. A failing
// sink is logged and reported but does not stop the others.
type MultiNotifier struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *logrus.Entry
}

func NewMultiNotifier(logger *logrus.Entry, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		timeout:   10 * time.Second,
		logger:    logger,
	}
}

func (m *MultiNotifier) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *MultiNotifier) Name() string {
	return "multi"
}

func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m.notifiers {
		sctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := sink.Notify(sctx, n)
		cancel()

		RecordNotification(sink.Name(), err)
		if err != nil {
			LogError("notification_failed", err, map[string]interface{}{
				"sink":       sink.Name(),
				"label":      n.Label,
				"message_id": n.Message.ID,
			})
			errs = append(errs, err)
			continue
		}
		m.logger.WithFields(logrus.Fields{
			"sink":       sink.Name(),
			"label":      n.Label,
			"message_id": n.Message.ID,
		}).Debug("Notification delivered")
	}
	return errors.Join(errs...)
}

// NotifyRecipients sends one notification per recipient copy.
func (m *MultiNotifier) NotifyRecipients(ctx context.Context, copies []models.Message) error {
	var errs []error
	for i := range copies {
		if err := m.Notify(ctx, NewNotification(&copies[i])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
