package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"privmsg/middleware"
	"privmsg/models"
	"privmsg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type recordingSink struct {
	mu  sync.Mutex
	got []utils.Notification
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Notify(ctx context.Context, n utils.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

type testEnv struct {
	db    *gorm.DB
	app   *fiber.App
	sink  *recordingSink
	users map[string]models.User
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Message{}))

	env := &testEnv{
		db:    db,
		sink:  &recordingSink{},
		users: make(map[string]models.User),
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := models.User{Username: name, Email: name + "@example.com"}
		require.NoError(t, db.Create(&u).Error)
		env.users[name] = u
	}

	notifier := utils.NewMultiNotifier(testLogger(), env.sink)
	mc := NewMessageController(db, testLogger(), notifier, nil, 2)

	app := fiber.New()
	messages := app.Group("/messages", middleware.Protected(db, testSecret))
	limiter := middleware.ComposeRateLimiter(5, nil)

	messages.Get("/inbox", mc.Inbox)
	messages.Get("/outbox", mc.Outbox)
	messages.Get("/trash", mc.Trash)
	messages.Get("/unread-count", mc.UnreadCount)
	messages.Get("/compose", mc.ComposeForm)
	messages.Get("/compose/:recipient", mc.ComposeForm)
	messages.Post("/compose", limiter, mc.Compose)
	messages.Get("/reply/:id", mc.ReplyForm)
	messages.Post("/reply/:id", limiter, mc.Reply)
	messages.Get("/view/:id", mc.View)
	messages.Post("/delete/:id", mc.Delete)
	messages.Post("/undelete/:id", mc.Undelete)
	messages.Post("/unread/:id", mc.MarkUnread)
	messages.Post("/trash", mc.BulkTrash)

	env.app = app
	return env
}

func (e *testEnv) request(t *testing.T, method, path, user, contentType, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		token, err := utils.GenerateJWTToken(e.users[user].ID, testSecret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) getJSON(t *testing.T, path, user string) (int, map[string]interface{}) {
	t.Helper()
	resp := e.request(t, http.MethodGet, path, user, "", "")
	return resp.StatusCode, decode(t, resp)
}

func (e *testEnv) postJSON(t *testing.T, path, user, body string) (int, map[string]interface{}) {
	t.Helper()
	resp := e.request(t, http.MethodPost, path, user, fiber.MIMEApplicationJSON, body)
	return resp.StatusCode, decode(t, resp)
}

func (e *testEnv) postForm(t *testing.T, path, user, body string) *http.Response {
	t.Helper()
	return e.request(t, http.MethodPost, path, user, fiber.MIMEApplicationForm, body)
}

// inboxCopy returns the id of the newest copy of subject owned by user.
func (e *testEnv) copyOf(t *testing.T, user, subject string) models.Message {
	t.Helper()
	var msg models.Message
	require.NoError(t, e.db.Where("owner_id = ? AND subject = ?", e.users[user].ID, subject).
		Order("id DESC").First(&msg).Error)
	return msg
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return nil
	}
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}
