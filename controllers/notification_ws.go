package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"privmsg/models"
	"privmsg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type wsConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// client serializes writes to one socket.
type client struct {
	mu   sync.Mutex
	conn wsConn
}

func (cl *client) write(v interface{}) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn.WriteJSON(v)
}

// Hub pushes notifications to the open websocket connections of each
// recipient. It is a notification sink.
type Hub struct {
	mu     sync.Mutex
	conns  map[uint]map[wsConn]*client
	logger *logrus.Entry
}

func NewHub(logger *logrus.Entry) *Hub {
	return &Hub{
		conns:  make(map[uint]map[wsConn]*client),
		logger: logger,
	}
}

func (h *Hub) Name() string {
	return "websocket"
}

func (h *Hub) register(userID uint, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[wsConn]*client)
	}
	h.conns[userID][conn] = &client{conn: conn}
}

func (h *Hub) unregister(userID uint, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.conns[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Connections returns how many sockets userID has open.
func (h *Hub) Connections(userID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

func (h *Hub) clients(userID uint) []*client {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*client, 0, len(h.conns[userID]))
	for _, cl := range h.conns[userID] {
		out = append(out, cl)
	}
	return out
}

// Notify writes n to every connection of the message owner. Writes happen
// outside the hub lock. Connections that fail to accept the write are closed
// and dropped.
func (h *Hub) Notify(ctx context.Context, n utils.Notification) error {
	if n.Message == nil || n.Message.RecipientID == nil {
		return nil
	}
	userID := *n.Message.RecipientID

	var errs []error
	for _, cl := range h.clients(userID) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cl.write(n); err != nil {
			errs = append(errs, fmt.Errorf("websocket write for user %d: %w", userID, err))
			cl.conn.Close()
			h.unregister(userID, cl.conn)
		}
	}
	return errors.Join(errs...)
}

// Upgrade only lets websocket handshakes through.
func (h *Hub) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler keeps the socket registered until the client goes away. Incoming
// frames are discarded.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user := conn.Locals("user").(*models.User)

		h.register(user.ID, conn)
		h.logger.WithField("user_id", user.ID).Debug("Websocket connected")
		defer func() {
			h.unregister(user.ID, conn)
			conn.Close()
			h.logger.WithField("user_id", user.ID).Debug("Websocket disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
