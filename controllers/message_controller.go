package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"privmsg/forms"
	"privmsg/models"
	"privmsg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	inboxURL = "/messages/inbox"

	msgSent      = "Message successfully sent."
	msgDeleted   = "Message successfully deleted."
	msgRecovered = "Message successfully recovered."

	// sendTimeout bounds how long a request waits on notification sinks.
	sendTimeout = 15 * time.Second
)

type MessageController struct {
	db         *gorm.DB
	logger     *logrus.Entry
	notifier   *utils.MultiNotifier
	cache      *utils.UnreadCache
	paginateBy int
	filter     forms.RecipientFilter
}

// NewMessageController wires the message handlers. notifier and cache may be
// nil.
func NewMessageController(db *gorm.DB, logger *logrus.Entry, notifier *utils.MultiNotifier, cache *utils.UnreadCache, paginateBy int) *MessageController {
	if paginateBy <= 0 {
		paginateBy = 25
	}
	return &MessageController{
		db:         db,
		logger:     logger,
		notifier:   notifier,
		cache:      cache,
		paginateBy: paginateBy,
	}
}

// SetRecipientFilter restricts who compose and reply may address.
func (mc *MessageController) SetRecipientFilter(filter forms.RecipientFilter) {
	mc.filter = filter
}

type bulkTrashRequest struct {
	IDs []uint `json:"ids" form:"ids" validate:"required,min=1"`
}

func (mc *MessageController) Inbox(c *fiber.Ctx) error {
	return mc.list(c, models.Inbox(mc.db))
}

func (mc *MessageController) Outbox(c *fiber.Ctx) error {
	return mc.list(c, models.Outbox(mc.db))
}

func (mc *MessageController) Trash(c *fiber.Ctx) error {
	return mc.list(c, models.Trash(mc.db))
}

func (mc *MessageController) list(c *fiber.Ctx, box models.Box) error {
	user := c.Locals("user").(*models.User)
	page, limit := utils.Pagination(c, mc.paginateBy)

	var total int64
	if err := box.ForUser(user.ID).Count(&total).Error; err != nil {
		utils.LogError("message_list_count", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", nil)
	}

	var messages []models.Message
	err := box.ForUser(user.ID).
		Preload("Sender").
		Preload("Recipient").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		utils.LogError("message_list", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", nil)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  messages,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// ComposeForm returns the initial compose data. The optional recipient
// parameter holds one or more usernames joined with "+".
func (mc *MessageController) ComposeForm(c *fiber.Ctx) error {
	var names []string
	if raw := c.Params("recipient"); raw != "" {
		names = strings.Split(raw, "+")
	}
	return c.JSON(fiber.Map{
		"form": forms.InitialCompose(names),
	})
}

func (mc *MessageController) Compose(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var data forms.MessageData
	if err := c.BodyParser(&data); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	form := forms.NewComposeForm(user, data, forms.WithRecipientFilter(mc.filter))
	if err := form.IsValid(mc.db); err != nil {
		return mc.invalid(c, err)
	}

	var (
		instance *models.Message
		copies   []models.Message
	)
	err := mc.db.Transaction(func(tx *gorm.DB) error {
		var err error
		instance, copies, err = form.Save(tx)
		return err
	})
	if err != nil {
		utils.LogError("compose_failed", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send message", nil)
	}

	mc.sent(c, "compose", instance, copies)
	return mc.respond(c, inboxURL, msgSent, fiber.Map{"data": instance})
}

// ReplyForm returns the parent message with a pre-filled reply.
func (mc *MessageController) ReplyForm(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	parent, err := mc.owned(c, user.ID)
	if err != nil {
		return mc.lookupFailed(c, err)
	}

	form := forms.NewReplyForm(user, parent, forms.MessageData{})
	return c.JSON(fiber.Map{
		"parent": parent,
		"form":   form.Initial(),
	})
}

func (mc *MessageController) Reply(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	parent, err := mc.owned(c, user.ID)
	if err != nil {
		return mc.lookupFailed(c, err)
	}

	var data forms.MessageData
	if err := c.BodyParser(&data); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	form := forms.NewReplyForm(user, parent, data, forms.WithRecipientFilter(mc.filter))
	if err := form.IsValid(mc.db); err != nil {
		return mc.invalid(c, err)
	}

	var (
		instance *models.Message
		copies   []models.Message
	)
	err = mc.db.Transaction(func(tx *gorm.DB) error {
		var err error
		instance, copies, err = form.Save(tx)
		return err
	})
	if err != nil {
		utils.LogError("reply_failed", err, map[string]interface{}{
			"user_id":   user.ID,
			"parent_id": parent.ID,
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send reply", nil)
	}

	mc.sent(c, "reply", instance, copies)
	return mc.respond(c, inboxURL, msgSent, fiber.Map{"data": instance})
}

func (mc *MessageController) Delete(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	msg, err := mc.owned(c, user.ID)
	if err != nil {
		return mc.lookupFailed(c, err)
	}

	// Already trashed rows keep their deleted_at so the purge clock is not reset
	if !msg.Deleted {
		msg.MoveToTrash()
		if err := mc.db.Model(msg).Updates(trashState(msg)).Error; err != nil {
			utils.LogError("message_delete", err, map[string]interface{}{"message_id": msg.ID})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete message", nil)
		}
		utils.MessagesTrashed.Inc()
		mc.cache.Invalidate(c.UserContext(), user.ID)
	}

	return mc.respond(c, inboxURL, msgDeleted, nil)
}

func (mc *MessageController) Undelete(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	msg, err := mc.owned(c, user.ID)
	if err != nil {
		return mc.lookupFailed(c, err)
	}

	msg.Undelete()
	if err := mc.db.Model(msg).Updates(trashState(msg)).Error; err != nil {
		utils.LogError("message_undelete", err, map[string]interface{}{"message_id": msg.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to recover message", nil)
	}
	mc.cache.Invalidate(c.UserContext(), user.ID)

	return mc.respond(c, inboxURL, msgRecovered, nil)
}

// BulkTrash moves several of the user's messages to the trash at once.
// Unknown or foreign ids are ignored.
func (mc *MessageController) BulkTrash(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req bulkTrashRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
	}

	n, err := models.TrashMessages(mc.db.Model(&models.Message{}).
		Where("owner_id = ? AND deleted = ? AND id IN ?", user.ID, false, req.IDs))
	if err != nil {
		utils.LogError("message_bulk_trash", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete messages", nil)
	}
	utils.MessagesTrashed.Add(float64(n))
	mc.cache.Invalidate(c.UserContext(), user.ID)

	return mc.respond(c, inboxURL, msgDeleted, fiber.Map{"trashed": n})
}

// View shows one of the user's messages and marks it read.
func (mc *MessageController) View(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	msg, err := mc.owned(c, user.ID)
	if err != nil {
		return mc.lookupFailed(c, err)
	}

	if msg.Unread {
		msg.MarkRead()
		if err := mc.db.Model(msg).Updates(readState(msg)).Error; err != nil {
			utils.LogError("message_mark_read", err, map[string]interface{}{"message_id": msg.ID})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update message", nil)
		}
		mc.cache.Invalidate(c.UserContext(), user.ID)
	}

	return c.JSON(fiber.Map{
		"data":       msg,
		"recipients": msg.Recipients(),
		"replied":    msg.Replied(),
	})
}

func (mc *MessageController) MarkUnread(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	msg, err := mc.owned(c, user.ID)
	if err != nil {
		return mc.lookupFailed(c, err)
	}

	msg.MarkUnread()
	if err := mc.db.Model(msg).Updates(readState(msg)).Error; err != nil {
		utils.LogError("message_mark_unread", err, map[string]interface{}{"message_id": msg.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update message", nil)
	}
	mc.cache.Invalidate(c.UserContext(), user.ID)

	return mc.respond(c, inboxURL, "", fiber.Map{"data": msg})
}

// UnreadCount reports the number of unread inbox messages.
func (mc *MessageController) UnreadCount(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	ctx := c.UserContext()

	if n, ok := mc.cache.Get(ctx, user.ID); ok {
		return c.JSON(fiber.Map{"unread": n})
	}

	n, err := models.InboxCountFor(mc.db, user.ID)
	if err != nil {
		utils.LogError("unread_count", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count messages", nil)
	}
	mc.cache.Set(ctx, user.ID, n)

	return c.JSON(fiber.Map{"unread": n})
}

// owned loads the message named by the id parameter when it belongs to
// userID. Any other id yields gorm.ErrRecordNotFound.
func (mc *MessageController) owned(c *fiber.Ctx, userID uint) (*models.Message, error) {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var msg models.Message
	err := mc.db.Preload("Sender").Preload("Recipient").
		Where("id = ? AND owner_id = ?", id, userID).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (mc *MessageController) lookupFailed(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Message not found", nil)
	}
	utils.LogError("message_lookup", err, map[string]interface{}{"id": c.Params("id")})
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch message", nil)
}

func (mc *MessageController) invalid(c *fiber.Ctx, err error) error {
	var fe utils.FieldErrors
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid message", fe)
	}
	utils.LogError("message_validation", err, nil)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to validate message", nil)
}

// sent runs the post-commit side effects of a send. Notification failures
// are logged by the notifier and never fail the request.
func (mc *MessageController) sent(c *fiber.Ctx, kind string, instance *models.Message, copies []models.Message) {
	utils.RecordSend(kind, len(copies)+1)

	ids := make([]uint, 0, len(copies))
	for _, m := range copies {
		ids = append(ids, m.OwnerID)
	}
	mc.cache.Invalidate(c.UserContext(), ids...)

	mc.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"message_id": instance.ID,
		"thread":     *instance.Thread,
		"recipients": len(copies),
	}).Info("Message sent")

	if mc.notifier != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), sendTimeout)
		defer cancel()
		_ = mc.notifier.NotifyRecipients(ctx, copies)
	}
}

// respond finishes a state-changing request. Form posts are redirected to
// next, or fallback when next is not a local path. Other requests get the
// target back as JSON.
func (mc *MessageController) respond(c *fiber.Ctx, fallback, message string, extra fiber.Map) error {
	target := utils.SafeRedirect(nextParam(c), fallback)

	if isFormPost(c) {
		return c.Redirect(target, fiber.StatusSeeOther)
	}

	body := fiber.Map{
		"success":  true,
		"redirect": target,
	}
	if message != "" {
		body["message"] = message
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(body)
}

func nextParam(c *fiber.Ctx) string {
	if next := c.Query("next"); next != "" {
		return next
	}
	if isFormPost(c) {
		return c.FormValue("next")
	}
	if len(c.Body()) > 0 && strings.HasPrefix(contentType(c), fiber.MIMEApplicationJSON) {
		var body struct {
			Next string `json:"next"`
		}
		if err := c.BodyParser(&body); err == nil {
			return body.Next
		}
	}
	return ""
}

func trashState(msg *models.Message) map[string]interface{} {
	return map[string]interface{}{"deleted": msg.Deleted, "deleted_at": msg.DeletedAt}
}

func readState(msg *models.Message) map[string]interface{} {
	return map[string]interface{}{"unread": msg.Unread, "read_at": msg.ReadAt}
}

func isFormPost(c *fiber.Ctx) bool {
	ct := contentType(c)
	return strings.HasPrefix(ct, fiber.MIMEApplicationForm) || strings.HasPrefix(ct, fiber.MIMEMultipartForm)
}

func contentType(c *fiber.Ctx) string {
	return strings.ToLower(string(c.Request().Header.ContentType()))
}
