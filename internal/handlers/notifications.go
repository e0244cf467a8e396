package handlers

import (
	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// GetNotifications returns paginated notifications for the current user
func (h *Handler) GetNotifications(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	out, err := h.Notifications.List(c.UserContext(), middleware.GetUserID(c), page, limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", out)
}

// MarkNotificationRead marks a single notification as read
func (h *Handler) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	if err := h.Notifications.MarkRead(c.UserContext(), middleware.GetUserID(c), id); err != nil {
		return fail(c, err)
	}
	return ok(c, "", nil)
}

// MarkAllRead marks all notifications as read for the current user
func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.Notifications.MarkAllRead(c.UserContext(), middleware.GetUserID(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, "", nil)
}
