package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

const notificationPageSize = 50

// HandleListNotifications returns the user's notifications, newest first.
func HandleListNotifications(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	offset := 0
	if page, err := strconv.Atoi(c.Query("page", "1")); err == nil && page > 1 {
		offset = (page - 1) * notificationPageSize
	}

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	notifications, err := repo.GetByUserID(userCtx.UserID, offset, notificationPageSize)
	if err != nil {
		log.Errorf("[NotificationController] list for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load notifications"})
	}
	unread, err := repo.CountUnread(userCtx.UserID)
	if err != nil {
		log.Errorf("[NotificationController] unread count for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load notifications"})
	}

	items := make([]fiber.Map, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, fiber.Map{
			"id":           n.ID,
			"type":         n.Type,
			"content":      n.Content,
			"is_read":      n.IsRead,
			"reference_id": n.ReferenceID,
			"created_at":   n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"notifications": items, "unread_count": unread})
}

// HandleMarkNotificationRead marks one of the user's notifications as read.
func HandleMarkNotificationRead(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid notification id"})
	}

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	if err := repo.MarkRead(uint(id), userCtx.UserID); err != nil {
		log.Errorf("[NotificationController] mark read %d for user %d failed: %v", id, userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update notification"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleMarkAllNotificationsRead marks all of the user's notifications as read.
func HandleMarkAllNotificationsRead(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	if err := repo.MarkAllRead(userCtx.UserID); err != nil {
		log.Errorf("[NotificationController] mark all read for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update notifications"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
