package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

type registerUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegisterUser creates an account and issues its API key. The raw key is
// returned exactly once; only its hash is stored.
func HandleRegisterUser(c *fiber.Ctx) error {
	var req registerUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Name), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByEmail(user.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken", "message": "An account with this email already exists"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[UserController] email lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	if err := repo.Create(user); err != nil {
		log.Errorf("[UserController] user create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, user.ID)
	if err != nil {
		log.Errorf("[UserController] user settings create failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}
	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		log.Errorf("[UserController] api key generation failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}
	if err := db.Save(settings).Error; err != nil {
		log.Errorf("[UserController] api key persist failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"plan":    settings.Plan,
		"api_key": rawKey,
	})
}

// HandleGetUserAccount returns account and billing information for the
// authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	stats, err := repo.GetStatsByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	svc := billing.NewServiceFromDB(db)
	sub, err := svc.GetSubscription(context.Background(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	response := fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"plan":                 settings.Plan,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":        formatTimePtr(account.LastLoginAt),
		"api_key_last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		"subscription":         subscriptionResponse(sub),
		"stats": fiber.Map{
			"payment_count":    stats.PaymentCount,
			"total_paid_minor": stats.TotalPaidMinor,
		},
	}

	return c.JSON(response)
}
