package repository

import (
	"fmt"
	"strings"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an active API key hash to its user and user settings.
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, nil, gorm.ErrRecordNotFound
	}
	var settings models.UserSettings
	query := r.db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed)
	if err := query.First(&settings).Error; err != nil {
		return nil, nil, err
	}
	var user models.User
	if err := r.db.First(&user, settings.UserID).Error; err != nil {
		return nil, nil, err
	}
	return &user, &settings, nil
}

// GetStatsByUserID returns aggregate billing statistics for the given user.
func (r *userRepository) GetStatsByUserID(userID uint) (*UserStats, error) {
	var stats UserStats

	err := r.db.Model(&models.Payment{}).
		Where("user_id = ?", userID).
		Count(&stats.PaymentCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	err = r.db.Model(&models.Payment{}).
		Where("user_id = ? AND status = ?", userID, models.PaymentStatusSuccess).
		Select("COALESCE(SUM(amount_minor), 0)").Row().Scan(&stats.TotalPaidMinor)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}

	stats.CurrentPlan = string(billing.PlanFree)
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&sub).Error; err == nil {
		stats.CurrentPlan = sub.Plan
	}

	return &stats, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// Delete soft deletes a user by their ID
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}
