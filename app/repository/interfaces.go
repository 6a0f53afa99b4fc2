package repository

import (
	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	GetStatsByUserID(userID uint) (*UserStats, error)
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	GetByUserID(userID uint, offset, limit int) ([]models.Notification, error)
	CountUnread(userID uint) (int64, error)
	MarkRead(id, userID uint) error
	MarkAllRead(userID uint) error
}

// UserStats provides aggregated billing counts for a single user.
type UserStats struct {
	PaymentCount   int64
	TotalPaidMinor int64
	CurrentPlan    string
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Notification NotificationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
