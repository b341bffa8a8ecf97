package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository persists identities and their last known presence.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// EnsureUser inserts a row for a verified principal if none exists.
	EnsureUser(ctx context.Context, principal models.Principal) error
	SetPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error
	ListOnline(ctx context.Context, limit int) ([]uint, error)
}

type userRepository struct {
	db  *gorm.DB
	log *observability.StoreLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewStoreLogger("users")}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) EnsureUser(ctx context.Context, principal models.Principal) error {
	username := principal.Username
	if username == "" {
		username = fmt.Sprintf("user-%d", principal.UserID)
	}
	user := models.User{ID: principal.UserID, Username: username}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		r.log.Failed(ctx, "ensure", err)
		return models.NewInternalError(err)
	}
	return nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

func (r *userRepository) SetPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": lastSeen})
	if res.Error != nil {
		r.log.Failed(ctx, "set_presence", res.Error)
		return models.NewInternalError(res.Error)
	}
	r.log.Done(ctx, "update", "user_id", userID, "online", online)
	return nil
}

func (r *userRepository) ListOnline(ctx context.Context, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
