package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// maxNotifications caps the retained notification feed; older records are
// evicted on insert.
const maxNotifications = 100

// NotificationRepository manages notification records.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a NotificationRepository.
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// List returns notifications newest first.
func (r *NotificationRepository) List(ctx context.Context) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(maxNotifications).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *toNotificationDomain(&models[i]))
	}
	return notifications, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	model := toNotificationModel(n)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	// Eviction is best effort and never fails the insert.
	_ = r.evictOld(ctx)
	return toNotificationDomain(&model), nil
}

// evictOld deletes records beyond the retention cap, oldest first.
func (r *NotificationRepository) evictOld(ctx context.Context) error {
	sub := r.db.Model(&NotificationModel{}).
		Select("id").
		Order("created_at DESC").
		Limit(maxNotifications)
	return r.db.WithContext(ctx).
		Where("id NOT IN (?)", sub).
		Delete(&NotificationModel{}).Error
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("read", true).Error
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("user_id = ?", userID).
		Update("read", true).Error
	if err != nil {
		return fmt.Errorf("marking notifications read for user %s: %w", userID, err)
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&NotificationModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return nil
}

func (r *NotificationRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Delete(&NotificationModel{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("deleting notifications for user %s: %w", userID, err)
	}
	return nil
}
