package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// UserRepository manages durable user profiles.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	users := make([]domain.User, 0, len(models))
	for i := range models {
		users = append(users, *toUserDomain(&models[i]))
	}
	return users, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var model UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return toUserDomain(&model), nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	model := toUserModel(u)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating user %q: %w", u.Email, err)
	}
	return toUserDomain(&model), nil
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	model := toUserModel(u)
	res := r.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", u.ID).
		Select("Name", "Role", "Initials", "DivisionID", "UnitID").
		Updates(&model)
	if res.Error != nil {
		return nil, fmt.Errorf("updating user %s: %w", u.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating user %s: %w", u.ID, gorm.ErrRecordNotFound)
	}
	return r.Get(ctx, u.ID)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	return nil
}
