package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// BudgetEntryRepository manages budget entry records.
type BudgetEntryRepository struct {
	db *gorm.DB
}

// NewBudgetEntryRepository creates a BudgetEntryRepository.
func NewBudgetEntryRepository(db *gorm.DB) *BudgetEntryRepository {
	return &BudgetEntryRepository{db: db}
}

func (r *BudgetEntryRepository) List(ctx context.Context) ([]domain.BudgetEntry, error) {
	var models []BudgetEntryModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing budget entries: %w", err)
	}
	entries := make([]domain.BudgetEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *toBudgetEntryDomain(&models[i]))
	}
	return entries, nil
}

func (r *BudgetEntryRepository) Create(ctx context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error) {
	model := toBudgetEntryModel(e)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating budget entry: %w", err)
	}
	return toBudgetEntryDomain(&model), nil
}

func (r *BudgetEntryRepository) Update(ctx context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error) {
	model := toBudgetEntryModel(e)
	res := r.db.WithContext(ctx).Model(&BudgetEntryModel{}).Where("id = ?", e.ID).
		Select("ProjectID", "UnitID", "DivisionID", "BudgetCodeID", "Description",
			"Amount", "Type", "Category", "Date").
		Updates(&model)
	if res.Error != nil {
		return nil, fmt.Errorf("updating budget entry %s: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating budget entry %s: %w", e.ID, gorm.ErrRecordNotFound)
	}
	var saved BudgetEntryModel
	if err := r.db.WithContext(ctx).First(&saved, "id = ?", e.ID).Error; err != nil {
		return nil, fmt.Errorf("reloading budget entry %s: %w", e.ID, err)
	}
	return toBudgetEntryDomain(&saved), nil
}

func (r *BudgetEntryRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&BudgetEntryModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting budget entry %s: %w", id, err)
	}
	return nil
}

// BudgetCodeRepository manages budget code records.
type BudgetCodeRepository struct {
	db *gorm.DB
}

// NewBudgetCodeRepository creates a BudgetCodeRepository.
func NewBudgetCodeRepository(db *gorm.DB) *BudgetCodeRepository {
	return &BudgetCodeRepository{db: db}
}

func (r *BudgetCodeRepository) List(ctx context.Context) ([]domain.BudgetCode, error) {
	var models []BudgetCodeModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing budget codes: %w", err)
	}
	codes := make([]domain.BudgetCode, 0, len(models))
	for i := range models {
		codes = append(codes, *toBudgetCodeDomain(&models[i]))
	}
	return codes, nil
}

func (r *BudgetCodeRepository) Create(ctx context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error) {
	model := toBudgetCodeModel(c)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating budget code %q: %w", c.Code, err)
	}
	return toBudgetCodeDomain(&model), nil
}

func (r *BudgetCodeRepository) Update(ctx context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error) {
	model := toBudgetCodeModel(c)
	model.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&BudgetCodeModel{}).Where("id = ?", c.ID).
		Select("Code", "Name", "Description", "Budget", "Spent", "IsActive", "UpdatedAt").
		Updates(&model)
	if res.Error != nil {
		return nil, fmt.Errorf("updating budget code %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating budget code %s: %w", c.ID, gorm.ErrRecordNotFound)
	}
	var saved BudgetCodeModel
	if err := r.db.WithContext(ctx).First(&saved, "id = ?", c.ID).Error; err != nil {
		return nil, fmt.Errorf("reloading budget code %s: %w", c.ID, err)
	}
	return toBudgetCodeDomain(&saved), nil
}

func (r *BudgetCodeRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&BudgetCodeModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting budget code %s: %w", id, err)
	}
	return nil
}
