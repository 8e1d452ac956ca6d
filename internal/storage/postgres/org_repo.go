package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// DivisionRepository manages division records.
type DivisionRepository struct {
	db *gorm.DB
}

// NewDivisionRepository creates a DivisionRepository.
func NewDivisionRepository(db *gorm.DB) *DivisionRepository {
	return &DivisionRepository{db: db}
}

func (r *DivisionRepository) List(ctx context.Context) ([]domain.Division, error) {
	var models []DivisionModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing divisions: %w", err)
	}
	divisions := make([]domain.Division, 0, len(models))
	for i := range models {
		divisions = append(divisions, *toDivisionDomain(&models[i]))
	}
	return divisions, nil
}

func (r *DivisionRepository) Create(ctx context.Context, d *domain.Division) (*domain.Division, error) {
	model := toDivisionModel(d)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating division %q: %w", d.Name, err)
	}
	return toDivisionDomain(&model), nil
}

func (r *DivisionRepository) Update(ctx context.Context, d *domain.Division) (*domain.Division, error) {
	model := toDivisionModel(d)
	res := r.db.WithContext(ctx).Model(&DivisionModel{}).Where("id = ?", d.ID).
		Select("Name", "Code").
		Updates(&model)
	if res.Error != nil {
		return nil, fmt.Errorf("updating division %s: %w", d.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating division %s: %w", d.ID, gorm.ErrRecordNotFound)
	}
	var saved DivisionModel
	if err := r.db.WithContext(ctx).First(&saved, "id = ?", d.ID).Error; err != nil {
		return nil, fmt.Errorf("reloading division %s: %w", d.ID, err)
	}
	return toDivisionDomain(&saved), nil
}

func (r *DivisionRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&DivisionModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting division %s: %w", id, err)
	}
	return nil
}

// UnitRepository manages unit records.
type UnitRepository struct {
	db *gorm.DB
}

// NewUnitRepository creates a UnitRepository.
func NewUnitRepository(db *gorm.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) List(ctx context.Context) ([]domain.Unit, error) {
	var models []UnitModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	units := make([]domain.Unit, 0, len(models))
	for i := range models {
		units = append(units, *toUnitDomain(&models[i]))
	}
	return units, nil
}

func (r *UnitRepository) Create(ctx context.Context, u *domain.Unit) (*domain.Unit, error) {
	model := toUnitModel(u)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating unit %q: %w", u.Name, err)
	}
	return toUnitDomain(&model), nil
}

func (r *UnitRepository) Update(ctx context.Context, u *domain.Unit) (*domain.Unit, error) {
	model := toUnitModel(u)
	res := r.db.WithContext(ctx).Model(&UnitModel{}).Where("id = ?", u.ID).
		Select("Name", "Code", "DivisionID").
		Updates(&model)
	if res.Error != nil {
		return nil, fmt.Errorf("updating unit %s: %w", u.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating unit %s: %w", u.ID, gorm.ErrRecordNotFound)
	}
	var saved UnitModel
	if err := r.db.WithContext(ctx).First(&saved, "id = ?", u.ID).Error; err != nil {
		return nil, fmt.Errorf("reloading unit %s: %w", u.ID, err)
	}
	return toUnitDomain(&saved), nil
}

func (r *UnitRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&UnitModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting unit %s: %w", id, err)
	}
	return nil
}
