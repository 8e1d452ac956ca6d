package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// settingsRowID is the fixed primary key of the singleton settings row.
const settingsRowID = 1

// SettingsRepository manages the singleton application settings record.
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a SettingsRepository.
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored settings merged over the defaults. A missing row
// yields the defaults unchanged.
func (r *SettingsRepository) Get(ctx context.Context) (*domain.AppSettings, error) {
	settings := domain.DefaultSettings()

	var model SettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}

	// Unmarshal over the defaults so fields absent from the stored record
	// keep their default value.
	if len(model.Data) > 0 {
		if err := json.Unmarshal(model.Data, &settings); err != nil {
			return nil, fmt.Errorf("decoding settings: %w", err)
		}
	}
	return &settings, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s *domain.AppSettings) (*domain.AppSettings, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	model := SettingsModel{ID: settingsRowID, Data: JSONB(data)}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return nil, fmt.Errorf("saving settings: %w", err)
	}
	saved := *s
	return &saved, nil
}
