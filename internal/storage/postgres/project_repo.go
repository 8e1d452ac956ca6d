package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// ProjectRepository manages project records.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a ProjectRepository.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) List(ctx context.Context) ([]domain.Project, error) {
	var models []ProjectModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	projects := make([]domain.Project, 0, len(models))
	for i := range models {
		projects = append(projects, *toProjectDomain(&models[i]))
	}
	return projects, nil
}

func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	model := toProjectModel(p)
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
		return nil, fmt.Errorf("creating project %q: %w", p.Name, err)
	}
	return toProjectDomain(&model), nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	model := toProjectModel(p)
	model.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&ProjectModel{}).Where("id = ?", p.ID).
		Select("Name", "Description", "Status", "Priority", "StartDate", "EndDate",
			"Budget", "Spent", "UnitID", "AssignedUsers", "BudgetCodes", "UpdatedAt").
		Updates(&model)
	if res.Error != nil {
		return nil, fmt.Errorf("updating project %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating project %s: %w", p.ID, gorm.ErrRecordNotFound)
	}
	var saved ProjectModel
	if err := r.db.WithContext(ctx).First(&saved, "id = ?", p.ID).Error; err != nil {
		return nil, fmt.Errorf("reloading project %s: %w", p.ID, err)
	}
	return toProjectDomain(&saved), nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&ProjectModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	return nil
}
