package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB is a json.RawMessage that implements the driver.Valuer and
// sql.Scanner interfaces for GORM JSONB columns.
type JSONB json.RawMessage

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		*j = append((*j)[:0], v...)
		return nil
	case string:
		*j = JSONB(v)
		return nil
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
}

// UserModel maps to the "users" table.
type UserModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	Email      string `gorm:"not null;uniqueIndex"`
	Role       string `gorm:"not null;default:'user'"`
	Initials   string `gorm:"not null"`
	DivisionID string `gorm:"index"`
	UnitID     string `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (UserModel) TableName() string { return "users" }

// DivisionModel maps to the "divisions" table.
type DivisionModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Code      string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DivisionModel) TableName() string { return "divisions" }

// UnitModel maps to the "units" table.
type UnitModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	Code       string
	DivisionID string `gorm:"not null;index"`
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (UnitModel) TableName() string { return "units" }

// ProjectModel maps to the "projects" table.
type ProjectModel struct {
	ID            string  `gorm:"primaryKey"`
	Name          string  `gorm:"not null"`
	Description   string  `gorm:"type:text"`
	Status        string  `gorm:"not null;default:'planning'"`
	Priority      string  `gorm:"not null;default:'medium'"`
	StartDate     string  `gorm:"type:date"`
	EndDate       string  `gorm:"type:date"`
	Budget        float64 `gorm:"type:numeric(14,2);not null;default:0"`
	Spent         float64 `gorm:"type:numeric(14,2);not null;default:0"`
	UnitID        string  `gorm:"index"`
	AssignedUsers JSONB   `gorm:"type:jsonb;not null;default:'[]'"`
	BudgetCodes   JSONB   `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ProjectModel) TableName() string { return "projects" }

// BudgetCodeModel maps to the "budget_codes" table.
type BudgetCodeModel struct {
	ID          string `gorm:"primaryKey"`
	Code        string `gorm:"not null;uniqueIndex"`
	Name        string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Budget      float64 `gorm:"type:numeric(14,2);not null;default:0"`
	Spent       float64 `gorm:"type:numeric(14,2);not null;default:0"`
	IsActive    bool    `gorm:"not null;default:true"`
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (BudgetCodeModel) TableName() string { return "budget_codes" }

// BudgetEntryModel maps to the "budget_entries" table.
type BudgetEntryModel struct {
	ID           string `gorm:"primaryKey"`
	ProjectID    string `gorm:"not null;index"`
	UnitID       string `gorm:"index"`
	DivisionID   string `gorm:"index"`
	BudgetCodeID string `gorm:"index"`
	Description  string `gorm:"type:text"`
	Amount       float64 `gorm:"type:numeric(14,2);not null;default:0"`
	Type         string  `gorm:"not null;default:'expense'"`
	Category     string
	Date         string `gorm:"type:date"`
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BudgetEntryModel) TableName() string { return "budget_entries" }

// NotificationModel maps to the "notifications" table.
// No UpdatedAt: records are immutable except for the read flag.
type NotificationModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Type      string `gorm:"not null"`
	Title     string `gorm:"not null"`
	Message   string `gorm:"type:text"`
	Data      JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	Read      bool   `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"index"`
}

func (NotificationModel) TableName() string { return "notifications" }

// SettingsModel maps to the "app_settings" table, which holds a single row.
type SettingsModel struct {
	ID        int   `gorm:"primaryKey"`
	Data      JSONB `gorm:"type:jsonb;not null;default:'{}'"`
	UpdatedAt time.Time
}

func (SettingsModel) TableName() string { return "app_settings" }
