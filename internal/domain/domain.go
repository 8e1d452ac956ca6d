// Package domain defines the entity types shared across the tracker.
package domain

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Role is the application-level privilege tier of a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Ordinal maps the role hierarchy to integers so that "promote never demote"
// is a plain numeric comparison. Unknown roles rank below user.
func (r Role) Ordinal() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r.Ordinal() > 0
}

// ProjectStatus is a project lifecycle state. All transitions are allowed;
// entering StatusCompleted from any other state triggers a completion
// notification.
type ProjectStatus string

const (
	StatusPlanning  ProjectStatus = "planning"
	StatusActive    ProjectStatus = "active"
	StatusOnHold    ProjectStatus = "on_hold"
	StatusCompleted ProjectStatus = "completed"
	StatusCancelled ProjectStatus = "cancelled"
)

// ProjectPriority is the coarse urgency bucket of a project.
type ProjectPriority string

const (
	PriorityLow    ProjectPriority = "low"
	PriorityMedium ProjectPriority = "medium"
	PriorityHigh   ProjectPriority = "high"
)

// EntryType distinguishes money flowing out from money flowing in.
// Only expense entries contribute to the derived "spent" fields.
type EntryType string

const (
	EntryExpense EntryType = "expense"
	EntryIncome  EntryType = "income"
)

// NotificationType enumerates the events the notifier fans out.
type NotificationType string

const (
	NotifyProjectCreated   NotificationType = "project_created"
	NotifyProjectUpdated   NotificationType = "project_updated"
	NotifyProjectCompleted NotificationType = "project_completed"
	NotifyBudgetAlert      NotificationType = "budget_alert"
	NotifyBudgetEntryAdded NotificationType = "budget_entry_added"
	NotifyBudgetCodeAlert  NotificationType = "budget_code_alert"
	NotifyUserAssigned     NotificationType = "user_assigned"
)

// User is the durable application profile, distinct from the identity
// provider's bare authentication record. Email is immutable after creation;
// Role and DivisionID/UnitID are mutable only by a super admin.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	Initials   string    `json:"initials"`
	DivisionID string    `json:"divisionId,omitempty"`
	UnitID     string    `json:"unitId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Division is the top level of the organizational hierarchy. It owns units;
// deleting a division cascades to its units and clears dangling references.
type Division struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Unit belongs to exactly one division.
type Unit struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code,omitempty"`
	DivisionID string    `json:"divisionId"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Project is a tracked initiative with a budget. Spent is maintained
// incrementally by entry mutations and always equals the sum of linked
// expense entry amounts.
type Project struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Status        ProjectStatus   `json:"status"`
	Priority      ProjectPriority `json:"priority"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Budget        float64         `json:"budget"`
	Spent         float64         `json:"spent"`
	UnitID        string          `json:"unitId,omitempty"`
	AssignedUsers []string        `json:"assignedUsers"`
	BudgetCodes   []string        `json:"budgetCodes"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// UsageRatio returns spent/budget as a percentage, or 0 when no budget is
// allocated.
func (p *Project) UsageRatio() float64 {
	if p.Budget <= 0 {
		return 0
	}
	return p.Spent / p.Budget * 100
}

// BudgetCode is a cross-project spending category with its own allocation.
// Active and inactive are both stable states; toggling never touches entries.
type BudgetCode struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Budget      float64   `json:"budget"`
	Spent       float64   `json:"spent"`
	IsActive    bool      `json:"isActive"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UsageRatio returns spent/budget as a percentage, or 0 when no budget is
// allocated.
func (c *BudgetCode) UsageRatio() float64 {
	if c.Budget <= 0 {
		return 0
	}
	return c.Spent / c.Budget * 100
}

// BudgetEntry is a single expense or income line belonging to exactly one
// project, optionally tagged with a budget code.
type BudgetEntry struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	UnitID       string    `json:"unitId,omitempty"`
	DivisionID   string    `json:"divisionId,omitempty"`
	BudgetCodeID string    `json:"budgetCodeId,omitempty"`
	Description  string    `json:"description"`
	Amount       float64   `json:"amount"`
	Type         EntryType `json:"type"`
	Category     string    `json:"category"`
	Date         string    `json:"date"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Notification is a per-recipient record synthesized by the notifier.
// Only the Read flag is ever mutated after creation.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// AppSettings is the singleton application configuration record.
// CompanyName and Currency are mutable only by a super admin.
type AppSettings struct {
	Currency               string          `json:"currency"`
	DateFormat             string          `json:"dateFormat"`
	FiscalYearStart        int             `json:"fiscalYearStart"`
	BudgetAlertThreshold   float64         `json:"budgetAlertThreshold"`
	AutoBackup             bool            `json:"autoBackup"`
	EmailNotifications     bool            `json:"emailNotifications"`
	CompanyName            string          `json:"companyName"`
	DefaultProjectStatus   ProjectStatus   `json:"defaultProjectStatus"`
	DefaultProjectPriority ProjectPriority `json:"defaultProjectPriority"`
	BudgetCategories       []string        `json:"budgetCategories"`
	MaxProjectDuration     int             `json:"maxProjectDuration"`
	RequireBudgetApproval  bool            `json:"requireBudgetApproval"`
	AllowNegativeBudget    bool            `json:"allowNegativeBudget"`
	Theme                  string          `json:"theme"`
}

// DefaultSettings returns the settings applied on first run. Stored settings
// are merged over these so that newly added fields pick up their defaults.
func DefaultSettings() AppSettings {
	return AppSettings{
		Currency:               "MYR",
		DateFormat:             "DD/MM/YYYY",
		FiscalYearStart:        1,
		BudgetAlertThreshold:   80,
		AutoBackup:             true,
		EmailNotifications:     true,
		CompanyName:            "PCR Company",
		DefaultProjectStatus:   StatusPlanning,
		DefaultProjectPriority: PriorityMedium,
		BudgetCategories: []string{
			"Design", "Development", "Marketing", "Software", "Research",
			"Advertising", "Equipment", "Travel", "Training", "Other",
		},
		MaxProjectDuration:  365,
		AllowNegativeBudget: false,
		Theme:               "system",
	}
}

var lastID atomic.Int64

// NewID synthesizes a time-based opaque id for local-mode records.
// Strictly increasing within a process; remote mode uses ids assigned by the
// backend instead.
func NewID() string {
	now := time.Now().UnixMilli()
	for {
		last := lastID.Load()
		if now <= last {
			now = last + 1
		}
		if lastID.CompareAndSwap(last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}

// InitialsFromName derives up to two uppercase initials from a display name.
func InitialsFromName(name string) string {
	var b strings.Builder
	taken := 0
	for _, part := range strings.Fields(name) {
		r := []rune(part)
		b.WriteString(strings.ToUpper(string(r[0])))
		taken++
		if taken >= 2 {
			break
		}
	}
	if taken == 0 {
		return "U"
	}
	return b.String()
}

// NameFromEmail derives a fallback display name from the email local part.
func NameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	if email != "" {
		return email
	}
	return "User"
}
