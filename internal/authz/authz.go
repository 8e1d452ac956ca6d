// Package authz implements the client-side permission gate: pure predicates
// consulted before a mutation is attempted. The backing datastore enforces the
// same rules independently; this layer exists to short-circuit with a specific
// message before any network round-trip.
package authz

import (
	"errors"
	"fmt"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// ErrPermissionDenied is the sentinel wrapped by every gate rejection.
var ErrPermissionDenied = errors.New("permission denied")

// CanEditUserOrgFields reports whether the actor may change another user's
// division or unit assignment. Super admin only.
func CanEditUserOrgFields(actor domain.Role) bool {
	return actor == domain.RoleSuperAdmin
}

// CanEditUserRole reports whether the actor may change a user's role.
// Super admin only, and never their own role through this path.
func CanEditUserRole(actor domain.Role, editingSelf bool) bool {
	return actor == domain.RoleSuperAdmin && !editingSelf
}

// CanManageUsers reports whether the actor may invite or delete users.
func CanManageUsers(actor domain.Role) bool {
	return actor == domain.RoleSuperAdmin
}

// CanDeleteProject reports whether the actor may delete the given project.
// Super admins may delete anything; admins only what they created; plain
// users never delete.
func CanDeleteProject(actor domain.Role, actorID string, project *domain.Project) bool {
	switch actor {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleAdmin:
		return project != nil && project.CreatedBy == actorID
	default:
		return false
	}
}

// Denied builds the error surfaced when a gate predicate rejects an action.
func Denied(action string, actor domain.Role) error {
	return fmt.Errorf("%w: role %q may not %s", ErrPermissionDenied, actor, action)
}

// SettingsUpdate is a partial settings payload. Nil fields are left unchanged.
type SettingsUpdate struct {
	Currency               *string                 `json:"currency,omitempty"`
	DateFormat             *string                 `json:"dateFormat,omitempty"`
	FiscalYearStart        *int                    `json:"fiscalYearStart,omitempty"`
	BudgetAlertThreshold   *float64                `json:"budgetAlertThreshold,omitempty"`
	AutoBackup             *bool                   `json:"autoBackup,omitempty"`
	EmailNotifications     *bool                   `json:"emailNotifications,omitempty"`
	CompanyName            *string                 `json:"companyName,omitempty"`
	DefaultProjectStatus   *domain.ProjectStatus   `json:"defaultProjectStatus,omitempty"`
	DefaultProjectPriority *domain.ProjectPriority `json:"defaultProjectPriority,omitempty"`
	BudgetCategories       []string                `json:"budgetCategories,omitempty"`
	MaxProjectDuration     *int                    `json:"maxProjectDuration,omitempty"`
	RequireBudgetApproval  *bool                   `json:"requireBudgetApproval,omitempty"`
	AllowNegativeBudget    *bool                   `json:"allowNegativeBudget,omitempty"`
	Theme                  *string                 `json:"theme,omitempty"`
}

// FilterSettingsUpdate strips the super-admin-only fields (companyName,
// currency) from an update submitted by a lesser role. The filtered payload
// is returned; the original is not modified.
func FilterSettingsUpdate(actor domain.Role, upd SettingsUpdate) SettingsUpdate {
	if actor == domain.RoleSuperAdmin {
		return upd
	}
	upd.CompanyName = nil
	upd.Currency = nil
	return upd
}

// ApplySettingsUpdate merges a (already filtered) partial update into base.
func ApplySettingsUpdate(base domain.AppSettings, upd SettingsUpdate) domain.AppSettings {
	if upd.Currency != nil {
		base.Currency = *upd.Currency
	}
	if upd.DateFormat != nil {
		base.DateFormat = *upd.DateFormat
	}
	if upd.FiscalYearStart != nil {
		base.FiscalYearStart = *upd.FiscalYearStart
	}
	if upd.BudgetAlertThreshold != nil {
		base.BudgetAlertThreshold = *upd.BudgetAlertThreshold
	}
	if upd.AutoBackup != nil {
		base.AutoBackup = *upd.AutoBackup
	}
	if upd.EmailNotifications != nil {
		base.EmailNotifications = *upd.EmailNotifications
	}
	if upd.CompanyName != nil {
		base.CompanyName = *upd.CompanyName
	}
	if upd.DefaultProjectStatus != nil {
		base.DefaultProjectStatus = *upd.DefaultProjectStatus
	}
	if upd.DefaultProjectPriority != nil {
		base.DefaultProjectPriority = *upd.DefaultProjectPriority
	}
	if upd.BudgetCategories != nil {
		base.BudgetCategories = upd.BudgetCategories
	}
	if upd.MaxProjectDuration != nil {
		base.MaxProjectDuration = *upd.MaxProjectDuration
	}
	if upd.RequireBudgetApproval != nil {
		base.RequireBudgetApproval = *upd.RequireBudgetApproval
	}
	if upd.AllowNegativeBudget != nil {
		base.AllowNegativeBudget = *upd.AllowNegativeBudget
	}
	if upd.Theme != nil {
		base.Theme = *upd.Theme
	}
	return base
}

// UserUpdate is a partial user payload. Email and CreatedAt are never
// updatable; the gate additionally strips role/org fields by actor.
type UserUpdate struct {
	Name       *string      `json:"name,omitempty"`
	Initials   *string      `json:"initials,omitempty"`
	Role       *domain.Role `json:"role,omitempty"`
	DivisionID *string      `json:"divisionId,omitempty"`
	UnitID     *string      `json:"unitId,omitempty"`
}

// FilterUserUpdate strips the fields the actor is not allowed to change:
// org assignment for non-super-admins, role for non-super-admins and for a
// super admin editing themselves.
func FilterUserUpdate(actor domain.Role, editingSelf bool, upd UserUpdate) UserUpdate {
	if !CanEditUserOrgFields(actor) {
		upd.DivisionID = nil
		upd.UnitID = nil
	}
	if !CanEditUserRole(actor, editingSelf) {
		upd.Role = nil
	}
	return upd
}
