package authz

import (
	"errors"
	"testing"

	"github.com/meistericham/pcrtrack/internal/domain"
)

func TestCanManageUsers(t *testing.T) {
	if CanManageUsers(domain.RoleUser) || CanManageUsers(domain.RoleAdmin) {
		t.Error("only super admins may manage users")
	}
	if !CanManageUsers(domain.RoleSuperAdmin) {
		t.Error("super admin should manage users")
	}
}

func TestCanEditUserRole(t *testing.T) {
	if !CanEditUserRole(domain.RoleSuperAdmin, false) {
		t.Error("super admin should edit other users' roles")
	}
	if CanEditUserRole(domain.RoleSuperAdmin, true) {
		t.Error("super admin must not edit their own role")
	}
	if CanEditUserRole(domain.RoleAdmin, false) {
		t.Error("admin must not edit roles")
	}
}

func TestCanDeleteProject(t *testing.T) {
	p := &domain.Project{ID: "p1", CreatedBy: "alice"}

	if !CanDeleteProject(domain.RoleSuperAdmin, "bob", p) {
		t.Error("super admin should delete any project")
	}
	if !CanDeleteProject(domain.RoleAdmin, "alice", p) {
		t.Error("admin should delete their own project")
	}
	if CanDeleteProject(domain.RoleAdmin, "bob", p) {
		t.Error("admin must not delete someone else's project")
	}
	if CanDeleteProject(domain.RoleUser, "alice", p) {
		t.Error("plain user must never delete projects")
	}
	if CanDeleteProject(domain.RoleAdmin, "alice", nil) {
		t.Error("nil project must not be deletable by admin")
	}
}

func TestDeniedWrapsSentinel(t *testing.T) {
	err := Denied("delete this project", domain.RoleUser)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Denied should wrap ErrPermissionDenied, got %v", err)
	}
}

func TestFilterUserUpdate(t *testing.T) {
	name := "New Name"
	role := domain.RoleAdmin
	div := "d1"
	unit := "u1"
	full := UserUpdate{Name: &name, Role: &role, DivisionID: &div, UnitID: &unit}

	got := FilterUserUpdate(domain.RoleAdmin, false, full)
	if got.Role != nil || got.DivisionID != nil || got.UnitID != nil {
		t.Error("admin update should have role and org fields stripped")
	}
	if got.Name == nil {
		t.Error("name should survive filtering")
	}

	got = FilterUserUpdate(domain.RoleSuperAdmin, false, full)
	if got.Role == nil || got.DivisionID == nil || got.UnitID == nil {
		t.Error("super admin editing another user keeps all fields")
	}

	got = FilterUserUpdate(domain.RoleSuperAdmin, true, full)
	if got.Role != nil {
		t.Error("super admin editing self should have role stripped")
	}
	if got.DivisionID == nil || got.UnitID == nil {
		t.Error("super admin editing self keeps org fields")
	}
}

func TestFilterSettingsUpdate(t *testing.T) {
	company := "Acme"
	currency := "USD"
	theme := "dark"
	upd := SettingsUpdate{CompanyName: &company, Currency: &currency, Theme: &theme}

	got := FilterSettingsUpdate(domain.RoleAdmin, upd)
	if got.CompanyName != nil || got.Currency != nil {
		t.Error("admin should not change companyName or currency")
	}
	if got.Theme == nil {
		t.Error("theme should survive filtering")
	}

	got = FilterSettingsUpdate(domain.RoleSuperAdmin, upd)
	if got.CompanyName == nil || got.Currency == nil {
		t.Error("super admin keeps all settings fields")
	}
}

func TestApplySettingsUpdate(t *testing.T) {
	base := domain.DefaultSettings()
	threshold := 90.0
	auto := false
	upd := SettingsUpdate{BudgetAlertThreshold: &threshold, AutoBackup: &auto}

	got := ApplySettingsUpdate(base, upd)
	if got.BudgetAlertThreshold != 90 {
		t.Errorf("threshold = %v, want 90", got.BudgetAlertThreshold)
	}
	if got.AutoBackup {
		t.Error("autoBackup should be false after merge")
	}
	if got.Currency != base.Currency {
		t.Error("unset fields must be left unchanged")
	}
	if base.BudgetAlertThreshold != 80 {
		t.Error("merge must not mutate the base value")
	}
}
