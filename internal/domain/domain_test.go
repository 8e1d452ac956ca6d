package domain

import (
	"strconv"
	"testing"
)

func TestRoleOrdinal(t *testing.T) {
	if RoleUser.Ordinal() >= RoleAdmin.Ordinal() {
		t.Errorf("user ordinal %d should rank below admin %d", RoleUser.Ordinal(), RoleAdmin.Ordinal())
	}
	if RoleAdmin.Ordinal() >= RoleSuperAdmin.Ordinal() {
		t.Errorf("admin ordinal %d should rank below super_admin %d", RoleAdmin.Ordinal(), RoleSuperAdmin.Ordinal())
	}
	if got := Role("manager").Ordinal(); got != 0 {
		t.Errorf("unknown role ordinal = %d, want 0", got)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAdmin, RoleSuperAdmin} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("").Valid() {
		t.Error("empty role should be invalid")
	}
	if Role("root").Valid() {
		t.Error("unknown role should be invalid")
	}
}

func TestUsageRatio(t *testing.T) {
	tests := []struct {
		name   string
		budget float64
		spent  float64
		want   float64
	}{
		{"half used", 200, 100, 50},
		{"over budget", 100, 150, 150},
		{"no budget", 0, 50, 0},
		{"negative budget", -10, 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project{Budget: tt.budget, Spent: tt.spent}
			if got := p.UsageRatio(); got != tt.want {
				t.Errorf("project ratio = %v, want %v", got, tt.want)
			}
			c := BudgetCode{Budget: tt.budget, Spent: tt.spent}
			if got := c.UsageRatio(); got != tt.want {
				t.Errorf("code ratio = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewIDStrictlyIncreasing(t *testing.T) {
	prev, err := strconv.ParseInt(NewID(), 10, 64)
	if err != nil {
		t.Fatalf("parsing id: %v", err)
	}
	for i := 0; i < 1000; i++ {
		id, err := strconv.ParseInt(NewID(), 10, 64)
		if err != nil {
			t.Fatalf("parsing id: %v", err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestInitialsFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Alice Wong", "AW"},
		{"bob", "B"},
		{"mary jane watson", "MJ"},
		{"Édouard Martin", "ÉM"},
		{"Øyvind", "Ø"},
		{"", "U"},
		{"  ", "U"},
	}
	for _, tt := range tests {
		if got := InitialsFromName(tt.name); got != tt.want {
			t.Errorf("InitialsFromName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "alice"},
		{"bob.smith@corp.io", "bob.smith"},
		{"noatsign", "noatsign"},
		{"", "User"},
	}
	for _, tt := range tests {
		if got := NameFromEmail(tt.email); got != tt.want {
			t.Errorf("NameFromEmail(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Currency != "MYR" {
		t.Errorf("currency = %q, want MYR", s.Currency)
	}
	if s.BudgetAlertThreshold != 80 {
		t.Errorf("threshold = %v, want 80", s.BudgetAlertThreshold)
	}
	if len(s.BudgetCategories) != 10 {
		t.Errorf("categories = %d, want 10", len(s.BudgetCategories))
	}
	if s.DefaultProjectStatus != StatusPlanning || s.DefaultProjectPriority != PriorityMedium {
		t.Errorf("defaults = %s/%s, want planning/medium", s.DefaultProjectStatus, s.DefaultProjectPriority)
	}
}
