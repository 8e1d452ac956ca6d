package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/meistericham/pcrtrack/internal/authz"
	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/observability"
	"github.com/meistericham/pcrtrack/internal/storage/local"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a hydrated Store over a throwaway local backend.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := local.Open(local.Config{
		Path:     filepath.Join(t.TempDir(), "state.db"),
		Debounce: 10 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("opening local backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	if err := backend.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	s := New(backend, testLogger(), observability.NewMetricsCollector())
	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrating: %v", err)
	}
	return s
}

var root = Actor{ID: "root", Role: domain.RoleSuperAdmin}

func seedUser(t *testing.T, s *Store, id, email string, role domain.Role) {
	t.Helper()
	if _, err := s.AddUser(context.Background(), root, domain.User{ID: id, Email: email, Role: role}); err != nil {
		t.Fatalf("seeding user %s: %v", id, err)
	}
}

// notifCount counts one user's notifications matching type and title.
func notifCount(s *Store, userID string, typ domain.NotificationType, title string) int {
	count := 0
	for _, n := range s.NotificationsFor(userID) {
		if n.Type == typ && n.Title == title {
			count++
		}
	}
	return count
}

func TestAddUserValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddUser(ctx, root, domain.User{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing email: err = %v, want ErrInvalidInput", err)
	}
	if _, err := s.AddUser(ctx, Actor{ID: "a", Role: domain.RoleAdmin}, domain.User{Email: "x@y.z"}); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("admin invite: err = %v, want ErrPermissionDenied", err)
	}
}

func TestAddUserDefaults(t *testing.T) {
	s := newTestStore(t)

	u, err := s.AddUser(context.Background(), root, domain.User{Email: "carol.lee@example.com"})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if u.Name != "carol.lee" {
		t.Errorf("name = %q, want the email local part", u.Name)
	}
	if u.Initials == "" {
		t.Error("initials should be derived")
	}
	if u.Role != domain.RoleUser {
		t.Errorf("role = %s, want user", u.Role)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Error("backend should assign id and creation time")
	}
}

func TestAddUserNotifiesAdminsExceptInviter(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "a1@x.y", domain.RoleAdmin)
	seedUser(t, s, "a2", "a2@x.y", domain.RoleAdmin)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)

	beforeA1 := notifCount(s, "a1", domain.NotifyUserAssigned, "New user")
	beforeA2 := notifCount(s, "a2", domain.NotifyUserAssigned, "New user")
	beforeU1 := notifCount(s, "u1", domain.NotifyUserAssigned, "New user")

	inviter := Actor{ID: "a1", Role: domain.RoleSuperAdmin}
	if _, err := s.AddUser(context.Background(), inviter, domain.User{ID: "new", Email: "new@x.y"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	if got := notifCount(s, "a2", domain.NotifyUserAssigned, "New user") - beforeA2; got != 1 {
		t.Errorf("other admin notifications = %d, want 1", got)
	}
	if got := notifCount(s, "a1", domain.NotifyUserAssigned, "New user") - beforeA1; got != 0 {
		t.Errorf("inviter notifications = %d, want 0", got)
	}
	if got := notifCount(s, "u1", domain.NotifyUserAssigned, "New user") - beforeU1; got != 0 {
		t.Errorf("plain user notifications = %d, want 0", got)
	}
	if got := notifCount(s, "new", domain.NotifyUserAssigned, "New user"); got != 0 {
		t.Errorf("invited user notifications = %d, want 0 about their own invite", got)
	}
}

func TestUpdateUserStripsFieldsByActor(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	ctx := context.Background()

	admin := domain.RoleAdmin
	div := "d1"

	// An admin's role/org changes are silently dropped, name applies.
	name := "Renamed"
	got, err := s.UpdateUser(ctx, Actor{ID: "a1", Role: domain.RoleAdmin}, "u1", authz.UserUpdate{
		Name: &name, Role: &admin, DivisionID: &div,
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got.Role != domain.RoleUser || got.DivisionID != "" {
		t.Errorf("role/division = %s/%q, admin changes must be stripped", got.Role, got.DivisionID)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", got.Name)
	}

	// A super admin may change both.
	got, err = s.UpdateUser(ctx, root, "u1", authz.UserUpdate{Role: &admin, DivisionID: &div})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got.Role != domain.RoleAdmin || got.DivisionID != "d1" {
		t.Errorf("role/division = %s/%q, want admin/d1", got.Role, got.DivisionID)
	}
}

func TestUpdateUserSelfRoleNeverChanges(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "sa", "sa@x.y", domain.RoleSuperAdmin)

	user := domain.RoleUser
	got, err := s.UpdateUser(context.Background(), Actor{ID: "sa", Role: domain.RoleSuperAdmin}, "sa", authz.UserUpdate{Role: &user})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got.Role != domain.RoleSuperAdmin {
		t.Errorf("role = %s, a super admin must not change their own role", got.Role)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	seedUser(t, s, "u2", "u2@x.y", domain.RoleUser)
	ctx := context.Background()

	p, err := s.AddProject(ctx, root, domain.Project{Name: "P", AssignedUsers: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if len(s.NotificationsFor("u1")) == 0 {
		t.Fatal("expected u1 to have notifications before deletion")
	}

	if err := s.DeleteUser(ctx, root, "u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if s.UserByID("u1") != nil {
		t.Error("user should be gone")
	}
	got := s.ProjectByID(p.ID)
	for _, id := range got.AssignedUsers {
		if id == "u1" {
			t.Error("deleted user must disappear from assigned lists")
		}
	}
	if len(s.NotificationsFor("u1")) != 0 {
		t.Error("deleted user's notifications must be purged")
	}
	if err := s.DeleteUser(ctx, Actor{ID: "a", Role: domain.RoleAdmin}, "u2"); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("admin delete: err = %v, want ErrPermissionDenied", err)
	}
}

func TestUpdateSettingsFiltersByRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	company := "Acme"
	threshold := 90.0
	got, err := s.UpdateSettings(ctx, Actor{ID: "a", Role: domain.RoleAdmin}, authz.SettingsUpdate{
		CompanyName: &company, BudgetAlertThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got.CompanyName == "Acme" {
		t.Error("companyName must be super admin only")
	}
	if got.BudgetAlertThreshold != 90 {
		t.Errorf("threshold = %v, want 90", got.BudgetAlertThreshold)
	}

	got, err = s.UpdateSettings(ctx, root, authz.SettingsUpdate{CompanyName: &company})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got.CompanyName != "Acme" {
		t.Errorf("companyName = %q, want Acme for super admin", got.CompanyName)
	}

	// The merged record is durable, not just in memory.
	stored, err := s.Backend().Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Settings().Get: %v", err)
	}
	if stored.CompanyName != "Acme" || stored.BudgetAlertThreshold != 90 {
		t.Errorf("stored settings = %q/%v, want Acme/90", stored.CompanyName, stored.BudgetAlertThreshold)
	}
}

func TestDivisionAndUnitLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.AddDivision(ctx, root, domain.Division{Name: "Ops"})
	if err != nil {
		t.Fatalf("AddDivision: %v", err)
	}
	if _, err := s.AddDivision(ctx, root, domain.Division{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unnamed division: err = %v, want ErrInvalidInput", err)
	}

	u, err := s.AddUnit(ctx, root, domain.Unit{Name: "Platform", DivisionID: d.ID})
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if _, err := s.AddUnit(ctx, root, domain.Unit{Name: "Orphan", DivisionID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unit with unknown division: err = %v, want ErrNotFound", err)
	}

	renamed, err := s.RenameUnit(ctx, root, u.ID, "Platform Eng")
	if err != nil {
		t.Fatalf("RenameUnit: %v", err)
	}
	if renamed.Name != "Platform Eng" {
		t.Errorf("name = %q, want Platform Eng", renamed.Name)
	}

	if err := s.DeleteUnit(ctx, root, u.ID); err != nil {
		t.Fatalf("DeleteUnit: %v", err)
	}
	if len(s.Units()) != 0 {
		t.Error("unit should be gone")
	}
}

func TestDeleteDivisionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, _ := s.AddDivision(ctx, root, domain.Division{Name: "Ops"})
	keepDiv, _ := s.AddDivision(ctx, root, domain.Division{Name: "Finance"})
	u1, _ := s.AddUnit(ctx, root, domain.Unit{Name: "A", DivisionID: d.ID})
	keepUnit, _ := s.AddUnit(ctx, root, domain.Unit{Name: "B", DivisionID: keepDiv.ID})

	p, err := s.AddProject(ctx, root, domain.Project{Name: "P", UnitID: u1.ID})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	e, err := s.AddBudgetEntry(ctx, root, domain.BudgetEntry{ProjectID: p.ID, Amount: 10})
	if err != nil {
		t.Fatalf("AddBudgetEntry: %v", err)
	}
	if e.UnitID != u1.ID || e.DivisionID != d.ID {
		t.Fatalf("entry org refs = %q/%q, want inherited from project unit", e.UnitID, e.DivisionID)
	}

	if err := s.DeleteDivision(ctx, root, d.ID); err != nil {
		t.Fatalf("DeleteDivision: %v", err)
	}

	for _, unit := range s.Units() {
		if unit.DivisionID == d.ID {
			t.Error("units of the deleted division must be removed")
		}
	}
	if len(s.Units()) != 1 || s.Units()[0].ID != keepUnit.ID {
		t.Error("unrelated units must survive")
	}
	if got := s.ProjectByID(p.ID); got.UnitID != "" {
		t.Errorf("project unit ref = %q, want cleared", got.UnitID)
	}
	for _, entry := range s.BudgetEntries() {
		if entry.ID == e.ID && (entry.UnitID != "" || entry.DivisionID != "") {
			t.Errorf("entry org refs = %q/%q, want cleared", entry.UnitID, entry.DivisionID)
		}
	}
	if len(s.Divisions()) != 1 {
		t.Errorf("divisions = %d, want 1", len(s.Divisions()))
	}
}

func TestHydrateReloadsFromBackend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)

	// A second store over the same backend sees the data after hydration.
	other := New(s.Backend(), testLogger(), observability.NewMetricsCollector())
	if len(other.Users()) != 0 {
		t.Fatal("fresh store should be empty before hydration")
	}
	if err := other.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if len(other.Users()) != 1 {
		t.Errorf("users after hydrate = %d, want 1", len(other.Users()))
	}
}
