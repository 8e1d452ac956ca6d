package store

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/observability"
	"github.com/meistericham/pcrtrack/internal/storage"
)

var errBackendDown = errors.New("backend unavailable")

// flakyBackend serves fixed collections until fail is flipped, after which
// every read errors. Writes are never exercised by the hydration tests.
type flakyBackend struct {
	fail     bool
	users    []domain.User
	projects []domain.Project
	settings domain.AppSettings
}

func (b *flakyBackend) Users() storage.UserStore                 { return flakyUsers{b} }
func (b *flakyBackend) Divisions() storage.DivisionStore         { return flakyDivisions{b} }
func (b *flakyBackend) Units() storage.UnitStore                 { return flakyUnits{b} }
func (b *flakyBackend) Projects() storage.ProjectStore           { return flakyProjects{b} }
func (b *flakyBackend) BudgetEntries() storage.BudgetEntryStore  { return flakyEntries{b} }
func (b *flakyBackend) BudgetCodes() storage.BudgetCodeStore     { return flakyCodes{b} }
func (b *flakyBackend) Notifications() storage.NotificationStore { return flakyNotifs{b} }
func (b *flakyBackend) Settings() storage.SettingsStore          { return flakySettings{b} }
func (b *flakyBackend) Migrate(context.Context) error            { return nil }
func (b *flakyBackend) Close() error                             { return nil }
func (b *flakyBackend) Driver() string                           { return "flaky" }

func (b *flakyBackend) err() error {
	if b.fail {
		return errBackendDown
	}
	return nil
}

type flakyUsers struct{ b *flakyBackend }

func (s flakyUsers) List(context.Context) ([]domain.User, error) {
	return s.b.users, s.b.err()
}
func (s flakyUsers) Get(context.Context, string) (*domain.User, error) {
	return nil, errBackendDown
}
func (s flakyUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	return u, s.b.err()
}
func (s flakyUsers) Update(_ context.Context, u *domain.User) (*domain.User, error) {
	return u, s.b.err()
}
func (s flakyUsers) Delete(context.Context, string) error { return s.b.err() }

type flakyDivisions struct{ b *flakyBackend }

func (s flakyDivisions) List(context.Context) ([]domain.Division, error) {
	return nil, s.b.err()
}
func (s flakyDivisions) Create(_ context.Context, d *domain.Division) (*domain.Division, error) {
	return d, s.b.err()
}
func (s flakyDivisions) Update(_ context.Context, d *domain.Division) (*domain.Division, error) {
	return d, s.b.err()
}
func (s flakyDivisions) Delete(context.Context, string) error { return s.b.err() }

type flakyUnits struct{ b *flakyBackend }

func (s flakyUnits) List(context.Context) ([]domain.Unit, error) { return nil, s.b.err() }
func (s flakyUnits) Create(_ context.Context, u *domain.Unit) (*domain.Unit, error) {
	return u, s.b.err()
}
func (s flakyUnits) Update(_ context.Context, u *domain.Unit) (*domain.Unit, error) {
	return u, s.b.err()
}
func (s flakyUnits) Delete(context.Context, string) error { return s.b.err() }

type flakyProjects struct{ b *flakyBackend }

func (s flakyProjects) List(context.Context) ([]domain.Project, error) {
	return s.b.projects, s.b.err()
}
func (s flakyProjects) Create(_ context.Context, p *domain.Project) (*domain.Project, error) {
	return p, s.b.err()
}
func (s flakyProjects) Update(_ context.Context, p *domain.Project) (*domain.Project, error) {
	return p, s.b.err()
}
func (s flakyProjects) Delete(context.Context, string) error { return s.b.err() }

type flakyEntries struct{ b *flakyBackend }

func (s flakyEntries) List(context.Context) ([]domain.BudgetEntry, error) {
	return nil, s.b.err()
}
func (s flakyEntries) Create(_ context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error) {
	return e, s.b.err()
}
func (s flakyEntries) Update(_ context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error) {
	return e, s.b.err()
}
func (s flakyEntries) Delete(context.Context, string) error { return s.b.err() }

type flakyCodes struct{ b *flakyBackend }

func (s flakyCodes) List(context.Context) ([]domain.BudgetCode, error) { return nil, s.b.err() }
func (s flakyCodes) Create(_ context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error) {
	return c, s.b.err()
}
func (s flakyCodes) Update(_ context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error) {
	return c, s.b.err()
}
func (s flakyCodes) Delete(context.Context, string) error { return s.b.err() }

type flakyNotifs struct{ b *flakyBackend }

func (s flakyNotifs) List(context.Context) ([]domain.Notification, error) {
	return nil, s.b.err()
}
func (s flakyNotifs) Create(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	return n, s.b.err()
}
func (s flakyNotifs) MarkRead(context.Context, string) error     { return s.b.err() }
func (s flakyNotifs) MarkAllRead(context.Context, string) error  { return s.b.err() }
func (s flakyNotifs) Delete(context.Context, string) error       { return s.b.err() }
func (s flakyNotifs) DeleteByUser(context.Context, string) error { return s.b.err() }

type flakySettings struct{ b *flakyBackend }

func (s flakySettings) Get(context.Context) (*domain.AppSettings, error) {
	if err := s.b.err(); err != nil {
		return nil, err
	}
	out := s.b.settings
	return &out, nil
}
func (s flakySettings) Save(_ context.Context, v *domain.AppSettings) (*domain.AppSettings, error) {
	return v, s.b.err()
}

func TestHydrateKeepsPriorStateOnBackendFailure(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Currency = "USD"
	backend := &flakyBackend{
		users:    []domain.User{{ID: "u1", Email: "u1@x.y", Role: domain.RoleUser}},
		projects: []domain.Project{{ID: "p1", Name: "P"}},
		settings: settings,
	}
	metrics := observability.NewMetricsCollector()
	s := New(backend, testLogger(), metrics)

	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if len(s.Users()) != 1 || len(s.Projects()) != 1 {
		t.Fatalf("users/projects = %d/%d, want 1/1 after first hydration", len(s.Users()), len(s.Projects()))
	}

	backend.fail = true
	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate with failing backend: %v", err)
	}

	// A failed refresh keeps what is already loaded.
	if len(s.Users()) != 1 || s.Users()[0].ID != "u1" {
		t.Errorf("users = %+v, prior contents must survive a failed refresh", s.Users())
	}
	if len(s.Projects()) != 1 || s.Projects()[0].ID != "p1" {
		t.Errorf("projects = %+v, prior contents must survive a failed refresh", s.Projects())
	}
	if got := s.Settings().Currency; got != "USD" {
		t.Errorf("currency = %q, prior settings must survive a failed refresh", got)
	}

	for _, collection := range []string{"users", "projects", "settings"} {
		if got := testutil.ToFloat64(metrics.HydrationFailures.WithLabelValues(collection)); got != 1 {
			t.Errorf("hydration_failures_total{collection=%q} = %v, want 1", collection, got)
		}
	}
}

func TestHydrateCancelledContext(t *testing.T) {
	backend := &flakyBackend{settings: domain.DefaultSettings()}
	s := New(backend, testLogger(), observability.NewMetricsCollector())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Hydrate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Hydrate = %v, want context.Canceled", err)
	}
}
