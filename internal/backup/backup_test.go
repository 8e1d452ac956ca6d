package backup

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/observability"
	"github.com/meistericham/pcrtrack/internal/storage/local"
	"github.com/meistericham/pcrtrack/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSeededStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	backend, err := local.Open(local.Config{
		Path:     filepath.Join(t.TempDir(), "state.db"),
		Debounce: 10 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("opening backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	if err := backend.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	st := store.New(backend, testLogger(), observability.NewMetricsCollector())
	if err := st.Hydrate(ctx); err != nil {
		t.Fatalf("hydrating: %v", err)
	}

	admin := store.Actor{ID: "root", Role: domain.RoleSuperAdmin}
	if _, err := st.AddUser(ctx, admin, domain.User{Email: "alice@x.y", Name: "Alice"}); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	if _, err := st.AddProject(ctx, admin, domain.Project{Name: "P", Budget: 100}); err != nil {
		t.Fatalf("seeding project: %v", err)
	}
	return st
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(nil, t.TempDir(), "not a cron spec", 5, testLogger()); err == nil {
		t.Error("New should reject an unparseable schedule")
	}
}

func TestTakeWritesSnapshot(t *testing.T) {
	st := newSeededStore(t)
	dir := filepath.Join(t.TempDir(), "backups")

	r, err := New(st, dir, "0 3 * * *", 5, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := r.Take()
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if len(snap.Users) != 1 || snap.Users[0].Email != "alice@x.y" {
		t.Errorf("users = %+v, want the seeded user", snap.Users)
	}
	if len(snap.Projects) != 1 || snap.Projects[0].Name != "P" {
		t.Errorf("projects = %+v, want the seeded project", snap.Projects)
	}
	if snap.Settings.Currency == "" {
		t.Error("settings must be captured in the snapshot")
	}
	if snap.TakenAt.IsZero() {
		t.Error("snapshot timestamp missing")
	}
}

func TestPruneKeepsNewestSnapshots(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"pcrtrack-20250101-030000.json",
		"pcrtrack-20250102-030000.json",
		"pcrtrack-20250103-030000.json",
		"pcrtrack-20250104-030000.json",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files are never touched.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &Runner{dir: dir, keep: 2, logger: testLogger()}
	if err := r.prune(); err != nil {
		t.Fatalf("prune: %v", err)
	}

	for _, n := range names[:2] {
		if _, err := os.Stat(filepath.Join(dir, n)); !os.IsNotExist(err) {
			t.Errorf("%s should be pruned", n)
		}
	}
	for _, n := range append(names[2:], "notes.txt") {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			t.Errorf("%s should survive: %v", n, err)
		}
	}
}
