package local

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meistericham/pcrtrack/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaverCoalescesRapidWrites(t *testing.T) {
	var mu sync.Mutex
	got := map[string][][]byte{}
	s := newSaver(20*time.Millisecond, func(key string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got[key] = append(got[key], data)
	})

	for i := 0; i < 5; i++ {
		s.schedule("users", []byte{byte('a' + i)})
	}
	s.schedule("projects", []byte("p"))

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got["users"]) != 1 {
		t.Fatalf("users sink calls = %d, want rapid writes coalesced into 1", len(got["users"]))
	}
	if string(got["users"][0]) != "e" {
		t.Errorf("users payload = %q, want the latest %q", got["users"][0], "e")
	}
	if len(got["projects"]) != 1 {
		t.Errorf("projects sink calls = %d, want 1", len(got["projects"]))
	}
}

func TestSaverFlushDeliversPending(t *testing.T) {
	var mu sync.Mutex
	var calls int
	s := newSaver(time.Hour, func(string, []byte) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	s.schedule("users", []byte("u"))
	s.schedule("settings", []byte("s"))
	s.flush()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("sink calls after flush = %d, want 2", calls)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	open := func() *Store {
		s, err := Open(Config{Path: path, Debounce: 5 * time.Millisecond}, testLogger())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return s
	}

	s := open()
	u, err := s.Users().Create(ctx, &domain.User{Email: "alice@x.y", Name: "Alice", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatal("local backend must synthesize id and creation time")
	}
	if _, err := s.Projects().Create(ctx, &domain.Project{Name: "P", CreatedBy: u.ID}); err != nil {
		t.Fatalf("Create project: %v", err)
	}
	settings := domain.DefaultSettings()
	settings.CompanyName = "Acme"
	if _, err := s.Settings().Save(ctx, &settings); err != nil {
		t.Fatalf("Save settings: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = open()
	defer s.Close()

	users, err := s.Users().List(ctx)
	if err != nil {
		t.Fatalf("List users: %v", err)
	}
	if len(users) != 1 || users[0].ID != u.ID || users[0].Email != "alice@x.y" {
		t.Fatalf("users after reopen = %+v, want the created user back", users)
	}
	projects, err := s.Projects().List(ctx)
	if err != nil {
		t.Fatalf("List projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "P" {
		t.Fatalf("projects after reopen = %+v", projects)
	}
	loaded, err := s.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Get settings: %v", err)
	}
	if loaded.CompanyName != "Acme" {
		t.Errorf("companyName = %q, want persisted %q", loaded.CompanyName, "Acme")
	}
	if loaded.Currency != settings.Currency {
		t.Errorf("currency = %q, want default-merged %q", loaded.Currency, settings.Currency)
	}
}

func TestNotificationRetentionCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(Config{Path: path, Debounce: 5 * time.Millisecond}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var newest string
	for i := 0; i < maxNotifications+10; i++ {
		n, err := s.Notifications().Create(ctx, &domain.Notification{
			UserID: "u1", Type: domain.NotifyProjectCreated, Title: "New project",
		})
		if err != nil {
			t.Fatalf("Create notification %d: %v", i, err)
		}
		newest = n.ID
	}

	all, err := s.Notifications().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != maxNotifications {
		t.Fatalf("retained = %d, want capped at %d", len(all), maxNotifications)
	}
	found := false
	for _, n := range all {
		if n.ID == newest {
			found = true
			break
		}
	}
	if !found {
		t.Error("the newest record must survive the cap, oldest are evicted")
	}
}
