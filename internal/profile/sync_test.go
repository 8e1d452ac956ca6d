package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/session"
)

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	creates int
	updates int

	// blockGet holds Get until released, to exercise overlap collapsing.
	blockGet chan struct{}
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]domain.User)}
}

func (f *fakeUserStore) List(_ context.Context) ([]domain.User, error) { return nil, nil }

func (f *fakeUserStore) Get(_ context.Context, id string) (*domain.User, error) {
	if f.blockGet != nil {
		<-f.blockGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

func (f *fakeUserStore) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.users[u.ID] = *u
	return u, nil
}

func (f *fakeUserStore) Update(_ context.Context, u *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.users[u.ID] = *u
	return u, nil
}

func (f *fakeUserStore) Delete(_ context.Context, _ string) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncCreatesMissingProfile(t *testing.T) {
	store := newFakeUserStore()
	s := NewSynchronizer(store, testLogger())

	s.Sync(context.Background(), &session.Session{
		UserID: "u1",
		Email:  "alice@example.com",
		Claims: session.Claims{Role: domain.RoleAdmin, Name: "Alice Wong"},
	})

	u, ok := store.users["u1"]
	if !ok {
		t.Fatal("profile was not created")
	}
	if u.Role != domain.RoleAdmin {
		t.Errorf("role = %s, want admin from claims", u.Role)
	}
	if u.Name != "Alice Wong" || u.Initials != "AW" {
		t.Errorf("name/initials = %q/%q, want Alice Wong/AW", u.Name, u.Initials)
	}
}

func TestSyncDefaultsFromEmail(t *testing.T) {
	store := newFakeUserStore()
	s := NewSynchronizer(store, testLogger())

	s.Sync(context.Background(), &session.Session{
		UserID: "u1",
		Email:  "bob@example.com",
	})

	u := store.users["u1"]
	if u.Role != domain.RoleUser {
		t.Errorf("role = %s, want user when the claim carries no role", u.Role)
	}
	if u.Name != "bob" {
		t.Errorf("name = %q, want the email local part", u.Name)
	}
}

func TestSyncPromotesNeverDemotes(t *testing.T) {
	store := newFakeUserStore()
	store.users["u1"] = domain.User{ID: "u1", Name: "Alice", Initials: "A", Role: domain.RoleUser}
	s := NewSynchronizer(store, testLogger())

	// Claim ranks above stored: promote.
	s.Sync(context.Background(), &session.Session{
		UserID: "u1",
		Claims: session.Claims{Role: domain.RoleAdmin},
	})
	if got := store.users["u1"].Role; got != domain.RoleAdmin {
		t.Errorf("role = %s, want admin after promotion", got)
	}

	// Claim ranks below stored: keep.
	s.Sync(context.Background(), &session.Session{
		UserID: "u1",
		Claims: session.Claims{Role: domain.RoleUser},
	})
	if got := store.users["u1"].Role; got != domain.RoleAdmin {
		t.Errorf("role = %s, demotion must never happen", got)
	}
}

func TestSyncNeverOverwritesEditedName(t *testing.T) {
	store := newFakeUserStore()
	store.users["u1"] = domain.User{ID: "u1", Name: "Chosen Name", Initials: "CN", Role: domain.RoleUser}
	s := NewSynchronizer(store, testLogger())

	s.Sync(context.Background(), &session.Session{
		UserID: "u1",
		Email:  "other@example.com",
		Claims: session.Claims{Name: "Claim Name"},
	})

	if got := store.users["u1"].Name; got != "Chosen Name" {
		t.Errorf("name = %q, a manual edit must never be reverted", got)
	}
	if store.updates != 0 {
		t.Errorf("updates = %d, an unchanged profile should not be written", store.updates)
	}
}

func TestSyncCollapsesOverlappingCalls(t *testing.T) {
	store := newFakeUserStore()
	store.blockGet = make(chan struct{})
	s := NewSynchronizer(store, testLogger())

	sess := &session.Session{UserID: "u1", Email: "alice@example.com"}

	done := make(chan struct{})
	go func() {
		s.Sync(context.Background(), sess)
		close(done)
	}()

	// Wait until the first sync is in flight, then issue a second one. It
	// must return immediately without touching the store.
	for {
		s.mu.Lock()
		_, inFlight := s.inFlight["u1"]
		s.mu.Unlock()
		if inFlight {
			break
		}
	}
	s.Sync(context.Background(), sess)

	close(store.blockGet)
	<-done

	if store.creates != 1 {
		t.Errorf("creates = %d, overlapping syncs must collapse into one", store.creates)
	}
}

func TestEnsureCreatesMissingProfile(t *testing.T) {
	store := newFakeUserStore()
	s := NewSynchronizer(store, testLogger())

	err := s.Ensure(context.Background(), &session.Session{
		UserID: "u1",
		Email:  "carol@example.com",
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, ok := store.users["u1"]; !ok {
		t.Fatal("profile was not created")
	}
}

func TestEnsureWaitsOutInFlightSync(t *testing.T) {
	store := newFakeUserStore()
	store.blockGet = make(chan struct{})
	s := NewSynchronizer(store, testLogger())

	sess := &session.Session{UserID: "u1", Email: "alice@example.com"}

	syncDone := make(chan struct{})
	go func() {
		s.Sync(context.Background(), sess)
		close(syncDone)
	}()

	for {
		s.mu.Lock()
		_, inFlight := s.inFlight["u1"]
		s.mu.Unlock()
		if inFlight {
			break
		}
	}

	// Ensure issued while a sync is in flight must not degrade to a no-op:
	// it waits the sync out and reconciles itself.
	ensureDone := make(chan error, 1)
	go func() {
		ensureDone <- s.Ensure(context.Background(), sess)
	}()

	close(store.blockGet)
	<-syncDone
	if err := <-ensureDone; err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if _, ok := store.users["u1"]; !ok {
		t.Fatal("profile was not created")
	}
	if store.creates != 1 {
		t.Errorf("creates = %d, want exactly one", store.creates)
	}
}

func TestEnsureHonorsContextWhileWaiting(t *testing.T) {
	store := newFakeUserStore()
	store.blockGet = make(chan struct{})
	defer close(store.blockGet)
	s := NewSynchronizer(store, testLogger())

	sess := &session.Session{UserID: "u1", Email: "alice@example.com"}
	go s.Sync(context.Background(), sess)

	for {
		s.mu.Lock()
		_, inFlight := s.inFlight["u1"]
		s.mu.Unlock()
		if inFlight {
			break
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Ensure(ctx, sess); !errors.Is(err, context.Canceled) {
		t.Errorf("Ensure = %v, want context.Canceled", err)
	}
}

func TestSyncNilSessionIsNoop(t *testing.T) {
	store := newFakeUserStore()
	s := NewSynchronizer(store, testLogger())
	s.Sync(context.Background(), nil)
	s.Sync(context.Background(), &session.Session{})
	if store.creates != 0 || store.updates != 0 {
		t.Error("nil or anonymous sessions must not touch the store")
	}
}
