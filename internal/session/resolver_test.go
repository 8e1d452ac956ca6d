package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/meistericham/pcrtrack/internal/domain"
)

type fakeUserStore struct {
	users map[string]domain.User
	err   error
	gets  int
}

func (f *fakeUserStore) List(_ context.Context) ([]domain.User, error) { return nil, nil }

func (f *fakeUserStore) Get(_ context.Context, id string) (*domain.User, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

func (f *fakeUserStore) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	return u, nil
}

func (f *fakeUserStore) Update(_ context.Context, u *domain.User) (*domain.User, error) {
	return u, nil
}

func (f *fakeUserStore) Delete(_ context.Context, _ string) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveNilSession(t *testing.T) {
	r := NewResolver(&fakeUserStore{}, testLogger())
	auth := r.Resolve(context.Background(), nil)
	if auth.Allowed == nil || *auth.Allowed {
		t.Errorf("nil session should resolve to a decided rejection, got %+v", auth)
	}
}

func TestResolveSuperAdminClaimShortCircuits(t *testing.T) {
	store := &fakeUserStore{}
	r := NewResolver(store, testLogger())
	auth := r.Resolve(context.Background(), &Session{
		UserID: "u1",
		Claims: Claims{Role: domain.RoleSuperAdmin},
	})
	if auth.Allowed == nil || !*auth.Allowed {
		t.Fatalf("super admin claim should allow, got %+v", auth)
	}
	if auth.Role != domain.RoleSuperAdmin {
		t.Errorf("role = %s, want super_admin", auth.Role)
	}
	if store.gets != 0 {
		t.Errorf("super admin claim should skip the profile lookup, got %d lookups", store.gets)
	}
}

func TestResolveUsesStoredRole(t *testing.T) {
	store := &fakeUserStore{users: map[string]domain.User{
		"u1": {ID: "u1", Role: domain.RoleAdmin},
	}}
	r := NewResolver(store, testLogger())
	auth := r.Resolve(context.Background(), &Session{UserID: "u1"})
	if auth.Allowed == nil || !*auth.Allowed {
		t.Fatalf("known profile should allow, got %+v", auth)
	}
	if auth.Role != domain.RoleAdmin {
		t.Errorf("role = %s, want admin (stored role wins over empty claim)", auth.Role)
	}
}

func TestResolveLookupFailureDenies(t *testing.T) {
	lookupErr := errors.New("connection refused")
	store := &fakeUserStore{err: lookupErr}
	r := NewResolver(store, testLogger())
	auth := r.Resolve(context.Background(), &Session{UserID: "u1"})
	if auth.Allowed == nil || *auth.Allowed {
		t.Fatalf("lookup failure must deny, got %+v", auth)
	}
	if !errors.Is(auth.Err, lookupErr) {
		t.Errorf("err = %v, want the lookup error surfaced", auth.Err)
	}
}

func TestPendingIsUndetermined(t *testing.T) {
	if Pending().Allowed != nil {
		t.Error("pending authorization must carry a nil decision")
	}
}
