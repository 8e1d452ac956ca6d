package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/meistericham/pcrtrack/internal/domain"
)

func TestNotificationFeedCapNewestFirst(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	ctx := context.Background()

	var lastProject string
	for i := 0; i < maxNotifications+5; i++ {
		p, err := s.AddProject(ctx, root, domain.Project{Name: fmt.Sprintf("P%03d", i)})
		if err != nil {
			t.Fatalf("AddProject %d: %v", i, err)
		}
		lastProject = p.ID
	}

	feed := s.NotificationsFor("u1")
	if len(feed) != maxNotifications {
		t.Fatalf("feed length = %d, want capped at %d", len(feed), maxNotifications)
	}
	if got := feed[0].Data["projectId"]; got != lastProject {
		t.Errorf("feed[0] references project %v, want the most recent %s", got, lastProject)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	seedUser(t, s, "u2", "u2@x.y", domain.RoleUser)
	ctx := context.Background()

	if _, err := s.AddProject(ctx, root, domain.Project{Name: "P"}); err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if got := s.UnreadCount("u1"); got != 1 {
		t.Fatalf("u1 unread = %d, want 1", got)
	}

	id := s.NotificationsFor("u1")[0].ID
	if err := s.MarkNotificationRead(ctx, id); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if got := s.UnreadCount("u1"); got != 0 {
		t.Errorf("u1 unread after mark = %d, want 0", got)
	}
	if got := s.UnreadCount("u2"); got != 1 {
		t.Errorf("u2 unread = %d, marking u1's record must not touch u2", got)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	seedUser(t, s, "u2", "u2@x.y", domain.RoleUser)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AddProject(ctx, root, domain.Project{Name: fmt.Sprintf("P%d", i)}); err != nil {
			t.Fatalf("AddProject: %v", err)
		}
	}

	if err := s.MarkAllNotificationsRead(ctx, "u1"); err != nil {
		t.Fatalf("MarkAllNotificationsRead: %v", err)
	}
	if got := s.UnreadCount("u1"); got != 0 {
		t.Errorf("u1 unread = %d, want 0", got)
	}
	if got := s.UnreadCount("u2"); got != 3 {
		t.Errorf("u2 unread = %d, want untouched 3", got)
	}
}

func TestDeleteNotification(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	ctx := context.Background()

	if _, err := s.AddProject(ctx, root, domain.Project{Name: "P"}); err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	id := s.NotificationsFor("u1")[0].ID

	if err := s.DeleteNotification(ctx, id); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	if got := len(s.NotificationsFor("u1")); got != 0 {
		t.Errorf("feed length = %d, want 0", got)
	}
}

func TestWatchDeliversMutations(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "u1", "u1@x.y", domain.RoleUser)
	ctx := context.Background()

	feed, cancel := s.Watch()

	p, err := s.AddProject(ctx, root, domain.Project{Name: "P"})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	// Delivery happens inside the mutation, so the record is already
	// buffered when AddProject returns.
	select {
	case n := <-feed:
		if n.Type != domain.NotifyProjectCreated || n.UserID != "u1" {
			t.Errorf("got %s for %s, want project_created for u1", n.Type, n.UserID)
		}
		if n.Data["projectId"] != p.ID {
			t.Errorf("payload project = %v, want %s", n.Data["projectId"], p.ID)
		}
	default:
		t.Fatal("no notification buffered after the mutation")
	}

	cancel()
	if _, ok := <-feed; ok {
		t.Error("cancel must close the channel")
	}
	cancel() // idempotent

	// Mutations after cancel must not panic on the removed watcher.
	if _, err := s.AddProject(ctx, root, domain.Project{Name: "Q"}); err != nil {
		t.Fatalf("AddProject after cancel: %v", err)
	}
}
