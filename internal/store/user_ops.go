package store

import (
	"context"
	"fmt"

	"github.com/meistericham/pcrtrack/internal/authz"
	"github.com/meistericham/pcrtrack/internal/domain"
)

// AddUser inserts a profile for a newly invited user and announces it to the
// existing admins, excluding the inviter.
func (s *Store) AddUser(ctx context.Context, actor Actor, u domain.User) (*domain.User, error) {
	if u.Email == "" {
		return nil, missing("email")
	}
	if !authz.CanManageUsers(actor.Role) {
		s.metrics.PermissionDenials.WithLabelValues("user", "add").Inc()
		return nil, authz.Denied("manage users", actor.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Name == "" {
		u.Name = domain.NameFromEmail(u.Email)
	}
	if u.Initials == "" {
		u.Initials = domain.InitialsFromName(u.Name)
	}
	if !u.Role.Valid() {
		u.Role = domain.RoleUser
	}

	saved, err := s.backend.Users().Create(ctx, &u)
	s.recordMutation("user", "add", err)
	if err != nil {
		return nil, err
	}

	// Fan out before the new user joins the collection so they are not
	// notified about their own invite.
	s.notify(ctx, adminsExcept(actor.ID), domain.NotifyUserAssigned,
		"New user",
		fmt.Sprintf("%s was invited", saved.Email),
		map[string]any{"userId": saved.ID},
	)
	s.users = append(s.users, *saved)

	out := *saved
	return &out, nil
}

// UpdateUser merges a partial update into a profile. The permission gate
// strips fields the actor may not change before anything is persisted: org
// assignment and role require super admin, and a super admin editing their
// own record can never change their role.
func (s *Store) UpdateUser(ctx context.Context, actor Actor, id string, upd authz.UserUpdate) (*domain.User, error) {
	upd = authz.FilterUserUpdate(actor.Role, actor.ID == id, upd)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.userIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}

	updated := s.users[i]
	if upd.Name != nil && *upd.Name != "" {
		updated.Name = *upd.Name
	}
	if upd.Initials != nil && *upd.Initials != "" {
		updated.Initials = *upd.Initials
	}
	if upd.Role != nil && upd.Role.Valid() {
		updated.Role = *upd.Role
	}
	if upd.DivisionID != nil {
		updated.DivisionID = *upd.DivisionID
	}
	if upd.UnitID != nil {
		updated.UnitID = *upd.UnitID
	}

	saved, err := s.backend.Users().Update(ctx, &updated)
	s.recordMutation("user", "update", err)
	if err != nil {
		return nil, err
	}
	s.users[i] = *saved

	out := *saved
	return &out, nil
}

// DeleteUser removes a profile and cascades: the user disappears from every
// project's assigned list and their notifications are purged.
func (s *Store) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if !authz.CanManageUsers(actor.Role) {
		s.metrics.PermissionDenials.WithLabelValues("user", "delete").Inc()
		return authz.Denied("manage users", actor.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.userIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}

	err := s.backend.Users().Delete(ctx, id)
	s.recordMutation("user", "delete", err)
	if err != nil {
		return err
	}
	s.users = append(s.users[:i], s.users[i+1:]...)

	for j := range s.projects {
		assigned := removeID(s.projects[j].AssignedUsers, id)
		if len(assigned) == len(s.projects[j].AssignedUsers) {
			continue
		}
		updated := s.projects[j]
		updated.AssignedUsers = assigned
		if saved, err := s.backend.Projects().Update(ctx, &updated); err == nil {
			s.projects[j] = *saved
		} else {
			s.projects[j].AssignedUsers = assigned
		}
	}

	if err := s.backend.Notifications().DeleteByUser(ctx, id); err != nil {
		return fmt.Errorf("purging notifications: %w", err)
	}
	kept := s.notifications[:0:0]
	for _, n := range s.notifications {
		if n.UserID != id {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return nil
}

// UpdateSettings applies a partial settings update. Super-admin-only fields
// (companyName, currency) submitted by a lesser role are silently dropped
// before the merge.
func (s *Store) UpdateSettings(ctx context.Context, actor Actor, upd authz.SettingsUpdate) (*domain.AppSettings, error) {
	upd = authz.FilterSettingsUpdate(actor.Role, upd)

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := authz.ApplySettingsUpdate(s.settings, upd)
	saved, err := s.backend.Settings().Save(ctx, &merged)
	s.recordMutation("settings", "update", err)
	if err != nil {
		return nil, err
	}
	s.settings = *saved

	out := *saved
	return &out, nil
}
