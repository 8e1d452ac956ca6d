package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/meistericham/pcrtrack/internal/authz"
	"github.com/meistericham/pcrtrack/internal/domain"
)

// ProjectUpdate is a partial project payload. Nil fields are left unchanged.
// Spent is never caller-supplied; it is derived from entries.
type ProjectUpdate struct {
	Name          *string                 `json:"name,omitempty"`
	Description   *string                 `json:"description,omitempty"`
	Status        *domain.ProjectStatus   `json:"status,omitempty"`
	Priority      *domain.ProjectPriority `json:"priority,omitempty"`
	StartDate     *string                 `json:"startDate,omitempty"`
	EndDate       *string                 `json:"endDate,omitempty"`
	Budget        *float64                `json:"budget,omitempty"`
	UnitID        *string                 `json:"unitId,omitempty"`
	AssignedUsers []string                `json:"assignedUsers,omitempty"`
	BudgetCodes   []string                `json:"budgetCodes,omitempty"`
}

// AddProject creates a project. Status and priority default from settings
// when absent.
func (s *Store) AddProject(ctx context.Context, actor Actor, p domain.Project) (*domain.Project, error) {
	if p.Name == "" {
		return nil, missing("project name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == "" {
		p.Status = s.settings.DefaultProjectStatus
	}
	if p.Priority == "" {
		p.Priority = s.settings.DefaultProjectPriority
	}
	if p.AssignedUsers == nil {
		p.AssignedUsers = []string{}
	}
	if p.BudgetCodes == nil {
		p.BudgetCodes = []string{}
	}
	p.Spent = 0
	p.CreatedBy = actor.ID

	saved, err := s.backend.Projects().Create(ctx, &p)
	s.recordMutation("project", "add", err)
	if err != nil {
		return nil, err
	}
	s.projects = append(s.projects, *saved)

	s.notify(ctx, everyoneExcept(actor.ID), domain.NotifyProjectCreated,
		"New project",
		fmt.Sprintf("Project %q was created", saved.Name),
		map[string]any{"projectId": saved.ID},
	)
	if assigned := excludeID(saved.AssignedUsers, actor.ID); len(assigned) > 0 {
		s.notify(ctx, onlyUsers(assigned), domain.NotifyUserAssigned,
			"Assigned to project",
			fmt.Sprintf("You were assigned to project %q", saved.Name),
			map[string]any{"projectId": saved.ID},
		)
	}

	out := *saved
	return &out, nil
}

// UpdateProject merges a partial update into the project and fans out the
// resulting notifications: updated (with changed-field payload), newly
// assigned members only, completion transition, and the budget-usage alert.
func (s *Store) UpdateProject(ctx context.Context, actor Actor, id string, upd ProjectUpdate) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.projectIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	prev := s.projects[i]

	updated := prev
	var changed []string
	if upd.Name != nil && *upd.Name != prev.Name {
		updated.Name = *upd.Name
		changed = append(changed, "name")
	}
	if upd.Description != nil && *upd.Description != prev.Description {
		updated.Description = *upd.Description
		changed = append(changed, "description")
	}
	if upd.Status != nil && *upd.Status != prev.Status {
		updated.Status = *upd.Status
		changed = append(changed, "status")
	}
	if upd.Priority != nil && *upd.Priority != prev.Priority {
		updated.Priority = *upd.Priority
		changed = append(changed, "priority")
	}
	if upd.StartDate != nil && *upd.StartDate != prev.StartDate {
		updated.StartDate = *upd.StartDate
		changed = append(changed, "startDate")
	}
	if upd.EndDate != nil && *upd.EndDate != prev.EndDate {
		updated.EndDate = *upd.EndDate
		changed = append(changed, "endDate")
	}
	if upd.Budget != nil && *upd.Budget != prev.Budget {
		updated.Budget = *upd.Budget
		changed = append(changed, "budget")
	}
	if upd.UnitID != nil && *upd.UnitID != prev.UnitID {
		updated.UnitID = *upd.UnitID
		changed = append(changed, "unitId")
	}
	if upd.AssignedUsers != nil && !slices.Equal(upd.AssignedUsers, prev.AssignedUsers) {
		updated.AssignedUsers = upd.AssignedUsers
		changed = append(changed, "assignedUsers")
	}
	if upd.BudgetCodes != nil && !slices.Equal(upd.BudgetCodes, prev.BudgetCodes) {
		updated.BudgetCodes = upd.BudgetCodes
		changed = append(changed, "budgetCodes")
	}
	if len(changed) == 0 {
		out := prev
		return &out, nil
	}

	saved, err := s.backend.Projects().Update(ctx, &updated)
	s.recordMutation("project", "update", err)
	if err != nil {
		return nil, err
	}
	s.projects[i] = *saved

	s.notify(ctx, everyoneExcept(actor.ID), domain.NotifyProjectUpdated,
		"Project updated",
		fmt.Sprintf("Project %q was updated", saved.Name),
		map[string]any{"projectId": saved.ID, "changed": changed},
	)

	// Only members added by this update are notified, never the ones who
	// were already assigned.
	newMembers := excludeID(diffIDs(saved.AssignedUsers, prev.AssignedUsers), actor.ID)
	if len(newMembers) > 0 {
		s.notify(ctx, onlyUsers(newMembers), domain.NotifyUserAssigned,
			"Assigned to project",
			fmt.Sprintf("You were assigned to project %q", saved.Name),
			map[string]any{"projectId": saved.ID},
		)
	}

	if saved.Status == domain.StatusCompleted && prev.Status != domain.StatusCompleted {
		s.notify(ctx, everyone, domain.NotifyProjectCompleted,
			"Project completed",
			fmt.Sprintf("Project %q was marked completed", saved.Name),
			map[string]any{"projectId": saved.ID},
		)
	}

	s.checkProjectBudget(ctx, saved)

	out := *saved
	return &out, nil
}

// DeleteProject removes a project and cascades to its budget entries. Budget
// code contributions of the removed expense entries are reversed.
func (s *Store) DeleteProject(ctx context.Context, actor Actor, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.projectIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	p := s.projects[i]

	if !authz.CanDeleteProject(actor.Role, actor.ID, &p) {
		s.metrics.PermissionDenials.WithLabelValues("project", "delete").Inc()
		return authz.Denied("delete this project", actor.Role)
	}

	// Cascade: drop the project's entries, reversing their budget-code
	// contributions.
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.ProjectID != id {
			kept = append(kept, e)
			continue
		}
		if err := s.backend.BudgetEntries().Delete(ctx, e.ID); err != nil {
			s.recordMutation("project", "delete", err)
			return fmt.Errorf("cascading entry delete: %w", err)
		}
		if e.Type == domain.EntryExpense && e.BudgetCodeID != "" {
			if err := s.adjustCodeSpent(ctx, e.BudgetCodeID, -e.Amount); err != nil {
				return err
			}
		}
	}
	s.entries = kept

	err := s.backend.Projects().Delete(ctx, id)
	s.recordMutation("project", "delete", err)
	if err != nil {
		return err
	}
	s.projects = append(s.projects[:i], s.projects[i+1:]...)

	s.notify(ctx, everyoneExcept(actor.ID), domain.NotifyProjectUpdated,
		"Project deleted",
		fmt.Sprintf("Project %q was deleted", p.Name),
		map[string]any{"projectId": p.ID},
	)
	return nil
}

// diffIDs returns the ids in next that are absent from prev.
func diffIDs(next, prev []string) []string {
	seen := make(map[string]bool, len(prev))
	for _, id := range prev {
		seen[id] = true
	}
	var added []string
	for _, id := range next {
		if !seen[id] {
			added = append(added, id)
		}
	}
	return added
}

// excludeID filters one id out of a list.
func excludeID(ids []string, exclude string) []string {
	var out []string
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
