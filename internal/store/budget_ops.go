package store

import (
	"context"
	"fmt"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// EntryUpdate is a partial budget-entry payload. Nil fields are left
// unchanged.
type EntryUpdate struct {
	ProjectID    *string           `json:"projectId,omitempty"`
	BudgetCodeID *string           `json:"budgetCodeId,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Amount       *float64          `json:"amount,omitempty"`
	Type         *domain.EntryType `json:"type,omitempty"`
	Category     *string           `json:"category,omitempty"`
	Date         *string           `json:"date,omitempty"`
}

// AddBudgetEntry creates an entry and maintains the derived spent fields:
// an expense increments its project's and budget code's spent.
func (s *Store) AddBudgetEntry(ctx context.Context, actor Actor, e domain.BudgetEntry) (*domain.BudgetEntry, error) {
	if e.ProjectID == "" {
		return nil, missing("projectId")
	}
	if e.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if e.Type == "" {
		e.Type = domain.EntryExpense
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pi := s.projectIndex(e.ProjectID)
	if pi < 0 {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, e.ProjectID)
	}
	project := s.projects[pi]

	// Denormalized org references default from the project's unit.
	if e.UnitID == "" {
		e.UnitID = project.UnitID
	}
	if e.DivisionID == "" {
		e.DivisionID = s.divisionOfUnit(e.UnitID)
	}
	e.CreatedBy = actor.ID

	saved, err := s.backend.BudgetEntries().Create(ctx, &e)
	s.recordMutation("budget_entry", "add", err)
	if err != nil {
		return nil, err
	}
	s.entries = append(s.entries, *saved)

	if saved.Type == domain.EntryExpense {
		if err := s.adjustProjectSpent(ctx, saved.ProjectID, saved.Amount); err != nil {
			return nil, err
		}
		if saved.BudgetCodeID != "" {
			if err := s.adjustCodeSpent(ctx, saved.BudgetCodeID, saved.Amount); err != nil {
				return nil, err
			}
		}

		// Recipients: the project's assigned users plus its creator, never
		// the entry's own creator.
		recipients := excludeID(unionIDs(project.AssignedUsers, project.CreatedBy), actor.ID)
		if len(recipients) > 0 {
			s.notify(ctx, onlyUsers(recipients), domain.NotifyBudgetEntryAdded,
				"Expense added",
				fmt.Sprintf("An expense of %.2f was added to project %q", saved.Amount, project.Name),
				map[string]any{"projectId": project.ID, "entryId": saved.ID, "amount": saved.Amount},
			)
		}

		if pi := s.projectIndex(saved.ProjectID); pi >= 0 {
			s.checkProjectBudget(ctx, &s.projects[pi])
		}
		if saved.BudgetCodeID != "" {
			if ci := s.codeIndex(saved.BudgetCodeID); ci >= 0 {
				s.checkCodeBudget(ctx, &s.codes[ci])
			}
		}
	}

	out := *saved
	return &out, nil
}

// UpdateBudgetEntry merges a partial update. The old contribution to the
// derived spent fields is removed and the new one applied, so moving an
// entry between projects or codes keeps both sides consistent.
func (s *Store) UpdateBudgetEntry(ctx context.Context, actor Actor, id string, upd EntryUpdate) (*domain.BudgetEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.entryIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: budget entry %s", ErrNotFound, id)
	}
	prev := s.entries[i]

	updated := prev
	if upd.ProjectID != nil {
		if s.projectIndex(*upd.ProjectID) < 0 {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, *upd.ProjectID)
		}
		updated.ProjectID = *upd.ProjectID
	}
	if upd.BudgetCodeID != nil {
		updated.BudgetCodeID = *upd.BudgetCodeID
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
	}
	if upd.Amount != nil {
		if *upd.Amount <= 0 {
			return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
		}
		updated.Amount = *upd.Amount
	}
	if upd.Type != nil {
		updated.Type = *upd.Type
	}
	if upd.Category != nil {
		updated.Category = *upd.Category
	}
	if upd.Date != nil {
		updated.Date = *upd.Date
	}

	saved, err := s.backend.BudgetEntries().Update(ctx, &updated)
	s.recordMutation("budget_entry", "update", err)
	if err != nil {
		return nil, err
	}
	s.entries[i] = *saved

	// Remove the old contribution, apply the new one.
	if prev.Type == domain.EntryExpense {
		if err := s.adjustProjectSpent(ctx, prev.ProjectID, -prev.Amount); err != nil {
			return nil, err
		}
		if prev.BudgetCodeID != "" {
			if err := s.adjustCodeSpent(ctx, prev.BudgetCodeID, -prev.Amount); err != nil {
				return nil, err
			}
		}
	}
	if saved.Type == domain.EntryExpense {
		if err := s.adjustProjectSpent(ctx, saved.ProjectID, saved.Amount); err != nil {
			return nil, err
		}
		if saved.BudgetCodeID != "" {
			if err := s.adjustCodeSpent(ctx, saved.BudgetCodeID, saved.Amount); err != nil {
				return nil, err
			}
		}
		if pi := s.projectIndex(saved.ProjectID); pi >= 0 {
			s.checkProjectBudget(ctx, &s.projects[pi])
		}
		if saved.BudgetCodeID != "" {
			if ci := s.codeIndex(saved.BudgetCodeID); ci >= 0 {
				s.checkCodeBudget(ctx, &s.codes[ci])
			}
		}
	}

	out := *saved
	return &out, nil
}

// DeleteBudgetEntry removes an entry and reverses its contribution to the
// derived spent fields.
func (s *Store) DeleteBudgetEntry(ctx context.Context, _ Actor, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.entryIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: budget entry %s", ErrNotFound, id)
	}
	e := s.entries[i]

	err := s.backend.BudgetEntries().Delete(ctx, id)
	s.recordMutation("budget_entry", "delete", err)
	if err != nil {
		return err
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)

	if e.Type == domain.EntryExpense {
		if err := s.adjustProjectSpent(ctx, e.ProjectID, -e.Amount); err != nil {
			return err
		}
		if e.BudgetCodeID != "" {
			if err := s.adjustCodeSpent(ctx, e.BudgetCodeID, -e.Amount); err != nil {
				return err
			}
		}
	}
	return nil
}

// adjustProjectSpent applies a delta to a project's spent, flooring at zero,
// and persists the new value. A missing project is a no-op (the entry may
// outlive its project briefly during cascades). Callers hold s.mu.
func (s *Store) adjustProjectSpent(ctx context.Context, projectID string, delta float64) error {
	i := s.projectIndex(projectID)
	if i < 0 {
		return nil
	}
	updated := s.projects[i]
	updated.Spent += delta
	if updated.Spent < 0 {
		updated.Spent = 0
	}
	saved, err := s.backend.Projects().Update(ctx, &updated)
	if err != nil {
		return fmt.Errorf("updating project spent: %w", err)
	}
	s.projects[i] = *saved
	return nil
}

// adjustCodeSpent is the budget-code counterpart of adjustProjectSpent.
// Callers hold s.mu.
func (s *Store) adjustCodeSpent(ctx context.Context, codeID string, delta float64) error {
	i := s.codeIndex(codeID)
	if i < 0 {
		return nil
	}
	updated := s.codes[i]
	updated.Spent += delta
	if updated.Spent < 0 {
		updated.Spent = 0
	}
	saved, err := s.backend.BudgetCodes().Update(ctx, &updated)
	if err != nil {
		return fmt.Errorf("updating budget code spent: %w", err)
	}
	s.codes[i] = *saved
	return nil
}

// divisionOfUnit resolves a unit's owning division, or "". Callers hold s.mu.
func (s *Store) divisionOfUnit(unitID string) string {
	if unitID == "" {
		return ""
	}
	for i := range s.units {
		if s.units[i].ID == unitID {
			return s.units[i].DivisionID
		}
	}
	return ""
}

// unionIDs appends extra to ids if absent.
func unionIDs(ids []string, extra string) []string {
	for _, id := range ids {
		if id == extra {
			return ids
		}
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, extra)
}
