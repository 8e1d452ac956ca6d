package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// CodeUpdate is a partial budget-code payload. Nil fields are left
// unchanged. Spent is derived from entries, IsActive flips only through
// ToggleBudgetCode.
type CodeUpdate struct {
	Code        *string  `json:"code,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
}

// AddBudgetCode creates a budget code, active by default.
func (s *Store) AddBudgetCode(ctx context.Context, actor Actor, c domain.BudgetCode) (*domain.BudgetCode, error) {
	if c.Code == "" {
		return nil, missing("code")
	}
	if c.Name == "" {
		return nil, missing("name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.Spent = 0
	c.IsActive = true
	c.CreatedBy = actor.ID

	saved, err := s.backend.BudgetCodes().Create(ctx, &c)
	s.recordMutation("budget_code", "add", err)
	if err != nil {
		return nil, err
	}
	s.codes = append(s.codes, *saved)

	out := *saved
	return &out, nil
}

// UpdateBudgetCode merges a partial update and re-checks the usage alert
// when the allocation changed.
func (s *Store) UpdateBudgetCode(ctx context.Context, _ Actor, id string, upd CodeUpdate) (*domain.BudgetCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.codeIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: budget code %s", ErrNotFound, id)
	}
	updated := s.codes[i]

	budgetChanged := false
	if upd.Code != nil {
		updated.Code = *upd.Code
	}
	if upd.Name != nil {
		updated.Name = *upd.Name
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
	}
	if upd.Budget != nil && *upd.Budget != updated.Budget {
		updated.Budget = *upd.Budget
		budgetChanged = true
	}

	saved, err := s.backend.BudgetCodes().Update(ctx, &updated)
	s.recordMutation("budget_code", "update", err)
	if err != nil {
		return nil, err
	}
	s.codes[i] = *saved

	if budgetChanged {
		s.checkCodeBudget(ctx, &s.codes[i])
	}

	out := *saved
	return &out, nil
}

// ToggleBudgetCode flips isActive between its two stable states. The flip is
// applied optimistically and rolled back in memory if the write fails.
// Dependent entries are never touched.
func (s *Store) ToggleBudgetCode(ctx context.Context, _ Actor, id string) (*domain.BudgetCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.codeIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: budget code %s", ErrNotFound, id)
	}
	prev := s.codes[i]
	s.codes[i].IsActive = !prev.IsActive

	saved, err := s.backend.BudgetCodes().Update(ctx, &s.codes[i])
	s.recordMutation("budget_code", "toggle", err)
	if err != nil {
		s.codes[i] = prev
		return nil, err
	}
	s.codes[i] = *saved

	out := *saved
	return &out, nil
}

// DeleteBudgetCode removes a code and clears dangling references from
// entries and projects. Entry amounts are untouched.
func (s *Store) DeleteBudgetCode(ctx context.Context, _ Actor, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.codeIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: budget code %s", ErrNotFound, id)
	}

	err := s.backend.BudgetCodes().Delete(ctx, id)
	s.recordMutation("budget_code", "delete", err)
	if err != nil {
		return err
	}
	s.codes = append(s.codes[:i], s.codes[i+1:]...)

	for j := range s.entries {
		if s.entries[j].BudgetCodeID != id {
			continue
		}
		s.entries[j].BudgetCodeID = ""
		if saved, err := s.backend.BudgetEntries().Update(ctx, &s.entries[j]); err == nil {
			s.entries[j] = *saved
		} else {
			s.logger.Warn("clearing budget code reference failed",
				slog.String("entry_id", s.entries[j].ID),
				slog.String("error", err.Error()),
			)
		}
	}
	for j := range s.projects {
		refs := removeID(s.projects[j].BudgetCodes, id)
		if len(refs) == len(s.projects[j].BudgetCodes) {
			continue
		}
		s.projects[j].BudgetCodes = refs
		if saved, err := s.backend.Projects().Update(ctx, &s.projects[j]); err == nil {
			s.projects[j] = *saved
		} else {
			s.logger.Warn("clearing budget code reference failed",
				slog.String("project_id", s.projects[j].ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// removeID returns ids without the given id.
func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
