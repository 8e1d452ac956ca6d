package store

import (
	"context"
	"fmt"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// AddDivision creates a division.
func (s *Store) AddDivision(ctx context.Context, actor Actor, d domain.Division) (*domain.Division, error) {
	if d.Name == "" {
		return nil, missing("division name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d.CreatedBy = actor.ID
	saved, err := s.backend.Divisions().Create(ctx, &d)
	s.recordMutation("division", "add", err)
	if err != nil {
		return nil, err
	}
	s.divisions = append(s.divisions, *saved)

	out := *saved
	return &out, nil
}

// RenameDivision changes a division's display name.
func (s *Store) RenameDivision(ctx context.Context, _ Actor, id, name string) (*domain.Division, error) {
	if name == "" {
		return nil, missing("division name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.divisions {
		if s.divisions[i].ID != id {
			continue
		}
		updated := s.divisions[i]
		updated.Name = name
		saved, err := s.backend.Divisions().Update(ctx, &updated)
		s.recordMutation("division", "rename", err)
		if err != nil {
			return nil, err
		}
		s.divisions[i] = *saved
		out := *saved
		return &out, nil
	}
	return nil, fmt.Errorf("%w: division %s", ErrNotFound, id)
}

// DeleteDivision removes a division and cascades: its units are deleted and
// any project or entry reference to the division or its units is cleared.
func (s *Store) DeleteDivision(ctx context.Context, _ Actor, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.divisions {
		if s.divisions[i].ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: division %s", ErrNotFound, id)
	}

	// Collect and drop the division's units.
	removedUnits := make(map[string]bool)
	keptUnits := s.units[:0:0]
	for _, u := range s.units {
		if u.DivisionID != id {
			keptUnits = append(keptUnits, u)
			continue
		}
		if err := s.backend.Units().Delete(ctx, u.ID); err != nil {
			s.recordMutation("division", "delete", err)
			return fmt.Errorf("cascading unit delete: %w", err)
		}
		removedUnits[u.ID] = true
	}
	s.units = keptUnits

	if err := s.clearOrgRefs(ctx, id, removedUnits); err != nil {
		s.recordMutation("division", "delete", err)
		return err
	}

	err := s.backend.Divisions().Delete(ctx, id)
	s.recordMutation("division", "delete", err)
	if err != nil {
		return err
	}
	for i := range s.divisions {
		if s.divisions[i].ID == id {
			s.divisions = append(s.divisions[:i], s.divisions[i+1:]...)
			break
		}
	}
	return nil
}

// clearOrgRefs blanks project and entry references to a removed division or
// any of the given removed units. Callers hold s.mu.
func (s *Store) clearOrgRefs(ctx context.Context, divisionID string, removedUnits map[string]bool) error {
	for i := range s.projects {
		if !removedUnits[s.projects[i].UnitID] {
			continue
		}
		updated := s.projects[i]
		updated.UnitID = ""
		saved, err := s.backend.Projects().Update(ctx, &updated)
		if err != nil {
			return fmt.Errorf("clearing project unit reference: %w", err)
		}
		s.projects[i] = *saved
	}
	for i := range s.entries {
		e := s.entries[i]
		changed := false
		if removedUnits[e.UnitID] {
			e.UnitID = ""
			changed = true
		}
		if divisionID != "" && e.DivisionID == divisionID {
			e.DivisionID = ""
			changed = true
		}
		if !changed {
			continue
		}
		saved, err := s.backend.BudgetEntries().Update(ctx, &e)
		if err != nil {
			return fmt.Errorf("clearing entry org reference: %w", err)
		}
		s.entries[i] = *saved
	}
	return nil
}

// AddUnit creates a unit under an existing division.
func (s *Store) AddUnit(ctx context.Context, actor Actor, u domain.Unit) (*domain.Unit, error) {
	if u.Name == "" {
		return nil, missing("unit name")
	}
	if u.DivisionID == "" {
		return nil, missing("divisionId")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists := false
	for i := range s.divisions {
		if s.divisions[i].ID == u.DivisionID {
			exists = true
			break
		}
	}
	if !exists {
		return nil, fmt.Errorf("%w: division %s", ErrNotFound, u.DivisionID)
	}

	u.CreatedBy = actor.ID
	saved, err := s.backend.Units().Create(ctx, &u)
	s.recordMutation("unit", "add", err)
	if err != nil {
		return nil, err
	}
	s.units = append(s.units, *saved)

	out := *saved
	return &out, nil
}

// RenameUnit changes a unit's display name.
func (s *Store) RenameUnit(ctx context.Context, _ Actor, id, name string) (*domain.Unit, error) {
	if name == "" {
		return nil, missing("unit name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.units {
		if s.units[i].ID != id {
			continue
		}
		updated := s.units[i]
		updated.Name = name
		saved, err := s.backend.Units().Update(ctx, &updated)
		s.recordMutation("unit", "rename", err)
		if err != nil {
			return nil, err
		}
		s.units[i] = *saved
		out := *saved
		return &out, nil
	}
	return nil, fmt.Errorf("%w: unit %s", ErrNotFound, id)
}

// DeleteUnit removes a unit and clears project and entry references to it.
func (s *Store) DeleteUnit(ctx context.Context, _ Actor, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.units {
		if s.units[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: unit %s", ErrNotFound, id)
	}

	if err := s.clearOrgRefs(ctx, "", map[string]bool{id: true}); err != nil {
		s.recordMutation("unit", "delete", err)
		return err
	}

	err := s.backend.Units().Delete(ctx, id)
	s.recordMutation("unit", "delete", err)
	if err != nil {
		return err
	}
	s.units = append(s.units[:idx], s.units[idx+1:]...)
	return nil
}
