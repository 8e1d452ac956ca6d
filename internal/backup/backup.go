// Package backup writes periodic JSON snapshots of all collections.
// Snapshots only run while settings.autoBackup is enabled; the schedule is a
// standard five-field cron spec.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/store"
)

// Snapshot is the on-disk backup document.
type Snapshot struct {
	TakenAt       time.Time            `json:"takenAt"`
	Users         []domain.User        `json:"users"`
	Divisions     []domain.Division    `json:"divisions"`
	Units         []domain.Unit        `json:"units"`
	Projects      []domain.Project     `json:"projects"`
	BudgetEntries []domain.BudgetEntry `json:"budgetEntries"`
	BudgetCodes   []domain.BudgetCode  `json:"budgetCodes"`
	Settings      domain.AppSettings   `json:"settings"`
}

// Runner schedules snapshots of the domain store.
type Runner struct {
	store    *store.Store
	dir      string
	schedule cron.Schedule
	keep     int
	logger   *slog.Logger
}

// New creates a Runner. The schedule is a five-field cron expression.
func New(st *store.Store, dir, spec string, keep int, logger *slog.Logger) (*Runner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing backup schedule %q: %w", spec, err)
	}
	return &Runner{
		store:    st,
		dir:      dir,
		schedule: schedule,
		keep:     keep,
		logger:   logger,
	}, nil
}

// Run blocks until the context is cancelled, taking a snapshot at each
// scheduled tick while auto-backup is enabled in settings.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("backup runner started", slog.String("dir", r.dir))
	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("backup runner stopped")
			return
		case <-timer.C:
		}

		if !r.store.Settings().AutoBackup {
			continue
		}
		if path, err := r.Take(); err != nil {
			r.logger.Error("backup failed", slog.String("error", err.Error()))
		} else {
			r.logger.Info("backup written", slog.String("path", path))
		}
	}
}

// Take writes one snapshot immediately and prunes old ones.
func (r *Runner) Take() (string, error) {
	snap := Snapshot{
		TakenAt:       time.Now().UTC(),
		Users:         r.store.Users(),
		Divisions:     r.store.Divisions(),
		Units:         r.store.Units(),
		Projects:      r.store.Projects(),
		BudgetEntries: r.store.BudgetEntries(),
		BudgetCodes:   r.store.BudgetCodes(),
		Settings:      r.store.Settings(),
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}
	name := fmt.Sprintf("pcrtrack-%s.json", snap.TakenAt.Format("20060102-150405"))
	path := filepath.Join(r.dir, name)

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	if err := r.prune(); err != nil {
		r.logger.Warn("pruning old backups failed", slog.String("error", err.Error()))
	}
	return path, nil
}

// prune deletes the oldest snapshots beyond the retention count.
func (r *Runner) prune() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "pcrtrack-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= r.keep {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-r.keep] {
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			return err
		}
	}
	return nil
}
