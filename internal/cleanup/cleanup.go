// Package cleanup provides background housekeeping for opendian.
//
// cleanup.go - Cron-scheduled janitor
//
// This file contains:
// - Janitor pruning stale tab bindings, old log files, and idle rate
//   limiter buckets on a cron schedule
//
// The janitor never deletes remote backend sessions; it only trims local
// state that has aged out.

package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aotsukiqx/opendian/internal/logger"
)

// cronParser accepts standard 5-field cron plus descriptors like @hourly
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks that a cron expression is parseable
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// BindingPruner removes tab bindings not updated within the retention
// window
type BindingPruner interface {
	PruneOlderThan(retention time.Duration) (int64, error)
}

// BucketResetter clears accumulated per-tab rate limiter state
type BucketResetter interface {
	Reset()
}

// Config holds janitor configuration
type Config struct {
	// Schedule is a cron expression (e.g. "@hourly")
	Schedule string

	// Retention ages out tab bindings and log files
	Retention time.Duration

	// LogDir is scanned for aged-out log files; empty disables log
	// pruning
	LogDir string
}

// Janitor runs periodic housekeeping on a cron schedule
type Janitor struct {
	cfg      Config
	bindings BindingPruner
	limiter  BucketResetter
	cron     *cron.Cron
}

// New creates a janitor. bindings and limiter may be nil to skip the
// corresponding task.
func New(cfg Config, bindings BindingPruner, limiter BucketResetter) *Janitor {
	return &Janitor{
		cfg:      cfg,
		bindings: bindings,
		limiter:  limiter,
	}
}

// Start schedules the janitor. Fails when the cron expression is invalid.
func (j *Janitor) Start() error {
	if err := ValidateSchedule(j.cfg.Schedule); err != nil {
		return err
	}

	j.cron = cron.New(cron.WithParser(cronParser))
	if _, err := j.cron.AddFunc(j.cfg.Schedule, j.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	j.cron.Start()

	logger.Slog().Info("cleanup scheduled", "schedule", j.cfg.Schedule, "retention", j.cfg.Retention)
	return nil
}

// Stop halts the schedule, waiting for an in-progress run to finish
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
		j.cron = nil
	}
}

// RunOnce performs all housekeeping tasks immediately
func (j *Janitor) RunOnce() {
	j.pruneBindings()
	j.pruneLogs()
	j.resetLimiters()
}

func (j *Janitor) pruneBindings() {
	if j.bindings == nil {
		return
	}

	pruned, err := j.bindings.PruneOlderThan(j.cfg.Retention)
	if err != nil {
		logger.Slog().Warn("binding prune failed", "error", err)
		return
	}
	if pruned > 0 {
		logger.Slog().Info("pruned stale tab bindings", "count", pruned)
	}
}

// pruneLogs removes aged-out opendian log files
func (j *Janitor) pruneLogs() {
	if j.cfg.LogDir == "" {
		return
	}

	cutoff := time.Now().Add(-j.cfg.Retention)
	entries, err := os.ReadDir(j.cfg.LogDir)
	if err != nil {
		return
	}

	var removed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "opendian-") || !strings.HasSuffix(name, ".log") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(j.cfg.LogDir, name)); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Slog().Info("removed old log files", "count", removed)
	}
}

func (j *Janitor) resetLimiters() {
	if j.limiter != nil {
		j.limiter.Reset()
	}
}
