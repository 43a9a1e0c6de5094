package services

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SweepReport summarizes one janitor pass.
type SweepReport struct {
	Scanned     int `json:"scanned"`
	Deleted     int `json:"deleted"`
	AlreadyGone int `json:"alreadyGone"` // files that vanished before the janitor removed them
	Errors      int `json:"errors"`
}

// Janitor deletes files older than maxAge anywhere under the download
// directory, once per interval. It takes no locks against readers; every
// reader treats a vanished file as skipped.
type Janitor struct {
	root     Root
	maxAge   time.Duration
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time

	sweepMu sync.Mutex
	hooksMu sync.Mutex
	hooks   []func(cutoff time.Time)
}

// NewJanitor creates a janitor for root
func NewJanitor(root Root, maxAge, interval time.Duration, logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Janitor{
		root:     root,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// OnSweep registers fn to run after every sweep with the sweep's cutoff time.
func (j *Janitor) OnSweep(fn func(cutoff time.Time)) {
	j.hooksMu.Lock()
	defer j.hooksMu.Unlock()
	j.hooks = append(j.hooks, fn)
}

// Run sweeps immediately and then once per interval until ctx is cancelled.
// The interval is measured from the end of one sweep to the start of the next.
func (j *Janitor) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Println("Janitor: stopped")
			return
		case <-timer.C:
			j.safeSweep(ctx)
			timer.Reset(j.interval)
		}
	}
}

func (j *Janitor) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Printf("Janitor: sweep panicked: %v", r)
		}
	}()
	report := j.Sweep(ctx)
	j.logger.Printf("Janitor: scanned %d, deleted %d, already gone %d, errors %d",
		report.Scanned, report.Deleted, report.AlreadyGone, report.Errors)
}

// Sweep performs one pass. Files whose age is at least maxAge are deleted.
// Per-file failures are logged and counted; they never stop the pass.
func (j *Janitor) Sweep(ctx context.Context) SweepReport {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	var report SweepReport
	cutoff := j.now().Add(-j.maxAge)

	err := filepath.WalkDir(j.root.Dir(), func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			report.Errors++
			j.logger.Printf("Janitor: error accessing %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		report.Scanned++
		presence, info, err := observe(path)
		if err != nil {
			report.Errors++
			j.logger.Printf("Janitor: error checking %s: %v", path, err)
			return nil
		}
		if presence == Gone {
			report.AlreadyGone++
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				report.AlreadyGone++
				return nil
			}
			report.Errors++
			j.logger.Printf("Janitor: error deleting %s: %v", path, err)
			return nil
		}
		report.Deleted++
		j.logger.Printf("Janitor deleted expired file: %s", d.Name())
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		report.Errors++
		j.logger.Printf("Janitor: walk error: %v", err)
	}

	j.pruneStaging(cutoff)

	j.hooksMu.Lock()
	hooks := append([]func(time.Time){}, j.hooks...)
	j.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(cutoff)
	}

	return report
}

// pruneStaging removes expired, empty per-job staging directories.
func (j *Janitor) pruneStaging(cutoff time.Time) {
	staging := filepath.Join(j.root.Dir(), StagingDirName)
	entries, err := os.ReadDir(staging)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		// Fails harmlessly when a running job still has files in it.
		_ = os.Remove(filepath.Join(staging, entry.Name()))
	}
}
