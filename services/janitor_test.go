package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestJanitorSweepDeletesExpiredFiles(t *testing.T) {
	root := newTestRoot(t)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, root, "old.mp3", old)
	writeFile(t, root, "old.jpg", old)
	writeFile(t, root, filepath.Join("nested", "old.flac"), old)
	writeFile(t, root, "fresh.mp3", time.Now())

	report := NewJanitor(root, time.Hour, time.Hour, quietLogger()).Sweep(context.Background())

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 3, report.Deleted)
	assert.Zero(t, report.Errors)
	assert.NoFileExists(t, filepath.Join(root.Dir(), "old.mp3"))
	assert.NoFileExists(t, filepath.Join(root.Dir(), "old.jpg"))
	assert.NoFileExists(t, filepath.Join(root.Dir(), "nested", "old.flac"))
	assert.FileExists(t, filepath.Join(root.Dir(), "fresh.mp3"))
}

func TestJanitorSweepBoundaryAge(t *testing.T) {
	root := newTestRoot(t)
	now := time.Now()
	writeFile(t, root, "exact.mp3", now.Add(-time.Hour))
	writeFile(t, root, "younger.mp3", now.Add(-time.Hour+time.Minute))

	janitor := NewJanitor(root, time.Hour, time.Hour, quietLogger())
	janitor.now = func() time.Time { return now }
	janitor.Sweep(context.Background())

	assert.NoFileExists(t, filepath.Join(root.Dir(), "exact.mp3"))
	assert.FileExists(t, filepath.Join(root.Dir(), "younger.mp3"))
}

func TestJanitorSweepZeroMaxAgeDeletesEverything(t *testing.T) {
	root := newTestRoot(t)
	writeFile(t, root, "a.mp3", time.Time{})
	writeFile(t, root, "b.png", time.Time{})

	report := NewJanitor(root, 0, time.Hour, quietLogger()).Sweep(context.Background())

	assert.Equal(t, 2, report.Deleted)
	entries, err := os.ReadDir(root.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJanitorConcurrentSweepsDoNotFail(t *testing.T) {
	root := newTestRoot(t)
	const files = 200
	for i := 0; i < files; i++ {
		writeFile(t, root, fmt.Sprintf("track-%03d.mp3", i), time.Time{})
	}

	a := NewJanitor(root, 0, time.Hour, quietLogger())
	b := NewJanitor(root, 0, time.Hour, quietLogger())

	var wg sync.WaitGroup
	reports := make([]SweepReport, 2)
	for i, j := range []*Janitor{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = j.Sweep(context.Background())
		}()
	}
	wg.Wait()

	assert.Zero(t, reports[0].Errors)
	assert.Zero(t, reports[1].Errors)
	assert.Equal(t, files, reports[0].Deleted+reports[1].Deleted)
	entries, err := os.ReadDir(root.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJanitorSweepPrunesStaging(t *testing.T) {
	root := newTestRoot(t)
	old := time.Now().Add(-2 * time.Hour)
	stale := filepath.Join(root.Dir(), StagingDirName, "stale-job")
	active := filepath.Join(root.Dir(), StagingDirName, "active-job")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(active, 0o755))
	writeFile(t, root, filepath.Join(StagingDirName, "active-job", "partial.mp3"), time.Now())
	require.NoError(t, os.Chtimes(stale, old, old))

	NewJanitor(root, time.Hour, time.Hour, quietLogger()).Sweep(context.Background())

	assert.NoDirExists(t, stale)
	assert.FileExists(t, filepath.Join(active, "partial.mp3"))
}

func TestJanitorMissingRoot(t *testing.T) {
	root, err := NewRoot(filepath.Join(t.TempDir(), "gone"))
	require.NoError(t, err)

	report := NewJanitor(root, 0, time.Hour, quietLogger()).Sweep(context.Background())

	assert.Zero(t, report.Scanned)
	assert.Zero(t, report.Errors)
}

func TestJanitorRunSweepsAndStops(t *testing.T) {
	root := newTestRoot(t)
	writeFile(t, root, "a.mp3", time.Now().Add(-2*time.Hour))

	janitor := NewJanitor(root, time.Hour, time.Hour, quietLogger())
	swept := make(chan time.Time, 1)
	janitor.OnSweep(func(cutoff time.Time) {
		select {
		case swept <- cutoff:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(stopped)
	}()

	select {
	case cutoff := <-swept:
		assert.WithinDuration(t, time.Now().Add(-time.Hour), cutoff, 5*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not sweep on start")
	}
	assert.NoFileExists(t, filepath.Join(root.Dir(), "a.mp3"))

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestJanitorRunSurvivesPanickingHook(t *testing.T) {
	root := newTestRoot(t)
	janitor := NewJanitor(root, time.Hour, 10*time.Millisecond, quietLogger())

	calls := make(chan struct{}, 10)
	janitor.OnSweep(func(time.Time) {
		calls <- struct{}{}
		panic("hook exploded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go janitor.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("janitor stopped sweeping after a panic")
		}
	}
}
