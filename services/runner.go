package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"soundry/types"
)

const (
	// diagnosticLimit bounds the captured tail of each output stream.
	diagnosticLimit = 16 * 1024
	// waitDelay bounds how long Wait blocks on output pipes after a kill.
	waitDelay = 2 * time.Second
)

// JobResult is the outcome of one tool invocation.
type JobResult struct {
	State         types.JobState
	FirstArtifact string
	Produced      []string // names moved into the download directory
	Diagnostic    string
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Kind returns the error kind of a failed result, or "".
func (r JobResult) Kind() ErrorKind {
	var jobErr *JobError
	if errors.As(r.Err, &jobErr) {
		return jobErr.Kind
	}
	return ""
}

// Runner executes fetch tools in isolated staging directories with a hard
// wall-clock bound and moves what they produce into the download directory.
type Runner struct {
	root          Root
	fetchTimeout  time.Duration
	searchTimeout time.Duration
}

// NewRunner creates a runner writing into root
func NewRunner(root Root, fetchTimeout, searchTimeout time.Duration) *Runner {
	return &Runner{
		root:          root,
		fetchTimeout:  fetchTimeout,
		searchTimeout: searchTimeout,
	}
}

// Run fetches target with f. started is called once the process is running.
// Run returns when the process has exited or been killed on timeout.
func (r *Runner) Run(ctx context.Context, f Fetcher, target, format string, started func(time.Time)) JobResult {
	result := JobResult{StartedAt: time.Now()}
	finish := func(state types.JobState, err error) JobResult {
		result.State = state
		result.Err = err
		result.FinishedAt = time.Now()
		var jobErr *JobError
		if errors.As(err, &jobErr) {
			result.Diagnostic = jobErr.Diagnostic
		}
		return result
	}

	target = strings.TrimSpace(target)
	if target == "" {
		return finish(types.JobStateFailed, ErrEmptyTarget)
	}
	format = NormalizeFormat(format)

	staging := filepath.Join(r.root.Dir(), StagingDirName, uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return finish(types.JobStateFailed, &JobError{Kind: KindToolFailure, Err: fmt.Errorf("create staging dir: %w", err)})
	}

	spec := f.FetchCommand(target, format, staging)

	runCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	cmd := toolCommand(runCtx, spec)
	cmd.Dir = staging
	stdout := newTailBuffer(diagnosticLimit)
	stderr := newTailBuffer(diagnosticLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Printf("Executing %s for %s (%s)", spec.Binary, target, f.Source())
	if err := cmd.Start(); err != nil {
		os.RemoveAll(staging)
		return finish(types.JobStateFailed, &JobError{Kind: KindToolFailure, Diagnostic: err.Error(), Err: err})
	}
	result.StartedAt = time.Now()
	if started != nil {
		started(result.StartedAt)
	}

	waitErr := cmd.Wait()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		// Partial output stays in staging for the janitor.
		return finish(types.JobStateTimedOut, &JobError{
			Kind:       KindToolTimeout,
			Diagnostic: diagnostic(stderr, stdout),
			Err:        fmt.Errorf("exceeded %s", r.fetchTimeout),
		})
	}

	produced, first, collectErr := r.collect(staging)
	result.Produced = produced
	result.FirstArtifact = first
	if collectErr != nil {
		log.Printf("Warning: collecting output of %s: %v", target, collectErr)
	}
	if err := os.RemoveAll(staging); err != nil {
		log.Printf("Warning: could not remove staging dir %s: %v", staging, err)
	}

	switch {
	case waitErr != nil && (first == "" || !f.TolerantBatch()):
		return finish(types.JobStateFailed, &JobError{
			Kind:       KindToolFailure,
			Diagnostic: diagnostic(stderr, stdout),
			Err:        waitErr,
		})
	case first == "":
		return finish(types.JobStateFailed, &JobError{
			Kind:       KindNoOutputProduced,
			Diagnostic: diagnostic(stderr, stdout),
			Err:        collectErr,
		})
	}

	if waitErr != nil {
		result.Diagnostic = diagnostic(stderr, stdout)
	}
	result.State = types.JobStateSucceeded
	result.FinishedAt = time.Now()
	return result
}

type producedFile struct {
	name    string
	modTime time.Time
	audio   bool
}

// collect moves audio and image files from staging into the root. It returns
// the moved names and the earliest produced audio file.
func (r *Runner) collect(staging string) ([]string, string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return nil, "", err
	}

	var files []producedFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !IsAudio(name) && !IsImage(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, producedFile{name: name, modTime: info.ModTime(), audio: IsAudio(name)})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].name < files[j].name
	})

	var moved []string
	var first string
	var errs []error
	for _, file := range files {
		src := filepath.Join(staging, file.name)
		dst := filepath.Join(r.root.Dir(), file.name)
		if err := os.Rename(src, dst); err != nil {
			errs = append(errs, err)
			continue
		}
		moved = append(moved, file.name)
		if file.audio && first == "" {
			first = file.name
		}
	}
	return moved, first, errors.Join(errs...)
}

// Search runs the source's search command under the search timeout and
// returns its non-empty output lines.
func (r *Runner) Search(ctx context.Context, f Fetcher, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	spec := f.SearchCommand(query)
	cmd := toolCommand(runCtx, spec)
	stdout := newTailBuffer(diagnosticLimit * 4)
	stderr := newTailBuffer(diagnosticLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &JobError{Kind: KindToolTimeout, Diagnostic: stderr.String(), Err: fmt.Errorf("exceeded %s", r.searchTimeout)}
	}
	if err != nil {
		return nil, &JobError{Kind: KindToolFailure, Diagnostic: stderr.String(), Err: err}
	}

	var results []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			results = append(results, line)
		}
	}
	return results, nil
}

// toolCommand starts the tool in its own process group. Cancelling ctx kills
// the whole group, including encoders the tool spawned.
func toolCommand(ctx context.Context, spec ExecSpec) *exec.Cmd {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

func diagnostic(stderr, stdout *tailBuffer) string {
	if s := strings.TrimSpace(stderr.String()); s != "" {
		return s
	}
	return strings.TrimSpace(stdout.String())
}

// tailBuffer is an io.Writer that keeps only the last limit bytes.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
