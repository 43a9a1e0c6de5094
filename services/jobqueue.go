package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"soundry/types"
	"soundry/websocket"
)

// ErrQueueFull is returned when no more jobs can be buffered.
var ErrQueueFull = errors.New("job queue is full")

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

const queueCapacity = 100

// JobQueue interface defines the methods for managing fetch jobs
type JobQueue interface {
	Start(ctx context.Context)
	Submit(source types.JobSource, target, format string) (types.Job, error)
	Get(id string) (types.Job, bool)
	All() []types.Job
	Cancel(id string) bool
	Wait(ctx context.Context, id string) (types.Job, error)
	Prune(cutoff time.Time) int
}

type jobEntry struct {
	job     types.Job
	fetcher Fetcher
	claimed bool // taken by a worker; no longer cancellable
	done    chan struct{}
}

// jobQueue runs jobs on a fixed pool of workers. Job records are
// bookkeeping for clients only; artifacts are always read from the catalog.
type jobQueue struct {
	runner     *Runner
	tools      Tools
	hub        websocket.Hub
	maxWorkers int

	mu    sync.RWMutex
	jobs  map[string]*jobEntry
	queue chan string
}

// NewJobQueue creates a new job queue
func NewJobQueue(runner *Runner, tools Tools, maxWorkers int, hub websocket.Hub) JobQueue {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &jobQueue{
		runner:     runner,
		tools:      tools,
		hub:        hub,
		maxWorkers: maxWorkers,
		jobs:       make(map[string]*jobEntry),
		queue:      make(chan string, queueCapacity),
	}
}

// Start launches the workers; they exit when ctx is cancelled
func (jq *jobQueue) Start(ctx context.Context) {
	for i := 0; i < jq.maxWorkers; i++ {
		go jq.worker(ctx)
	}
}

// Submit validates and queues a job
func (jq *jobQueue) Submit(source types.JobSource, target, format string) (types.Job, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.Job{}, ErrEmptyTarget
	}
	fetcher, err := NewFetcher(source, jq.tools)
	if err != nil {
		return types.Job{}, err
	}

	entry := &jobEntry{
		job: types.Job{
			ID:           uuid.New().String(),
			Source:       source,
			Target:       target,
			OutputFormat: NormalizeFormat(format),
			State:        types.JobStatePending,
			CreatedAt:    time.Now(),
		},
		fetcher: fetcher,
		done:    make(chan struct{}),
	}

	jq.mu.Lock()
	select {
	case jq.queue <- entry.job.ID:
		jq.jobs[entry.job.ID] = entry
	default:
		jq.mu.Unlock()
		return types.Job{}, ErrQueueFull
	}
	job := entry.job
	jq.mu.Unlock()

	jq.broadcast(job, "queued")
	return job, nil
}

// Get retrieves a snapshot of a job by ID
func (jq *jobQueue) Get(id string) (types.Job, bool) {
	jq.mu.RLock()
	defer jq.mu.RUnlock()
	entry, ok := jq.jobs[id]
	if !ok {
		return types.Job{}, false
	}
	return entry.job, true
}

// All returns snapshots of every job, newest first
func (jq *jobQueue) All() []types.Job {
	jq.mu.RLock()
	jobs := make([]types.Job, 0, len(jq.jobs))
	for _, entry := range jq.jobs {
		jobs = append(jobs, entry.job)
	}
	jq.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Cancel cancels a job that has not started yet
func (jq *jobQueue) Cancel(id string) bool {
	jq.mu.Lock()
	entry, ok := jq.jobs[id]
	if !ok || entry.claimed || entry.job.State != types.JobStatePending {
		jq.mu.Unlock()
		return false
	}
	now := time.Now()
	entry.job.State = types.JobStateCancelled
	entry.job.FinishedAt = &now
	close(entry.done)
	job := entry.job
	jq.mu.Unlock()

	jq.broadcast(job, "cancelled")
	return true
}

// Wait blocks until the job is finished or ctx is done
func (jq *jobQueue) Wait(ctx context.Context, id string) (types.Job, error) {
	jq.mu.RLock()
	entry, ok := jq.jobs[id]
	jq.mu.RUnlock()
	if !ok {
		return types.Job{}, ErrJobNotFound
	}

	select {
	case <-entry.done:
		job, _ := jq.Get(id)
		return job, nil
	case <-ctx.Done():
		job, _ := jq.Get(id)
		return job, ctx.Err()
	}
}

// Prune forgets finished jobs that ended before cutoff
func (jq *jobQueue) Prune(cutoff time.Time) int {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	removed := 0
	for id, entry := range jq.jobs {
		if entry.job.State.IsFinal() && entry.job.FinishedAt != nil && entry.job.FinishedAt.Before(cutoff) {
			delete(jq.jobs, id)
			removed++
		}
	}
	return removed
}

func (jq *jobQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-jq.queue:
			jq.process(ctx, id)
		}
	}
}

func (jq *jobQueue) process(ctx context.Context, id string) {
	jq.mu.Lock()
	entry, ok := jq.jobs[id]
	if !ok || entry.claimed || entry.job.State != types.JobStatePending {
		jq.mu.Unlock()
		return
	}
	entry.claimed = true
	job := entry.job
	jq.mu.Unlock()

	result := jq.runner.Run(ctx, entry.fetcher, job.Target, job.OutputFormat, func(started time.Time) {
		jq.update(id, func(j *types.Job) {
			j.State = types.JobStateRunning
			j.StartedAt = &started
		}, "running")
	})

	jq.update(id, func(j *types.Job) {
		finished := result.FinishedAt
		j.State = result.State
		j.FinishedAt = &finished
		j.Diagnostic = result.Diagnostic
		j.ErrorKind = string(result.Kind())
		j.FirstArtifact = result.FirstArtifact
		j.Produced = len(result.Produced)
		if j.ErrorKind == "" && result.Err != nil {
			j.Diagnostic = result.Err.Error()
		}
	}, string(result.State))

	close(entry.done)

	if result.Err != nil {
		log.Printf("Job %s failed: %v", id, result.Err)
	} else {
		log.Printf("Job %s completed successfully (%d files, first %q)", id, len(result.Produced), result.FirstArtifact)
	}
}

func (jq *jobQueue) update(id string, fn func(*types.Job), message string) {
	jq.mu.Lock()
	entry, ok := jq.jobs[id]
	if !ok {
		jq.mu.Unlock()
		return
	}
	fn(&entry.job)
	job := entry.job
	jq.mu.Unlock()

	jq.broadcast(job, message)
}

func (jq *jobQueue) broadcast(job types.Job, message string) {
	if jq.hub == nil {
		return
	}
	jq.hub.Broadcast(types.Event{
		Type:    types.EventJob,
		JobID:   job.ID,
		Job:     &job,
		Message: fmt.Sprintf("%s: %s", job.Target, message),
	})
}
