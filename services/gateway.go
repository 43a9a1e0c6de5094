package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"

	"soundry/types"
)

// Gateway composes the catalog, bundle streamer and job queue behind the
// operations exposed to clients. It owns no state.
type Gateway struct {
	root    Root
	catalog *Catalog
	bundles *BundleStreamer
	jobs    JobQueue
	runner  *Runner
	tools   Tools
}

// NewGateway creates a gateway over root
func NewGateway(root Root, catalog *Catalog, bundles *BundleStreamer, jobs JobQueue, runner *Runner, tools Tools) *Gateway {
	return &Gateway{
		root:    root,
		catalog: catalog,
		bundles: bundles,
		jobs:    jobs,
		runner:  runner,
		tools:   tools,
	}
}

// ListArtifacts returns the current artifacts, newest first
func (g *Gateway) ListArtifacts() ([]types.Artifact, error) {
	return g.catalog.List()
}

// ArtifactDetails returns tag metadata for one artifact
func (g *Gateway) ArtifactDetails(name string) (*types.ArtifactDetails, error) {
	return g.catalog.Details(name)
}

// DeleteArtifact removes one regular file from the download directory.
// Nothing is touched when the name is rejected or missing. A file that
// vanishes between the check and the removal, e.g. taken by the janitor,
// counts as deleted.
func (g *Gateway) DeleteArtifact(name string) error {
	path, err := g.root.Resolve(name)
	if err != nil {
		return err
	}

	presence, info, err := observe(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	if presence == Gone || !info.Mode().IsRegular() {
		return ErrNotFound
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// OpenArtifact opens one regular file for streaming. The caller closes it.
func (g *Gateway) OpenArtifact(name string) (*os.File, fs.FileInfo, error) {
	path, err := g.root.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Bundle streams the named artifacts as one zip archive
func (g *Gateway) Bundle(ctx context.Context, names []string) iter.Seq2[[]byte, error] {
	return g.bundles.Chunks(ctx, names)
}

// SubmitJob queues a fetch and waits for it to finish
func (g *Gateway) SubmitJob(ctx context.Context, source types.JobSource, target, format string) (types.Job, error) {
	job, err := g.jobs.Submit(source, target, format)
	if err != nil {
		return types.Job{}, err
	}
	return g.jobs.Wait(ctx, job.ID)
}

// Jobs exposes the job queue for asynchronous submissions
func (g *Gateway) Jobs() JobQueue {
	return g.jobs
}

// Search lists matches for query from the source's tool
func (g *Gateway) Search(ctx context.Context, source types.JobSource, query string) ([]string, error) {
	fetcher, err := NewFetcher(source, g.tools)
	if err != nil {
		return nil, err
	}
	return g.runner.Search(ctx, fetcher, query)
}
