package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundry/types"
)

func newTestGateway(t *testing.T, root Root, tools Tools) *Gateway {
	t.Helper()
	runner := NewRunner(root, 10*time.Second, time.Second)
	jobs := NewJobQueue(runner, tools, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	jobs.Start(ctx)
	return NewGateway(root, NewCatalog(root), NewBundleStreamer(root), jobs, runner, tools)
}

func TestGatewayDeleteArtifact(t *testing.T) {
	root := newTestRoot(t)
	gw := newTestGateway(t, root, Tools{})
	writeFile(t, root, "keep.mp3", time.Time{})
	writeFile(t, root, "drop.mp3", time.Time{})

	require.NoError(t, gw.DeleteArtifact("drop.mp3"))
	assert.NoFileExists(t, filepath.Join(root.Dir(), "drop.mp3"))

	err := gw.DeleteArtifact("drop.mp3")
	assert.ErrorIs(t, err, ErrNotFound)

	artifacts, err := gw.ListArtifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "keep.mp3", artifacts[0].Name)
}

func TestGatewayDeleteArtifactRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "downloads")
	require.NoError(t, os.Mkdir(dir, 0o755))
	victim := filepath.Join(parent, "victim.mp3")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0o644))

	root, err := NewRoot(dir)
	require.NoError(t, err)
	gw := newTestGateway(t, root, Tools{})

	for _, name := range []string{"../victim.mp3", "a/../../victim.mp3", ""} {
		err := gw.DeleteArtifact(name)
		assert.ErrorIs(t, err, ErrPathTraversal, name)
	}
	assert.FileExists(t, victim)
}

func TestGatewayDeleteArtifactDirectory(t *testing.T) {
	root := newTestRoot(t)
	gw := newTestGateway(t, root, Tools{})
	require.NoError(t, os.Mkdir(filepath.Join(root.Dir(), "folder"), 0o755))

	assert.ErrorIs(t, gw.DeleteArtifact("folder"), ErrNotFound)
	assert.DirExists(t, filepath.Join(root.Dir(), "folder"))
}

func TestGatewayDeleteArtifactRacingJanitor(t *testing.T) {
	root := newTestRoot(t)
	gw := newTestGateway(t, root, Tools{})
	const files = 50
	names := make([]string, files)
	for i := range names {
		names[i] = fmt.Sprintf("track-%02d.mp3", i)
		writeFile(t, root, names[i], time.Time{})
	}

	janitor := NewJanitor(root, 0, time.Hour, quietLogger())
	var report SweepReport
	deleteErrs := make([]error, files)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report = janitor.Sweep(context.Background())
	}()
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleteErrs[i] = gw.DeleteArtifact(name)
		}()
	}
	wg.Wait()

	assert.Zero(t, report.Errors)
	for i, err := range deleteErrs {
		if err != nil {
			assert.ErrorIs(t, err, ErrNotFound, names[i])
			assert.NotErrorIs(t, err, ErrDeleteFailed, names[i])
		}
	}
	entries, err := os.ReadDir(root.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGatewayOpenArtifact(t *testing.T) {
	root := newTestRoot(t)
	gw := newTestGateway(t, root, Tools{})
	writeFile(t, root, "song.mp3", time.Time{})

	f, info, err := gw.OpenArtifact("song.mp3")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data:song.mp3", string(data))
	assert.Equal(t, int64(len(data)), info.Size())

	_, _, err = gw.OpenArtifact("missing.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = gw.OpenArtifact("../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestGatewaySubmitJob(t *testing.T) {
	root := newTestRoot(t)
	gw := newTestGateway(t, root, Tools{Ytdlp: fakeTool(t, "Artist - Track.mp3", "Artist - Track.jpg")})

	job, err := gw.SubmitJob(context.Background(), types.JobSourceYouTube, "https://youtu.be/abc", "mp3")
	require.NoError(t, err)
	assert.Equal(t, types.JobStateSucceeded, job.State)
	assert.Equal(t, "Artist - Track.mp3", job.FirstArtifact)

	artifacts, err := gw.ListArtifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.NotNil(t, artifacts[0].Image)
	assert.Equal(t, "Artist - Track.jpg", *artifacts[0].Image)

	_, err = gw.SubmitJob(context.Background(), types.JobSourceYouTube, "", "mp3")
	assert.ErrorIs(t, err, ErrEmptyTarget)
}

func TestGatewaySearchUnknownSource(t *testing.T) {
	gw := newTestGateway(t, newTestRoot(t), Tools{})

	_, err := gw.Search(context.Background(), types.JobSource("napster"), "x")
	assert.ErrorIs(t, err, ErrUnknownSource)
}
