package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundry/types"
)

func TestRunnerRunSuccess(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 10*time.Second, time.Second)
	fetcher := scriptFetcher{fetch: `printf a > "$1/Artist - Song.$3"; printf i > "$1/Artist - Song.jpg"; printf x > "$1/notes.txt"`}

	var started time.Time
	result := runner.Run(context.Background(), fetcher, "https://example.com/track", "flac", func(at time.Time) {
		started = at
	})

	require.NoError(t, result.Err)
	assert.Equal(t, types.JobStateSucceeded, result.State)
	assert.Equal(t, "Artist - Song.flac", result.FirstArtifact)
	assert.ElementsMatch(t, []string{"Artist - Song.flac", "Artist - Song.jpg"}, result.Produced)
	assert.False(t, started.IsZero())
	assert.FileExists(t, filepath.Join(root.Dir(), "Artist - Song.flac"))
	assert.FileExists(t, filepath.Join(root.Dir(), "Artist - Song.jpg"))
	assert.NoFileExists(t, filepath.Join(root.Dir(), "notes.txt"))

	entries, err := os.ReadDir(filepath.Join(root.Dir(), StagingDirName))
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dir should be removed after a finished job")
}

func TestRunnerRunFirstArtifactTieBreaksByName(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 10*time.Second, time.Second)
	fetcher := scriptFetcher{fetch: `cd "$1" && printf a > zed.mp3 && printf a > alpha.mp3 && touch -d "2020-01-01 00:00:00" zed.mp3 alpha.mp3`}

	result := runner.Run(context.Background(), fetcher, "playlist", "mp3", nil)

	require.NoError(t, result.Err)
	assert.Equal(t, "alpha.mp3", result.FirstArtifact)
	assert.Len(t, result.Produced, 2)
}

func TestRunnerRunUnknownFormatFallsBack(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 10*time.Second, time.Second)
	fetcher := scriptFetcher{fetch: `printf a > "$1/song.$3"`}

	result := runner.Run(context.Background(), fetcher, "target", "exe", nil)

	require.NoError(t, result.Err)
	assert.Equal(t, "song.mp3", result.FirstArtifact)
}

func TestRunnerRunToolFailure(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 10*time.Second, time.Second)
	fetcher := scriptFetcher{fetch: `echo "ERROR: unsupported url" >&2; exit 3`}

	result := runner.Run(context.Background(), fetcher, "bogus", "mp3", nil)

	assert.Equal(t, types.JobStateFailed, result.State)
	assert.Equal(t, KindToolFailure, result.Kind())
	assert.ErrorIs(t, result.Err, ErrToolFailure)
	assert.Contains(t, result.Diagnostic, "unsupported url")
	assert.Empty(t, result.FirstArtifact)
}

func TestRunnerRunNoOutput(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 10*time.Second, time.Second)
	fetcher := scriptFetcher{fetch: `echo "nothing matched"; printf i > "$1/cover.jpg"`}

	result := runner.Run(context.Background(), fetcher, "target", "mp3", nil)

	assert.Equal(t, types.JobStateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrNoOutputProduced)
	assert.Contains(t, result.Diagnostic, "nothing matched")
}

func TestRunnerRunTolerantBatch(t *testing.T) {
	script := `printf a > "$1/one.mp3"; echo "ERROR: entry 2 unavailable" >&2; exit 1`

	t.Run("tolerant source keeps partial playlist", func(t *testing.T) {
		root := newTestRoot(t)
		runner := NewRunner(root, 10*time.Second, time.Second)

		result := runner.Run(context.Background(), scriptFetcher{fetch: script, tolerant: true}, "set", "mp3", nil)

		require.NoError(t, result.Err)
		assert.Equal(t, types.JobStateSucceeded, result.State)
		assert.Equal(t, "one.mp3", result.FirstArtifact)
		assert.Contains(t, result.Diagnostic, "entry 2 unavailable")
	})

	t.Run("strict source fails", func(t *testing.T) {
		root := newTestRoot(t)
		runner := NewRunner(root, 10*time.Second, time.Second)

		result := runner.Run(context.Background(), scriptFetcher{fetch: script}, "set", "mp3", nil)

		assert.Equal(t, types.JobStateFailed, result.State)
		assert.ErrorIs(t, result.Err, ErrToolFailure)
	})
}

func TestRunnerRunTimeout(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 200*time.Millisecond, time.Second)
	fetcher := scriptFetcher{fetch: `echo "starting"; exec sleep 5`}

	start := time.Now()
	result := runner.Run(context.Background(), fetcher, "slow", "mp3", nil)
	elapsed := time.Since(start)

	assert.Equal(t, types.JobStateTimedOut, result.State)
	assert.ErrorIs(t, result.Err, ErrToolTimeout)
	assert.Less(t, elapsed, 4*time.Second, "runner must not wait for the tool to finish on its own")
	assert.Contains(t, result.Diagnostic, "starting")
}

func TestRunnerRunTimeoutKillsSpawnedProcesses(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, 200*time.Millisecond, time.Second)
	marker := filepath.Join(t.TempDir(), "late-marker")
	fetcher := scriptFetcher{fetch: fmt.Sprintf(`(sleep 1; echo late > %q) & wait`, marker)}

	start := time.Now()
	result := runner.Run(context.Background(), fetcher, "slow", "mp3", nil)
	elapsed := time.Since(start)

	assert.Equal(t, types.JobStateTimedOut, result.State)
	assert.Less(t, elapsed, 900*time.Millisecond, "the tool's children must not hold up the runner")

	time.Sleep(1500 * time.Millisecond)
	assert.NoFileExists(t, marker, "a child of the tool kept running after the timeout")
}

func TestRunnerRunEmptyTarget(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, time.Second, time.Second)

	result := runner.Run(context.Background(), scriptFetcher{fetch: "exit 0"}, "   ", "mp3", nil)

	assert.Equal(t, types.JobStateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrEmptyTarget)
	assert.NoDirExists(t, filepath.Join(root.Dir(), StagingDirName))
}

func TestRunnerRunMissingBinary(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, time.Second, time.Second)
	fetcher, err := NewFetcher(types.JobSourceSpotify, Tools{Spotdl: filepath.Join(t.TempDir(), "missing-spotdl")})
	require.NoError(t, err)

	result := runner.Run(context.Background(), fetcher, "https://open.spotify.com/track/x", "mp3", nil)

	assert.Equal(t, types.JobStateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrToolFailure)
}

func TestRunnerSearch(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, time.Second, time.Second)
	fetcher := scriptFetcher{search: `echo "first: $1"; echo; echo "second"`}

	results, err := runner.Search(context.Background(), fetcher, "daft punk")

	require.NoError(t, err)
	assert.Equal(t, []string{"first: daft punk", "second"}, results)

	_, err = runner.Search(context.Background(), fetcher, " ")
	assert.Error(t, err)
}

func TestRunnerSearchTimeout(t *testing.T) {
	root := newTestRoot(t)
	runner := NewRunner(root, time.Second, 100*time.Millisecond)

	_, err := runner.Search(context.Background(), scriptFetcher{search: "exec sleep 5"}, "q")

	assert.ErrorIs(t, err, ErrToolTimeout)
}

func TestTailBufferKeepsTail(t *testing.T) {
	buf := newTailBuffer(5)
	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defgh"))
	assert.Equal(t, "defgh", buf.String())
}
