package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"soundry/types"
	"soundry/websocket"
)

// scriptFetcher runs inline shell scripts. The staging dir is $1, the
// target $2 and the format $3 for fetches; the query is $1 for searches.
type scriptFetcher struct {
	fetch    string
	search   string
	tolerant bool
}

func (f scriptFetcher) Source() types.JobSource { return types.JobSourceYouTube }

func (f scriptFetcher) FetchCommand(target, format, outDir string) ExecSpec {
	return ExecSpec{Binary: "/bin/sh", Args: []string{"-c", f.fetch, "sh", outDir, target, format}}
}

func (f scriptFetcher) SearchCommand(query string) ExecSpec {
	return ExecSpec{Binary: "/bin/sh", Args: []string{"-c", f.search, "sh", query}}
}

func (f scriptFetcher) TolerantBatch() bool { return f.tolerant }

// fakeTool writes an executable that stands in for yt-dlp. It writes the
// given file names into the directory of its --output argument.
func fakeTool(t *testing.T, files ...string) string {
	t.Helper()
	script := "#!/bin/sh\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"--output\" ]; then out=$(dirname \"$2\"); fi\n" +
		"  shift\n" +
		"done\n"
	for _, name := range files {
		script += "printf audio > \"$out/" + name + "\"\n"
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestRoot(t *testing.T) Root {
	t.Helper()
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)
	return root
}

func writeFile(t *testing.T, root Root, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(root.Dir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data:"+name), 0o644))
	if !modTime.IsZero() {
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}
	return path
}

// recordingHub captures broadcasts instead of delivering them.
type recordingHub struct {
	mu     sync.Mutex
	events []types.Event
}

func (h *recordingHub) Run(ctx context.Context) {}

func (h *recordingHub) Broadcast(event types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) RegisterClient(*websocket.Client)   {}
func (h *recordingHub) UnregisterClient(*websocket.Client) {}

func (h *recordingHub) Events() []types.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Event(nil), h.events...)
}
