package services

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BundleFilename is the attachment name of every bundle response.
const BundleFilename = "soundry-session.zip"

const (
	// copyBlock is the read size while copying an entry; ctx is checked between blocks.
	copyBlock = 64 * 1024
	// spillSize caps how much of a large entry is buffered before it is emitted.
	spillSize = 1 << 20
)

var errConsumerGone = errors.New("bundle consumer stopped")

// Sink receives archive bytes in order. It never needs to seek.
type Sink interface {
	Append(p []byte) (int, error)
	Offset() int64
}

// ArchiveWriter adapts a Sink to the io.Writer the zip encoder writes to.
type ArchiveWriter struct {
	sink Sink
}

// NewArchiveWriter wraps sink
func NewArchiveWriter(sink Sink) *ArchiveWriter {
	return &ArchiveWriter{sink: sink}
}

func (w *ArchiveWriter) Write(p []byte) (int, error) {
	return w.sink.Append(p)
}

// Offset returns the number of bytes written so far.
func (w *ArchiveWriter) Offset() int64 {
	return w.sink.Offset()
}

// chunkSink buffers appended bytes until they are drained as one chunk.
type chunkSink struct {
	buf    []byte
	offset int64
}

func (s *chunkSink) Append(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	s.offset += int64(len(p))
	return len(p), nil
}

func (s *chunkSink) Offset() int64 {
	return s.offset
}

// drain hands out the buffered bytes and starts a fresh buffer.
func (s *chunkSink) drain() []byte {
	if len(s.buf) == 0 {
		return nil
	}
	chunk := s.buf
	s.buf = nil
	return chunk
}

// BundleStreamer produces zip archives of artifacts as a lazy chunk sequence.
type BundleStreamer struct {
	root Root
}

// NewBundleStreamer creates a streamer over root
func NewBundleStreamer(root Root) *BundleStreamer {
	return &BundleStreamer{root: root}
}

// Chunks returns a sequence yielding the archive of names. A chunk is yielded
// after each entry's data has been written, so at most one entry is held in
// memory. The zip encoder only finalizes an entry (last deflate block and data
// descriptor) when the next entry starts or the archive closes, so that tail
// leads the following chunk; chunks are only meaningful concatenated. The
// central directory is always in the last chunk. Large entries are emitted
// in pieces once the buffer reaches spillSize. Names outside the root,
// missing files and non-regular files are skipped. Iteration stops with an
// error only if ctx is cancelled; the consumer stopping early stops production.
func (b *BundleStreamer) Chunks(ctx context.Context, names []string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		sink := &chunkSink{}
		zw := zip.NewWriter(NewArchiveWriter(sink))

		emit := func() bool {
			if err := zw.Flush(); err != nil {
				yield(nil, err)
				return false
			}
			if chunk := sink.drain(); chunk != nil {
				return yield(chunk, nil)
			}
			return true
		}
		spill := func() bool {
			if len(sink.buf) < spillSize {
				return true
			}
			return yield(sink.drain(), nil)
		}

		added := 0
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			ok, err := b.addEntry(ctx, zw, name, spill)
			if err != nil {
				if errors.Is(err, errConsumerGone) {
					return
				}
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
				log.Printf("Warning: bundle entry %s: %v", name, err)
			}
			if !ok {
				continue
			}
			added++
			if !emit() {
				return
			}
		}

		if err := zw.Close(); err != nil {
			yield(nil, fmt.Errorf("finalize archive: %w", err))
			return
		}
		if chunk := sink.drain(); chunk != nil {
			yield(chunk, nil)
		}
		log.Printf("Bundle streamed: %d of %d requested files", added, len(names))
	}
}

// addEntry writes one file into zw. It reports false when the name was
// skipped before anything was written.
func (b *BundleStreamer) addEntry(ctx context.Context, zw *zip.Writer, name string, spill func() bool) (bool, error) {
	path, err := b.root.Resolve(name)
	if err != nil {
		log.Printf("Rejected bundle entry %q: %v", name, err)
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, err
	}
	header.Name = archiveName(b.root, path)
	header.Method = zip.Deflate
	header.Modified = info.ModTime().UTC().Truncate(time.Second)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return false, err
	}

	// The header is already written; from here the entry is kept even if
	// the source shrinks or vanishes mid-copy.
	buf := make([]byte, copyBlock)
	for {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return true, werr
			}
			if !spill() {
				return true, errConsumerGone
			}
		}
		if rerr == io.EOF {
			return true, nil
		}
		if rerr != nil {
			return true, rerr
		}
	}
}

// archiveName is the slash separated path of abs relative to the root.
func archiveName(root Root, abs string) string {
	rel, err := filepath.Rel(root.Dir(), abs)
	if err != nil {
		return filepath.Base(abs)
	}
	return strings.TrimPrefix(filepath.ToSlash(rel), "/")
}
