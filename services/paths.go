package services

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// AudioExtensions are the extensions recognized as artifacts (lowercase).
var AudioExtensions = []string{".mp3", ".m4a", ".flac", ".ogg", ".wav", ".aac", ".opus"}

// ImageExtensions in pairing preference order.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// StagingDirName holds per-job output directories inside the download root.
const StagingDirName = ".jobs"

var (
	audioSet = toSet(AudioExtensions)
	imageSet = toSet(ImageExtensions)
)

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// IsAudio reports whether name carries a recognized audio extension.
func IsAudio(name string) bool {
	_, ok := audioSet[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsImage reports whether name carries a recognized cover image extension.
func IsImage(name string) bool {
	_, ok := imageSet[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Presence is the observed state of a path at one instant.
type Presence int

const (
	Gone Presence = iota
	Found
)

// observe stats path without following symlinks. A path that no longer
// exists is reported as Gone with a nil error.
func observe(path string) (Presence, fs.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Gone, nil, nil
		}
		return Gone, nil, err
	}
	return Found, info, nil
}

// Root is an absolute download directory that names are resolved against.
type Root struct {
	dir string
}

// NewRoot resolves dir to an absolute, cleaned path.
func NewRoot(dir string) (Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, err
	}
	return Root{dir: filepath.Clean(abs)}, nil
}

// Dir returns the absolute root directory.
func (r Root) Dir() string {
	return r.dir
}

// Resolve maps a client supplied name to an absolute path inside the root.
// Containment is checked on the resolved absolute path, so names such as
// "../x" or "a/../../x" are rejected regardless of spelling. Symlinks are
// followed when the target exists so a link cannot point outside the root.
func (r Root) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsRune(name, 0) {
		return "", ErrPathTraversal
	}
	abs, err := filepath.Abs(filepath.Join(r.dir, name))
	if err != nil {
		return "", ErrPathTraversal
	}
	if !r.contains(abs) {
		return "", ErrPathTraversal
	}

	if real, err := filepath.EvalSymlinks(abs); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(r.dir)
		if rerr != nil {
			realRoot = r.dir
		}
		if !within(realRoot, real) {
			return "", ErrPathTraversal
		}
	}
	return abs, nil
}

func (r Root) contains(abs string) bool {
	return within(r.dir, abs)
}

// within reports whether path lies strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
