package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"soundry/types"
)

// Catalog derives the artifact list from the download directory on every call.
// It keeps no state between calls.
type Catalog struct {
	root Root
}

// NewCatalog creates a catalog over root
func NewCatalog(root Root) *Catalog {
	return &Catalog{root: root}
}

// List returns every audio artifact in the root directory, newest first.
// Artifacts with equal modification times are ordered by name.
func (c *Catalog) List() ([]types.Artifact, error) {
	entries, err := os.ReadDir(c.root.Dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []types.Artifact{}, nil
		}
		return nil, fmt.Errorf("read download dir: %w", err)
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}

	artifacts := make([]types.Artifact, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !IsAudio(name) {
			continue
		}

		presence, info, err := observe(filepath.Join(c.root.Dir(), name))
		if err != nil {
			log.Printf("Warning: could not stat %s: %v", name, err)
			continue
		}
		if presence == Gone || !info.Mode().IsRegular() {
			continue
		}

		artifacts = append(artifacts, types.Artifact{
			Name:       name,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UnixMilli(),
			Image:      pairedImage(name, names),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Name < artifacts[j].Name
	})
	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].ModifiedAt > artifacts[j].ModifiedAt
	})

	return artifacts, nil
}

// pairedImage finds the first same-basename image in preference order.
func pairedImage(name string, names map[string]struct{}) *string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ext := range ImageExtensions {
		candidate := base + ext
		if _, ok := names[candidate]; ok {
			return &candidate
		}
	}
	return nil
}

// Details reads tag metadata for one artifact. Missing tags fall back to the
// "Artist - Title" file naming used by the fetch tools.
func (c *Catalog) Details(name string) (*types.ArtifactDetails, error) {
	if filepath.Base(name) != name || !IsAudio(name) {
		return nil, ErrNotFound
	}
	path, err := c.root.Resolve(name)
	if err != nil {
		return nil, err
	}

	presence, info, err := observe(path)
	if err != nil {
		return nil, err
	}
	if presence == Gone || !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	names := make(map[string]struct{}, len(ImageExtensions))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ext := range ImageExtensions {
		if p, _, _ := observe(filepath.Join(c.root.Dir(), base+ext)); p == Found {
			names[base+ext] = struct{}{}
		}
	}

	details := &types.ArtifactDetails{
		Artifact: types.Artifact{
			Name:       name,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UnixMilli(),
			Image:      pairedImage(name, names),
		},
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
	}

	if err := readTags(path, details); err != nil {
		log.Printf("Warning: could not parse audio metadata from %s: %v", name, err)
	}
	if details.Title == "" || details.Artist == "" {
		artist, title := splitArtistTitle(base)
		if details.Title == "" {
			details.Title = title
		}
		if details.Artist == "" {
			details.Artist = artist
		}
	}

	if details.Format == "mp3" {
		if dur, err := mp3Duration(path); err == nil && dur > 0 {
			details.DurationSeconds = &dur
		}
	}

	return details, nil
}

func readTags(path string, details *types.ArtifactDetails) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}

	details.Title = strings.TrimSpace(meta.Title())
	details.Artist = strings.TrimSpace(meta.Artist())
	details.Album = strings.TrimSpace(meta.Album())
	details.TrackNumber, _ = meta.Track()
	details.HasPicture = meta.Picture() != nil
	return nil
}

// splitArtistTitle parses "Artist - Title" basenames.
func splitArtistTitle(base string) (artist, title string) {
	if left, right, ok := strings.Cut(base, " - "); ok {
		return strings.TrimSpace(left), strings.TrimSpace(right)
	}
	return "", base
}

func mp3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}
	return total, nil
}
