package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"soundry/types"
)

// Formats accepted by the wrapped tools. Anything else is replaced by DefaultFormat.
var allowedFormats = map[string]struct{}{
	"mp3": {}, "flac": {}, "m4a": {}, "opus": {}, "wav": {}, "ogg": {},
}

// DefaultFormat is used when no or an unknown output format is requested.
const DefaultFormat = "mp3"

const searchResults = 10

// NormalizeFormat lowercases format and maps unknown values to DefaultFormat.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if _, ok := allowedFormats[format]; ok {
		return format
	}
	return DefaultFormat
}

// ExecSpec is a fully built external tool invocation.
type ExecSpec struct {
	Binary string
	Args   []string
}

// Fetcher builds tool invocations for one source.
type Fetcher interface {
	Source() types.JobSource
	// FetchCommand downloads target as format into outDir.
	FetchCommand(target, format, outDir string) ExecSpec
	// SearchCommand lists matches for query, one per output line.
	SearchCommand(query string) ExecSpec
	// TolerantBatch reports whether a non-zero exit still counts as success
	// when at least one file was produced, e.g. playlists fetched with
	// per-entry errors ignored.
	TolerantBatch() bool
}

// Tools holds the executable paths of the wrapped downloaders.
type Tools struct {
	Spotdl string
	Ytdlp  string
}

// NewFetcher returns the fetcher for source.
func NewFetcher(source types.JobSource, tools Tools) (Fetcher, error) {
	switch source {
	case types.JobSourceSpotify:
		return spotdlFetcher{binary: orDefault(tools.Spotdl, "spotdl")}, nil
	case types.JobSourceYouTube:
		return extractorFetcher{binary: orDefault(tools.Ytdlp, "yt-dlp")}, nil
	case types.JobSourceSoundCloud:
		return soundcloudFetcher{binary: orDefault(tools.Ytdlp, "yt-dlp")}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// spotdlFetcher resolves Spotify links to audio with spotdl.
type spotdlFetcher struct {
	binary string
}

func (f spotdlFetcher) Source() types.JobSource { return types.JobSourceSpotify }

func (f spotdlFetcher) FetchCommand(target, format, outDir string) ExecSpec {
	return ExecSpec{
		Binary: f.binary,
		Args: []string{
			"download", target,
			"--output", filepath.Join(outDir, "{artists} - {title}.{output-ext}"),
			"--format", format,
			"--audio", "youtube-music", "youtube",
		},
	}
}

func (f spotdlFetcher) SearchCommand(query string) ExecSpec {
	return ExecSpec{
		Binary: f.binary,
		Args:   []string{"search", query, "--max-results", fmt.Sprint(searchResults)},
	}
}

func (f spotdlFetcher) TolerantBatch() bool { return false }

// extractorFetcher extracts audio from any site yt-dlp supports.
type extractorFetcher struct {
	binary string
}

func (f extractorFetcher) Source() types.JobSource { return types.JobSourceYouTube }

func (f extractorFetcher) FetchCommand(target, format, outDir string) ExecSpec {
	return ExecSpec{
		Binary: f.binary,
		Args: []string{
			"--extract-audio",
			"--audio-format", format,
			"--audio-quality", "0",
			"--write-thumbnail",
			"--convert-thumbnails", "jpg",
			"--no-progress",
			"--output", filepath.Join(outDir, "%(title)s.%(ext)s"),
			target,
		},
	}
}

func (f extractorFetcher) SearchCommand(query string) ExecSpec {
	return ExecSpec{
		Binary: f.binary,
		Args:   []string{"--get-title", "--get-id", fmt.Sprintf("ytsearch%d:%s", searchResults, query)},
	}
}

func (f extractorFetcher) TolerantBatch() bool { return false }

// soundcloudFetcher uses yt-dlp with playlist errors ignored and cover art embedded.
type soundcloudFetcher struct {
	binary string
}

func (f soundcloudFetcher) Source() types.JobSource { return types.JobSourceSoundCloud }

func (f soundcloudFetcher) FetchCommand(target, format, outDir string) ExecSpec {
	return ExecSpec{
		Binary: f.binary,
		Args: []string{
			"--format", "bestaudio/best",
			"--extract-audio",
			"--audio-format", format,
			"--audio-quality", "192K",
			"--write-thumbnail",
			"--convert-thumbnails", "jpg",
			"--embed-thumbnail",
			"--embed-metadata",
			"--ignore-errors",
			"--no-warnings",
			"--no-progress",
			"--output", filepath.Join(outDir, "%(uploader)s - %(title)s.%(ext)s"),
			target,
		},
	}
}

func (f soundcloudFetcher) SearchCommand(query string) ExecSpec {
	return ExecSpec{
		Binary: f.binary,
		Args:   []string{"--get-title", "--get-id", fmt.Sprintf("scsearch%d:%s", searchResults, query)},
	}
}

func (f soundcloudFetcher) TolerantBatch() bool { return true }
