package types

// Artifact is a downloaded audio file visible in the shared download directory
type Artifact struct {
	Name       string  `json:"name"`
	SizeBytes  int64   `json:"size"`
	ModifiedAt int64   `json:"timestamp"` // milliseconds since the Unix epoch
	Image      *string `json:"image"`     // same-basename cover image, if any
}

// ArtifactDetails carries tag metadata read from an artifact on demand
type ArtifactDetails struct {
	Artifact
	Title           string   `json:"title,omitempty"`
	Artist          string   `json:"artist,omitempty"`
	Album           string   `json:"album,omitempty"`
	TrackNumber     int      `json:"trackNumber,omitempty"`
	Format          string   `json:"format"`
	HasPicture      bool     `json:"hasPicture"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
}

// BundleRequest lists the artifacts to export as one archive
type BundleRequest struct {
	Files []string `json:"files"`
}

// DeleteResult is the outcome of deleting one artifact
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}
