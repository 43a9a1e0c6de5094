package types

import "time"

// JobSource names the external tool family that handles a fetch
type JobSource string

const (
	JobSourceSpotify    JobSource = "spotify"
	JobSourceYouTube    JobSource = "youtube"
	JobSourceSoundCloud JobSource = "soundcloud"
)

// JobState represents the current state of a fetch job
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
	JobStateCancelled JobState = "cancelled"
)

// IsFinal reports whether no further transition can happen
func (s JobState) IsFinal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateTimedOut, JobStateCancelled:
		return true
	}
	return false
}

// Job represents one invocation of an external fetch tool
type Job struct {
	ID            string     `json:"id"`
	Source        JobSource  `json:"source"`
	Target        string     `json:"target"`
	OutputFormat  string     `json:"format"`
	State         JobState   `json:"state"`
	ErrorKind     string     `json:"errorKind,omitempty"`
	Diagnostic    string     `json:"diagnostic,omitempty"`
	FirstArtifact string     `json:"firstArtifactName,omitempty"`
	Produced      int        `json:"produced"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

// SubmitJobRequest is the body accepted by the job endpoints
type SubmitJobRequest struct {
	Source JobSource `json:"source"`
	URL    string    `json:"url"`
	Format string    `json:"format"`
}

// JobResponse is the synchronous outcome of a submitted job
type JobResponse struct {
	JobID             string   `json:"jobId"`
	State             JobState `json:"state"`
	ErrorKind         string   `json:"errorKind,omitempty"`
	Diagnostic        string   `json:"diagnostic,omitempty"`
	FirstArtifactName string   `json:"firstArtifactName,omitempty"`
}
