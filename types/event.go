package types

import "time"

// EventType distinguishes messages pushed over the websocket
type EventType string

const (
	EventJob     EventType = "job"     // a job changed state
	EventCatalog EventType = "catalog" // the download directory changed
)

// Event represents a websocket message
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"jobId,omitempty"`
	Job       *Job      `json:"job,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
