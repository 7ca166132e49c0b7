package domain

import "time"

// EventKind identifies the payload type carried by an Event
type EventKind string

const (
	EventDownloadProgress EventKind = "download_progress"
	EventDownloadComplete EventKind = "download_complete"
	EventDownloadFailed   EventKind = "download_failed"
	EventDownloadStopped  EventKind = "download_stopped"
	EventQueueUpdated     EventKind = "queue_updated"
	EventSettingsChanged  EventKind = "settings_changed"
	EventSearchComplete   EventKind = "search_complete"
	EventSearchFailed     EventKind = "search_failed"
)

// Event is an immutable message published on the bus. Payload holds the
// record matching Kind; subscribers type-assert on it.
type Event struct {
	Kind      EventKind   `json:"kind"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an event with the current time
func NewEvent(kind EventKind, payload interface{}) Event {
	return Event{Kind: kind, Payload: payload, Timestamp: time.Now()}
}

// DownloadProgressPayload reports task progress in percent
type DownloadProgressPayload struct {
	TaskID          string  `json:"task_id"`
	Progress        float64 `json:"progress"`
	Status          string  `json:"status,omitempty"`
	DownloadedBytes int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
}

// DownloadCompletePayload reports a finished download
type DownloadCompletePayload struct {
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
}

// DownloadFailedPayload reports a failed download with its classified message
type DownloadFailedPayload struct {
	TaskID string    `json:"task_id"`
	Error  string    `json:"error"`
	Kind   ErrorKind `json:"error_kind,omitempty"`
}

// DownloadStoppedPayload reports a user-cancelled download
type DownloadStoppedPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

// QueueAction describes what changed in the queue
type QueueAction string

const (
	QueueActionAdd    QueueAction = "add"
	QueueActionRemove QueueAction = "remove"
	QueueActionUpdate QueueAction = "update"
	QueueActionClear  QueueAction = "clear"
)

// QueueUpdatedPayload reports a queue mutation
type QueueUpdatedPayload struct {
	Action    QueueAction `json:"action"`
	TaskID    string      `json:"task_id,omitempty"`
	TaskCount int         `json:"task_count"`
}

// SettingsChangedPayload carries the changed keys and the post-state snapshot
type SettingsChangedPayload struct {
	ChangedKeys []string               `json:"changed_keys"`
	Settings    map[string]interface{} `json:"settings"`
}

// SearchCompletePayload carries search results back to the consumer
type SearchCompletePayload struct {
	Query       string      `json:"query"`
	Results     []SearchHit `json:"results"`
	ResultCount int         `json:"result_count"`
}

// SearchFailedPayload reports a failed search
type SearchFailedPayload struct {
	Query string `json:"query"`
	Error string `json:"error"`
}
