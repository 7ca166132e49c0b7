package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the current status of a download task
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusStopped     DownloadStatus = "stopped"
)

// ValidateStatus checks if a status value is known
func ValidateStatus(status DownloadStatus) bool {
	switch status {
	case StatusQueued, StatusDownloading, StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// IsTerminal checks if the status is a terminal state
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// CanTransition reports whether a status change is legal.
// Terminal states are sticky; Queued may move to Downloading or Stopped,
// Downloading may move to any terminal state.
func (s DownloadStatus) CanTransition(to DownloadStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusQueued:
		return to == StatusDownloading || to == StatusStopped
	case StatusDownloading:
		return to == StatusCompleted || to == StatusFailed || to == StatusStopped
	}
	return false
}

// VideoDescriptor is the immutable description of what to fetch
type VideoDescriptor struct {
	URL                string   `json:"url"`
	Title              string   `json:"title,omitempty"`
	Author             string   `json:"author,omitempty"`
	DurationSeconds    int      `json:"duration,omitempty"`
	ThumbnailURL       string   `json:"thumbnail,omitempty"`
	AvailableQualities []string `json:"available_qualities,omitempty"`
	SelectedQuality    string   `json:"selected_quality"`
	FilenameHint       string   `json:"filename,omitempty"`
	DownloadSubtitles  bool     `json:"download_subtitles"`
}

// NewVideoDescriptor creates a validated descriptor with the default quality
func NewVideoDescriptor(url string) (VideoDescriptor, error) {
	d := VideoDescriptor{URL: url, SelectedQuality: "best"}
	if err := d.Validate(); err != nil {
		return VideoDescriptor{}, err
	}
	return d, nil
}

// Validate enforces the descriptor construction rules
func (d VideoDescriptor) Validate() error {
	if d.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if !strings.HasPrefix(d.URL, "http://") && !strings.HasPrefix(d.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://: %s", d.URL)
	}
	if d.DurationSeconds < 0 {
		return fmt.Errorf("duration cannot be negative: %d", d.DurationSeconds)
	}
	return nil
}

// DownloadTask represents a download task in the queue.
// Status, progress, completion time and error message are owned by the
// queue store; everything else is fixed at creation. Tasks are handed out
// by value.
type DownloadTask struct {
	ID           string          `json:"id"`
	Descriptor   VideoDescriptor `json:"descriptor"`
	Status       DownloadStatus  `json:"status"`
	Progress     float64         `json:"progress"`
	DownloadPath string          `json:"download_path,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// NewDownloadTask creates a queued task for a descriptor
func NewDownloadTask(descriptor VideoDescriptor, downloadPath string) (DownloadTask, error) {
	if err := descriptor.Validate(); err != nil {
		return DownloadTask{}, err
	}
	return DownloadTask{
		ID:           uuid.New().String(),
		Descriptor:   descriptor,
		Status:       StatusQueued,
		Progress:     0.0,
		DownloadPath: downloadPath,
		CreatedAt:    time.Now(),
	}, nil
}

// Validate enforces the task invariants
func (t DownloadTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	if err := t.Descriptor.Validate(); err != nil {
		return err
	}
	if !ValidateStatus(t.Status) {
		return fmt.Errorf("unknown status: %s", t.Status)
	}
	if t.Progress < 0.0 || t.Progress > 100.0 {
		return fmt.Errorf("progress must be between 0 and 100: %f", t.Progress)
	}
	if t.Status == StatusCompleted && (t.Progress != 100.0 || t.CompletedAt == nil) {
		return fmt.Errorf("completed task must have progress 100 and a completion time")
	}
	if t.Status == StatusFailed && t.ErrorMessage == "" {
		return fmt.Errorf("failed task must carry an error message")
	}
	return nil
}

// HistoryEntry is the immutable record of a completed download
type HistoryEntry struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	URL          string    `json:"url" gorm:"not null;index"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	Platform     string    `json:"platform" gorm:"index"`
	Quality      string    `json:"quality"`
	Duration     int       `json:"duration"`
	FilePath     string    `json:"file_path" gorm:"not null"`
	SizeBytes    int64     `json:"size_bytes"`
	CompletedAt  time.Time `json:"completed_at" gorm:"index"`
}

// NewHistoryEntry builds a history record from a completed task
func NewHistoryEntry(task DownloadTask, filePath string, sizeBytes int64) (HistoryEntry, error) {
	if filePath == "" {
		return HistoryEntry{}, fmt.Errorf("file path cannot be empty")
	}
	if sizeBytes < 0 {
		return HistoryEntry{}, fmt.Errorf("file size cannot be negative: %d", sizeBytes)
	}
	completedAt := time.Now()
	if task.CompletedAt != nil {
		completedAt = *task.CompletedAt
	}
	return HistoryEntry{
		ID:          uuid.New().String(),
		URL:         task.Descriptor.URL,
		Title:       task.Descriptor.Title,
		Author:      task.Descriptor.Author,
		Platform:    DetectPlatform(task.Descriptor.URL),
		Quality:     task.Descriptor.SelectedQuality,
		Duration:    task.Descriptor.DurationSeconds,
		FilePath:    filePath,
		SizeBytes:   sizeBytes,
		CompletedAt: completedAt,
	}, nil
}

// SearchHit is a single result returned by a search backend
type SearchHit struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
	Duration     string `json:"duration,omitempty"`
	ThumbnailURL string `json:"thumbnail,omitempty"`
	Platform     string `json:"platform,omitempty"`
}

// DetectPlatform detects the platform name from a URL for history records
func DetectPlatform(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return "YouTube"
	case strings.Contains(lower, "vimeo.com"):
		return "Vimeo"
	case strings.Contains(lower, "dailymotion.com"):
		return "Dailymotion"
	case strings.Contains(lower, "ok.ru"):
		return "OK.ru"
	case strings.Contains(lower, "soundcloud.com"):
		return "SoundCloud"
	case strings.Contains(lower, "twitch.tv"):
		return "Twitch"
	}
	return "Other"
}
