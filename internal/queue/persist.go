package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

// schemaVersion is the current persistence envelope version
const schemaVersion = 1

// pendingTask is the wire form of a resumable task
type pendingTask struct {
	ID                string    `json:"id"`
	URL               string    `json:"url"`
	Title             string    `json:"title,omitempty"`
	Author            string    `json:"author,omitempty"`
	Thumbnail         string    `json:"thumbnail,omitempty"`
	Duration          int       `json:"duration,omitempty"`
	SelectedQuality   string    `json:"selected_quality"`
	Filename          string    `json:"filename,omitempty"`
	DownloadSubtitles bool      `json:"download_subtitles"`
	DownloadPath      string    `json:"download_path,omitempty"`
	Status            string    `json:"status"`
	Progress          float64   `json:"progress"`
	CreatedAt         time.Time `json:"created_at"`
}

func toPending(task domain.DownloadTask) pendingTask {
	return pendingTask{
		ID:                task.ID,
		URL:               task.Descriptor.URL,
		Title:             task.Descriptor.Title,
		Author:            task.Descriptor.Author,
		Thumbnail:         task.Descriptor.ThumbnailURL,
		Duration:          task.Descriptor.DurationSeconds,
		SelectedQuality:   task.Descriptor.SelectedQuality,
		Filename:          task.Descriptor.FilenameHint,
		DownloadSubtitles: task.Descriptor.DownloadSubtitles,
		DownloadPath:      task.DownloadPath,
		Status:            string(task.Status),
		Progress:          task.Progress,
		CreatedAt:         task.CreatedAt,
	}
}

func (p pendingTask) toTask() (domain.DownloadTask, error) {
	descriptor := domain.VideoDescriptor{
		URL:               p.URL,
		Title:             p.Title,
		Author:            p.Author,
		ThumbnailURL:      p.Thumbnail,
		DurationSeconds:   p.Duration,
		SelectedQuality:   p.SelectedQuality,
		FilenameHint:      p.Filename,
		DownloadSubtitles: p.DownloadSubtitles,
	}
	if descriptor.SelectedQuality == "" {
		descriptor.SelectedQuality = "best"
	}
	if err := descriptor.Validate(); err != nil {
		return domain.DownloadTask{}, err
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := domain.DownloadStatus(p.Status)
	if !domain.ValidateStatus(status) {
		status = domain.StatusQueued
	}
	progress := p.Progress

	// a task interrupted mid-download resumes from the start
	if status == domain.StatusDownloading {
		status = domain.StatusQueued
		progress = 0.0
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return domain.DownloadTask{
		ID:           id,
		Descriptor:   descriptor,
		Status:       status,
		Progress:     progress,
		DownloadPath: p.DownloadPath,
		CreatedAt:    createdAt,
	}, nil
}

// SnapshotPending writes all resumable tasks (queued, downloading, stopped)
// to target. Top-level fields of an existing document that this schema does
// not know are carried over.
func (s *Store) SnapshotPending(target string) error {
	var pending []pendingTask
	for _, task := range s.All() {
		switch task.Status {
		case domain.StatusQueued, domain.StatusDownloading, domain.StatusStopped:
			pending = append(pending, toPending(task))
		}
	}
	if pending == nil {
		pending = []pendingTask{}
	}
	return writeDocument(target, "tasks", pending)
}

// LoadPending reads and validates a pending snapshot. Downloading tasks are
// normalized to queued. Entries that fail validation are skipped.
func (s *Store) LoadPending(source string) ([]domain.DownloadTask, error) {
	raw, _, err := readDocument(source, "tasks")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []pendingTask
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("invalid pending snapshot: %w", err)
	}

	var tasks []domain.DownloadTask
	for _, record := range records {
		task, err := record.toTask()
		if err != nil {
			s.log.Warn("skipping invalid pending task",
				zap.String("url", record.URL),
				zap.Error(err))
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Export writes the whole queue to target in the pending schema
func (s *Store) Export(target string) error {
	tasks := s.All()
	records := make([]pendingTask, 0, len(tasks))
	for _, task := range tasks {
		records = append(records, toPending(task))
	}
	return writeDocument(target, "tasks", records)
}

// Import loads tasks from source, adding those whose URL is not already
// present. Returns the number imported.
func (s *Store) Import(source string) (int, error) {
	tasks, err := s.LoadPending(source)
	if err != nil {
		return 0, err
	}
	return s.Restore(tasks), nil
}

// LoadURLsFromFile reads a text file of URLs, one per line, and queues each
// http(s) URL not already present. Returns the number added.
func (s *Store) LoadURLsFromFile(source string) (int, error) {
	file, err := os.Open(source)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	added := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url == "" {
			continue
		}
		descriptor, err := domain.NewVideoDescriptor(url)
		if err != nil {
			continue
		}
		if _, err := s.Add(descriptor, ""); err == nil {
			added++
		}
	}
	return added, scanner.Err()
}

// writeDocument writes {version, <key>: payload} to path, preserving any
// unknown top-level fields from an existing document at the same path.
func writeDocument(path, key string, payload interface{}) error {
	doc := map[string]json.RawMessage{}
	if existing, err := os.ReadFile(path); err == nil {
		// tolerate a corrupt existing file: start a fresh document
		_ = json.Unmarshal(existing, &doc)
	}

	version, err := json.Marshal(schemaVersion)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	doc["version"] = version
	doc[key] = body

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// readDocument reads path and returns the raw payload under key plus the
// document version.
func readDocument(path, key string) (json.RawMessage, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("invalid document %s: %w", path, err)
	}

	version := schemaVersion
	if raw, ok := doc["version"]; ok {
		_ = json.Unmarshal(raw, &version)
	}
	return doc[key], version, nil
}
