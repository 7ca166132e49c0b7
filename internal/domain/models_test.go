package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVideoDescriptor_Valid(t *testing.T) {
	d, err := NewVideoDescriptor("https://example.com/video/1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/video/1", d.URL)
	assert.Equal(t, "best", d.SelectedQuality)
}

func TestNewVideoDescriptor_EmptyURL(t *testing.T) {
	_, err := NewVideoDescriptor("")
	assert.Error(t, err)
}

func TestNewVideoDescriptor_BadScheme(t *testing.T) {
	_, err := NewVideoDescriptor("ftp://example.com/video")
	assert.Error(t, err)

	_, err = NewVideoDescriptor("example.com/video")
	assert.Error(t, err)
}

func TestVideoDescriptor_NegativeDuration(t *testing.T) {
	d := VideoDescriptor{URL: "https://example.com/v", SelectedQuality: "best", DurationSeconds: -1}
	assert.Error(t, d.Validate())
}

func TestNewDownloadTask_Defaults(t *testing.T) {
	d, err := NewVideoDescriptor("https://example.com/video/1")
	require.NoError(t, err)

	task, err := NewDownloadTask(d, "/tmp")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, 0.0, task.Progress)
	assert.Equal(t, "/tmp", task.DownloadPath)
	assert.Nil(t, task.CompletedAt)
}

func TestDownloadTask_CompletedInvariant(t *testing.T) {
	d, err := NewVideoDescriptor("https://example.com/video/1")
	require.NoError(t, err)
	task, err := NewDownloadTask(d, "/tmp")
	require.NoError(t, err)

	task.Status = StatusCompleted
	assert.Error(t, task.Validate(), "completed without progress 100 and timestamp must fail")

	now := time.Now()
	task.Progress = 100.0
	task.CompletedAt = &now
	assert.NoError(t, task.Validate())
}

func TestDownloadTask_FailedInvariant(t *testing.T) {
	d, err := NewVideoDescriptor("https://example.com/video/1")
	require.NoError(t, err)
	task, err := NewDownloadTask(d, "/tmp")
	require.NoError(t, err)

	task.Status = StatusFailed
	assert.Error(t, task.Validate(), "failed without error message must fail")

	task.ErrorMessage = "network error"
	assert.NoError(t, task.Validate())
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to DownloadStatus
		ok       bool
	}{
		{StatusQueued, StatusDownloading, true},
		{StatusQueued, StatusStopped, true},
		{StatusQueued, StatusCompleted, false},
		{StatusQueued, StatusFailed, false},
		{StatusDownloading, StatusCompleted, true},
		{StatusDownloading, StatusFailed, true},
		{StatusDownloading, StatusStopped, true},
		{StatusDownloading, StatusQueued, false},
		{StatusCompleted, StatusQueued, false},
		{StatusCompleted, StatusDownloading, false},
		{StatusFailed, StatusDownloading, false},
		{StatusStopped, StatusDownloading, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStatusTerminalSticky(t *testing.T) {
	for _, s := range []DownloadStatus{StatusCompleted, StatusFailed, StatusStopped} {
		assert.True(t, s.IsTerminal())
		for _, to := range []DownloadStatus{StatusQueued, StatusDownloading, StatusCompleted, StatusFailed, StatusStopped} {
			if s == to {
				continue
			}
			assert.False(t, s.CanTransition(to), "%s -> %s must be rejected", s, to)
		}
	}
}

func TestNewHistoryEntry(t *testing.T) {
	d, err := NewVideoDescriptor("https://youtube.com/watch?v=abc")
	require.NoError(t, err)
	d.Title = "Some Video"
	task, err := NewDownloadTask(d, "/tmp")
	require.NoError(t, err)

	entry, err := NewHistoryEntry(task, "/tmp/some_video.mp4", 1024)
	require.NoError(t, err)
	assert.Equal(t, "Some Video", entry.Title)
	assert.Equal(t, "YouTube", entry.Platform)
	assert.Equal(t, int64(1024), entry.SizeBytes)

	_, err = NewHistoryEntry(task, "", 0)
	assert.Error(t, err, "empty file path must fail")

	_, err = NewHistoryEntry(task, "/tmp/x.mp4", -1)
	assert.Error(t, err, "negative size must fail")
}

func TestDetectPlatform(t *testing.T) {
	assert.Equal(t, "YouTube", DetectPlatform("https://www.youtube.com/watch?v=1"))
	assert.Equal(t, "YouTube", DetectPlatform("https://youtu.be/1"))
	assert.Equal(t, "Vimeo", DetectPlatform("https://vimeo.com/123"))
	assert.Equal(t, "OK.ru", DetectPlatform("https://ok.ru/video/1"))
	assert.Equal(t, "Twitch", DetectPlatform("https://twitch.tv/clip"))
	assert.Equal(t, "Other", DetectPlatform("https://example.com/v"))
}
