package infrastructure

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

// defaultSearchLimit caps results per query
const defaultSearchLimit = 20

// YTDLPSearchBackend implements domain.SearchBackend with yt-dlp's
// ytsearch pseudo-URL scheme.
type YTDLPSearchBackend struct {
	binary string
	log    *zap.Logger
}

// NewYTDLPSearchBackend creates a search backend around the configured binary
func NewYTDLPSearchBackend(binary string, log *zap.Logger) *YTDLPSearchBackend {
	if binary == "" {
		binary = "yt-dlp"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &YTDLPSearchBackend{binary: binary, log: log}
}

// searchEntry is the slice of a flat-playlist dump a hit is built from
type searchEntry struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

// Search runs a query and returns up to the filter "limit" hits. The only
// recognized filters are "limit" and "platform" (informational).
func (b *YTDLPSearchBackend) Search(query string, filters map[string]string) ([]domain.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	limit := defaultSearchLimit
	if raw, ok := filters["limit"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	target := fmt.Sprintf("ytsearch%d:%s", limit, query)
	cmd := exec.Command(b.binary, "-J", "--flat-playlist", target)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("search failed: %s", exitDetail(err))
	}

	var playlist struct {
		Entries []searchEntry `json:"entries"`
	}
	if err := json.Unmarshal(out, &playlist); err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(playlist.Entries))
	for _, entry := range playlist.Entries {
		if entry.URL == "" {
			continue
		}
		hits = append(hits, domain.SearchHit{
			ID:           entry.ID,
			URL:          entry.URL,
			Title:        entry.Title,
			Author:       entry.Uploader,
			Duration:     formatDuration(int(entry.Duration)),
			ThumbnailURL: entry.Thumbnail,
			Platform:     domain.DetectPlatform(entry.URL),
		})
	}

	b.log.Debug("search returned",
		zap.String("query", query),
		zap.Int("hits", len(hits)))
	return hits, nil
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
