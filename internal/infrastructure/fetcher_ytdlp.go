package infrastructure

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

// FetcherConfig carries the settings the fetcher reads at construction
type FetcherConfig struct {
	Binary       string // yt-dlp binary name or path
	CookiesFile  string
	ExtractAudio bool
	AudioFormat  string
}

// YTDLPFetcher implements domain.MediaFetcher by shelling out to yt-dlp
type YTDLPFetcher struct {
	config FetcherConfig
	log    *zap.Logger
}

// NewYTDLPFetcher creates a fetcher around the configured binary
func NewYTDLPFetcher(config FetcherConfig, log *zap.Logger) *YTDLPFetcher {
	if config.Binary == "" {
		config.Binary = "yt-dlp"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &YTDLPFetcher{config: config, log: log}
}

// describeInfo is the slice of yt-dlp's -J output the descriptor needs
type describeInfo struct {
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Formats   []struct {
		Height int `json:"height"`
	} `json:"formats"`
}

// Describe resolves a URL into a descriptor using yt-dlp's JSON dump
func (f *YTDLPFetcher) Describe(url string) (domain.VideoDescriptor, error) {
	descriptor, err := domain.NewVideoDescriptor(url)
	if err != nil {
		return domain.VideoDescriptor{}, err
	}

	cmd := exec.Command(f.config.Binary, "-J", "--no-playlist", url)
	out, err := cmd.Output()
	if err != nil {
		return domain.VideoDescriptor{}, fmt.Errorf("failed to extract video info: %s", exitDetail(err))
	}

	var info describeInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return domain.VideoDescriptor{}, fmt.Errorf("failed to parse video info: %w", err)
	}

	descriptor.Title = info.Title
	descriptor.Author = info.Uploader
	descriptor.DurationSeconds = int(info.Duration)
	descriptor.ThumbnailURL = info.Thumbnail
	descriptor.AvailableQualities = qualitiesFromFormats(info)
	return descriptor, nil
}

func qualitiesFromFormats(info describeInfo) []string {
	seen := make(map[int]bool)
	var heights []int
	for _, format := range info.Formats {
		if format.Height > 0 && !seen[format.Height] {
			seen[format.Height] = true
			heights = append(heights, format.Height)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	qualities := make([]string, 0, len(heights))
	for _, h := range heights {
		qualities = append(qualities, fmt.Sprintf("%dp", h))
	}
	return qualities
}

// Fetch downloads the media described by descriptor into downloadPath
func (f *YTDLPFetcher) Fetch(descriptor domain.VideoDescriptor, downloadPath string, sink domain.ProgressSink) (string, error) {
	return f.fetch(descriptor, downloadPath, sink, false)
}

// FetchWithSubtitles downloads media plus subtitles. A subtitle acquisition
// failure is not fatal when the media artifact was produced.
func (f *YTDLPFetcher) FetchWithSubtitles(descriptor domain.VideoDescriptor, downloadPath string, sink domain.ProgressSink) (string, error) {
	return f.fetch(descriptor, downloadPath, sink, true)
}

// progressLine matches yt-dlp's --newline progress output, e.g.
// "[download]  42.5% of 10.00MiB at 1.00MiB/s ETA 00:05"
var progressLine = regexp.MustCompile(`\[download\]\s+([0-9.]+)% of\s+~?\s*([0-9.]+)(KiB|MiB|GiB|B)`)

// destinationLine matches the file yt-dlp is writing, e.g.
// "[download] Destination: /tmp/video.mp4"
var destinationLine = regexp.MustCompile(`\[(?:download|Merger|ExtractAudio)\][^/]*?(?:Destination:|into) "?(.+?)"?$`)

func (f *YTDLPFetcher) fetch(descriptor domain.VideoDescriptor, downloadPath string, sink domain.ProgressSink, subtitles bool) (string, error) {
	if err := descriptor.Validate(); err != nil {
		return "", err
	}
	if sink == nil {
		sink = func(int64, int64) error { return nil }
	}
	if err := os.MkdirAll(downloadPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	args := f.buildArgs(descriptor, downloadPath, subtitles)

	cmd := exec.Command(f.config.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to run %s: %w", f.config.Binary, err)
	}

	var (
		filePath      string
		subtitleError string
		tail          []string
		cancelled     bool
	)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		tail = appendTail(tail, line)

		if m := destinationLine.FindStringSubmatch(line); m != nil {
			if isSubtitleFile(m[1]) {
				continue
			}
			filePath = m[1]
		}
		if subtitles && isSubtitleErrorLine(line) {
			subtitleError = line
			continue
		}

		if m := progressLine.FindStringSubmatch(line); m != nil {
			percent, _ := strconv.ParseFloat(m[1], 64)
			size, _ := strconv.ParseFloat(m[2], 64)
			total := int64(size * unitBytes(m[3]))
			downloaded := int64(percent / 100 * float64(total))
			if err := sink(downloaded, total); err != nil {
				cancelled = true
				cmd.Process.Kill()
				break
			}
		}
	}

	waitErr := cmd.Wait()
	if cancelled {
		return "", domain.ErrCancelled
	}
	if waitErr != nil {
		// subtitle-only failure with the media artifact on disk still counts
		if subtitles && subtitleError != "" && filePath != "" && fileExists(filePath) {
			f.log.Warn("subtitle download failed, keeping media",
				zap.String("url", descriptor.URL),
				zap.String("detail", subtitleError))
			return filePath, nil
		}
		return "", fmt.Errorf("%s failed: %s", f.config.Binary, strings.Join(tail, "; "))
	}
	if filePath == "" || !fileExists(filePath) {
		return "", fmt.Errorf("no files downloaded for %s", descriptor.URL)
	}
	if subtitleError != "" {
		f.log.Warn("subtitle download failed, keeping media",
			zap.String("url", descriptor.URL),
			zap.String("detail", subtitleError))
	}

	// final checkpoint so the worker reports 100 even when yt-dlp's last
	// progress line fell below a boundary
	if info, err := os.Stat(filePath); err == nil {
		if err := sink(info.Size(), info.Size()); err != nil {
			return "", err
		}
	}
	return filePath, nil
}

func (f *YTDLPFetcher) buildArgs(descriptor domain.VideoDescriptor, downloadPath string, subtitles bool) []string {
	output := "%(title)s.%(ext)s"
	if descriptor.FilenameHint != "" {
		output = descriptor.FilenameHint + ".%(ext)s"
	}

	args := []string{
		"--newline",
		"--no-playlist",
		"--restrict-filenames",
		"-o", output,
		"-P", downloadPath,
	}

	if descriptor.SelectedQuality != "" && descriptor.SelectedQuality != "best" {
		height := strings.TrimSuffix(descriptor.SelectedQuality, "p")
		args = append(args, "-f", fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", height, height))
	}
	if subtitles {
		args = append(args, "--write-subs", "--sub-langs", "en.*", "--sub-format", "srt")
	}
	if f.config.ExtractAudio {
		args = append(args, "-x", "--audio-format", f.config.AudioFormat)
	}
	if f.config.CookiesFile != "" && fileExists(f.config.CookiesFile) {
		args = append(args, "--cookies", f.config.CookiesFile)
	}

	return append(args, descriptor.URL)
}

func unitBytes(unit string) float64 {
	switch unit {
	case "KiB":
		return 1024
	case "MiB":
		return 1024 * 1024
	case "GiB":
		return 1024 * 1024 * 1024
	}
	return 1
}

func isSubtitleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".srt" || ext == ".vtt" || ext == ".ass"
}

// isSubtitleErrorLine detects yt-dlp reporting a failed subtitle fetch
// (typically an HTTP 404 on the caption track)
func isSubtitleErrorLine(line string) bool {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "subtitle") && !strings.Contains(lower, "caption") {
		return false
	}
	return strings.Contains(lower, "404") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "unable to download") ||
		strings.Contains(lower, "no subtitles")
}

// appendTail keeps the last few output lines for error reporting
func appendTail(tail []string, line string) []string {
	if strings.TrimSpace(line) == "" {
		return tail
	}
	tail = append(tail, line)
	if len(tail) > 5 {
		tail = tail[1:]
	}
	return tail
}

func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
