package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of download error variants
type ErrorKind string

const (
	ErrorNetwork        ErrorKind = "network"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorFormat         ErrorKind = "format"
	ErrorExtraction     ErrorKind = "extraction"
	ErrorCancelled      ErrorKind = "cancelled"
	ErrorOther          ErrorKind = "other"
)

// ErrCancelled is the canonical cancel signal. Workers return it when they
// observe their cancellation token; the completion callback matches on it to
// distinguish user stops from failures.
var ErrCancelled = errors.New("download stopped by user")

// DownloadError wraps a fetcher error with its classified kind
type DownloadError struct {
	Kind ErrorKind
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError classifies err and wraps it. Cancellation passes through
// unchanged so errors.Is(err, ErrCancelled) keeps working.
func NewDownloadError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return &DownloadError{Kind: Classify(err.Error()), Err: err}
}

// KindOf returns the variant of an error produced by a worker
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCancelled) {
		return ErrorCancelled
	}
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorOther
}

var classifierKeywords = []struct {
	kind     ErrorKind
	keywords []string
}{
	{ErrorNetwork, []string{
		"network", "connection", "timeout", "unreachable",
		"dns", "ssl", "certificate", "timed out",
	}},
	{ErrorAuthentication, []string{
		"login", "authentication", "credentials", "forbidden",
		"unauthorized", "401", "403", "private", "members-only",
	}},
	{ErrorFormat, []string{
		"format", "quality", "codec", "unavailable",
		"no suitable", "postprocessing",
	}},
}

// Classify maps a raw fetcher error message to an error variant. Pure and
// deterministic; anything not matched by the keyword sets is Extraction.
func Classify(message string) ErrorKind {
	lower := strings.ToLower(message)
	for _, c := range classifierKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.kind
			}
		}
	}
	return ErrorExtraction
}

// UserMessage renders the human-readable template for a failure variant
func UserMessage(kind ErrorKind, detail string) string {
	switch kind {
	case ErrorNetwork:
		return fmt.Sprintf("Network error: %s", detail)
	case ErrorAuthentication:
		return fmt.Sprintf("Authentication required: %s", detail)
	case ErrorFormat:
		return fmt.Sprintf("Format not available: %s", detail)
	case ErrorExtraction:
		return fmt.Sprintf("Could not extract video: %s", detail)
	case ErrorCancelled:
		return "Stopped by user"
	}
	return fmt.Sprintf("Download failed: %s", detail)
}
