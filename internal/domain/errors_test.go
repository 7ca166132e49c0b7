package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Network(t *testing.T) {
	for _, msg := range []string{
		"Network is down",
		"connection refused",
		"request timed out",
		"host unreachable",
		"SSL handshake failed",
	} {
		assert.Equal(t, ErrorNetwork, Classify(msg), msg)
	}
}

func TestClassify_Authentication(t *testing.T) {
	for _, msg := range []string{
		"Login required to view this video",
		"This video is private",
		"members-only content",
		"HTTP Error 403: Forbidden",
	} {
		assert.Equal(t, ErrorAuthentication, Classify(msg), msg)
	}
}

func TestClassify_Format(t *testing.T) {
	for _, msg := range []string{
		"Requested format is not available",
		"requested quality missing",
		"video unavailable in this resolution",
	} {
		assert.Equal(t, ErrorFormat, Classify(msg), msg)
	}
}

func TestClassify_DefaultsToExtraction(t *testing.T) {
	assert.Equal(t, ErrorExtraction, Classify("something completely different"))
	assert.Equal(t, ErrorExtraction, Classify("unsupported URL"))
}

func TestClassify_Deterministic(t *testing.T) {
	msg := "connection timeout while fetching format list"
	first := Classify(msg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(msg))
	}
}

func TestNewDownloadError_WrapsAndClassifies(t *testing.T) {
	raw := fmt.Errorf("connection reset by peer")
	err := NewDownloadError(raw)

	var de *DownloadError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, ErrorNetwork, de.Kind)
	assert.True(t, errors.Is(err, raw))
	assert.Equal(t, ErrorNetwork, KindOf(err))
}

func TestNewDownloadError_CancelPassesThrough(t *testing.T) {
	err := NewDownloadError(ErrCancelled)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, ErrorCancelled, KindOf(err))
}

func TestNewDownloadError_Nil(t *testing.T) {
	assert.Nil(t, NewDownloadError(nil))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(ErrorNetwork, "timeout"), "Network error")
	assert.Contains(t, UserMessage(ErrorAuthentication, "login"), "Authentication")
	assert.Contains(t, UserMessage(ErrorFormat, "720p"), "Format")
	assert.Contains(t, UserMessage(ErrorExtraction, "nope"), "extract")
	assert.Equal(t, "Stopped by user", UserMessage(ErrorCancelled, "whatever"))
}
