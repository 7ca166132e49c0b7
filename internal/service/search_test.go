package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klyp/klyp-go/internal/domain"
	"github.com/klyp/klyp-go/internal/pool"
)

type stubBackend struct {
	hits []domain.SearchHit
	err  error
}

func (b *stubBackend) Search(query string, filters map[string]string) ([]domain.SearchHit, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.hits, nil
}

func TestSearch_PublishesResults(t *testing.T) {
	backend := &stubBackend{hits: []domain.SearchHit{
		{ID: "1", URL: "https://example.com/1", Title: "First"},
		{ID: "2", URL: "https://example.com/2", Title: "Second"},
	}}
	bus := &recordingBus{}
	pools := pool.NewRegistry(nil)
	defer pools.Shutdown(time.Second)

	svc := NewSearchService(backend, pools, bus, nil)
	handle, err := svc.Search("cats", nil)
	require.NoError(t, err)

	_, err = handle.Outcome()
	require.NoError(t, err)

	results := bus.byKind(domain.EventSearchComplete)
	require.Len(t, results, 1)
	payload := results[0].Payload.(domain.SearchCompletePayload)
	assert.Equal(t, "cats", payload.Query)
	assert.Equal(t, 2, payload.ResultCount)
	assert.Len(t, payload.Results, 2)
	assert.Zero(t, bus.countKind(domain.EventSearchFailed))
}

func TestSearch_PublishesFailure(t *testing.T) {
	backend := &stubBackend{err: fmt.Errorf("search backend down")}
	bus := &recordingBus{}
	pools := pool.NewRegistry(nil)
	defer pools.Shutdown(time.Second)

	svc := NewSearchService(backend, pools, bus, nil)
	handle, err := svc.Search("dogs", nil)
	require.NoError(t, err)

	_, err = handle.Outcome()
	assert.Error(t, err)

	failures := bus.byKind(domain.EventSearchFailed)
	require.Len(t, failures, 1)
	payload := failures[0].Payload.(domain.SearchFailedPayload)
	assert.Equal(t, "dogs", payload.Query)
	assert.Contains(t, payload.Error, "down")
	assert.Zero(t, bus.countKind(domain.EventSearchComplete))
}

func TestSearch_AfterShutdownFails(t *testing.T) {
	pools := pool.NewRegistry(nil)
	pools.Shutdown(time.Second)

	svc := NewSearchService(&stubBackend{}, pools, &recordingBus{}, nil)
	_, err := svc.Search("anything", nil)
	assert.ErrorIs(t, err, pool.ErrRegistryClosed)
}
