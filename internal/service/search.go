package service

import (
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
	"github.com/klyp/klyp-go/internal/pool"
)

// SearchService runs search queries on the search pool and reports results
// through the bus.
type SearchService struct {
	backend domain.SearchBackend
	pools   *pool.Registry
	bus     Publisher
	log     *zap.Logger
}

// NewSearchService wires the service
func NewSearchService(backend domain.SearchBackend, pools *pool.Registry, bus Publisher, log *zap.Logger) *SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchService{backend: backend, pools: pools, bus: bus, log: log}
}

// Search submits a query worker to the search pool. The outcome arrives as
// a SearchComplete or SearchFailed event; the returned handle is for tests
// and shutdown sequencing.
func (s *SearchService) Search(query string, filters map[string]string) (*pool.Handle, error) {
	searchPool, err := s.pools.SearchPool()
	if err != nil {
		return nil, err
	}

	handle, err := searchPool.Submit(func() (interface{}, error) {
		hits, err := s.backend.Search(query, filters)
		if err != nil {
			s.log.Error("search failed",
				zap.String("query", query),
				zap.String("operation", "search_worker"),
				zap.Error(err))
			s.bus.Publish(domain.NewEvent(domain.EventSearchFailed, domain.SearchFailedPayload{
				Query: query,
				Error: err.Error(),
			}))
			return nil, err
		}

		s.log.Info("search completed",
			zap.String("query", query),
			zap.Int("results", len(hits)))
		s.bus.Publish(domain.NewEvent(domain.EventSearchComplete, domain.SearchCompletePayload{
			Query:       query,
			Results:     hits,
			ResultCount: len(hits),
		}))
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}
