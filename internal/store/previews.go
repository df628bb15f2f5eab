package store

import (
	"fmt"

	"FlowSentry/internal/model"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Previews keeps the most recent batch previews in memory, keyed by batch
// ID. It is safe for concurrent use.
type Previews struct {
	cache *lru.Cache[string, model.Preview]
}

// NewPreviews creates a cache holding at most size previews.
func NewPreviews(size int) (*Previews, error) {
	cache, err := lru.New[string, model.Preview](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview cache: %w", err)
	}
	return &Previews{cache: cache}, nil
}

// Put stores p under its batch ID, evicting the oldest entry when full.
func (s *Previews) Put(p model.Preview) {
	s.cache.Add(p.BatchID, p)
}

// Get returns the preview of batch id.
func (s *Previews) Get(id string) (model.Preview, bool) {
	return s.cache.Get(id)
}

// Len returns the number of cached previews.
func (s *Previews) Len() int {
	return s.cache.Len()
}
