package repository

import (
	"context"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/patrickmn/go-cache"
)

// MemorySessionStore keeps session records in process memory. Records are
// lost on restart.
type MemorySessionStore struct {
	cache *cache.Cache
}

// NewMemorySessionStore creates a store whose records expire after
// retention without a Save.
func NewMemorySessionStore(retention time.Duration) *MemorySessionStore {
	if retention <= 0 {
		retention = DefaultSessionRetention
	}
	return &MemorySessionStore{cache: cache.New(retention, 10*time.Minute)}
}

// Load returns a copy of the record of sid, or ErrSessionNotFound.
func (s *MemorySessionStore) Load(_ context.Context, sid string) (*models.SessionRecord, error) {
	if x, found := s.cache.Get(sid); found {
		rec := x.(models.SessionRecord)
		return &rec, nil
	}
	return nil, ErrSessionNotFound
}

// Save stores a copy of rec.
func (s *MemorySessionStore) Save(_ context.Context, sid string, rec *models.SessionRecord) error {
	s.cache.Set(sid, *rec, cache.DefaultExpiration)
	return nil
}

// Delete removes the record of sid.
func (s *MemorySessionStore) Delete(_ context.Context, sid string) error {
	if _, found := s.cache.Get(sid); !found {
		return ErrSessionNotFound
	}
	s.cache.Delete(sid)
	return nil
}
