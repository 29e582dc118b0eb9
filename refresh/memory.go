package refresh

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is a process-local [FullStore] for tests and single-node
// development setups. It applies the same conditional-update semantics as
// the Redis and Postgres stores.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record // jti -> record
	byHash  map[string]string // token hash -> jti
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		byHash:  make(map[string]string),
	}
}

// Create assigns a ULID store key and persists the record.
func (s *MemoryStore) Create(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.JTI]; exists {
		return Record{}, ErrDuplicateJTI
	}

	rec.ID = ulid.Make().String()
	s.records[rec.JTI] = rec
	s.byHash[rec.TokenHash] = rec.JTI
	return rec, nil
}

func (s *MemoryStore) FindByJTI(_ context.Context, jti string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jti]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jti, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	rec, ok := s.records[jti]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Save applies the conditional update against the stored status.
func (s *MemoryStore) Save(_ context.Context, updated Record, expectedStatus Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[updated.JTI]
	if !ok {
		return ErrRecordNotFound
	}
	if current.Status != expectedStatus {
		return ErrConcurrentModification
	}

	updated.ID = current.ID
	s.records[updated.JTI] = updated
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID int64, reason, excludeJTI string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for jti, rec := range s.records {
		if rec.UserID != userID || rec.Terminal() || jti == excludeJTI {
			continue
		}
		revoked, err := rec.MarkRevoked(reason, now)
		if err != nil {
			continue
		}
		s.records[jti] = revoked
		count++
	}
	return count, nil
}

func (s *MemoryStore) RevokeAllForDevice(_ context.Context, deviceID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for jti, rec := range s.records {
		if rec.Device.DeviceID != deviceID || rec.Terminal() {
			continue
		}
		revoked, err := rec.MarkRevoked(reason, now)
		if err != nil {
			continue
		}
		s.records[jti] = revoked
		count++
	}
	return count, nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if before.IsZero() {
		before = time.Now()
	}

	count := 0
	for jti, rec := range s.records {
		if rec.ExpiresAt.After(before) {
			continue
		}
		delete(s.records, jti)
		delete(s.byHash, rec.TokenHash)
		count++
	}
	return count, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID int64, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return sortAndTrim(out, limit), nil
}

func (s *MemoryStore) ListByDevice(_ context.Context, deviceID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range s.records {
		if rec.Device.DeviceID == deviceID {
			out = append(out, rec)
		}
	}
	return sortAndTrim(out, limit), nil
}

func sortAndTrim(recs []Record, limit int) []Record {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
