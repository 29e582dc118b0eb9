package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is a process-local [Ledger] for tests and single-node
// development setups.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry  // jti -> entry
	byHash  map[string]string // token hash -> jti
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]Entry),
		byHash:  make(map[string]string),
	}
}

func (l *MemoryLedger) Add(_ context.Context, entry Entry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(entry), nil
}

func (l *MemoryLedger) AddBatch(_ context.Context, entries []Entry) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, entry := range entries {
		if l.addLocked(entry) {
			added++
		}
	}
	return added, nil
}

func (l *MemoryLedger) addLocked(entry Entry) bool {
	if _, exists := l.entries[entry.JTI]; exists {
		return false
	}
	l.entries[entry.JTI] = entry
	if entry.TokenHash != "" {
		l.byHash[entry.TokenHash] = entry.JTI
	}
	return true
}

func (l *MemoryLedger) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[jti]
	return ok, nil
}

func (l *MemoryLedger) IsTokenHashRevoked(_ context.Context, tokenHash string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byHash[tokenHash]
	return ok, nil
}

func (l *MemoryLedger) IsRevokedBatch(_ context.Context, jtis []string) (map[string]bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]bool, len(jtis))
	for _, jti := range jtis {
		_, ok := l.entries[jti]
		out[jti] = ok
	}
	return out, nil
}

func (l *MemoryLedger) Remove(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(jti), nil
}

func (l *MemoryLedger) RemoveBatch(_ context.Context, jtis []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, jti := range jtis {
		if l.removeLocked(jti) {
			removed++
		}
	}
	return removed, nil
}

func (l *MemoryLedger) removeLocked(jti string) bool {
	entry, ok := l.entries[jti]
	if !ok {
		return false
	}
	delete(l.entries, jti)
	if entry.TokenHash != "" {
		delete(l.byHash, entry.TokenHash)
	}
	return true
}

func (l *MemoryLedger) RevokeAllForUser(_ context.Context, userID int64, reason, excludeJTI string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for jti, entry := range l.entries {
		if entry.UserID != userID || jti == excludeJTI {
			continue
		}
		entry.Reason = reason
		l.entries[jti] = entry
		count++
	}
	return count, nil
}

func (l *MemoryLedger) RevokeAllForDevice(_ context.Context, deviceID, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for jti, entry := range l.entries {
		if entry.DeviceID != deviceID {
			continue
		}
		entry.Reason = reason
		l.entries[jti] = entry
		count++
	}
	return count, nil
}

func (l *MemoryLedger) CleanupExpiredEntries(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if before.IsZero() {
		before = time.Now()
	}

	count := 0
	for jti, entry := range l.entries {
		if entry.ExpiresAt.After(before) {
			continue
		}
		l.removeLocked(jti)
		count++
	}
	return count, nil
}

func (l *MemoryLedger) CleanupOldEntries(_ context.Context, olderThanDays int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	count := 0
	for jti, entry := range l.entries {
		if entry.BlacklistedAt.After(cutoff) {
			continue
		}
		l.removeLocked(jti)
		count++
	}
	return count, nil
}

func (l *MemoryLedger) IsSizeExceeded(_ context.Context, maxSize int64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maxSize > 0 && int64(len(l.entries)) > maxSize, nil
}

func (l *MemoryLedger) EvictOldest(_ context.Context, count int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count <= 0 {
		return 0, nil
	}

	ordered := l.orderedLocked()
	evicted := 0
	for i := len(ordered) - 1; i >= 0 && evicted < count; i-- {
		l.removeLocked(ordered[i].JTI)
		evicted++
	}
	return evicted, nil
}

func (l *MemoryLedger) SizeInfo(_ context.Context, maxSize int64) (SizeInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := int64(len(l.entries))
	return SizeInfo{
		Entries:    entries,
		MaxEntries: maxSize,
		Exceeded:   maxSize > 0 && entries > maxSize,
	}, nil
}

func (l *MemoryLedger) Stats(_ context.Context) (Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		Total:    int64(len(l.entries)),
		ByReason: make(map[string]int64),
	}
	for _, entry := range l.entries {
		stats.ByReason[entry.Reason]++
		if stats.OldestAt.IsZero() || entry.BlacklistedAt.Before(stats.OldestAt) {
			stats.OldestAt = entry.BlacklistedAt
		}
		if entry.BlacklistedAt.After(stats.NewestAt) {
			stats.NewestAt = entry.BlacklistedAt
		}
	}
	return stats, nil
}

func (l *MemoryLedger) Search(_ context.Context, criteria SearchCriteria, limit, offset int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]Entry, 0)
	for _, entry := range l.orderedLocked() {
		if criteria.matches(entry) {
			matched = append(matched, entry)
		}
	}

	if offset >= len(matched) {
		return []Entry{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// orderedLocked returns all entries newest first.
func (l *MemoryLedger) orderedLocked() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BlacklistedAt.After(out[j].BlacklistedAt)
	})
	return out
}
