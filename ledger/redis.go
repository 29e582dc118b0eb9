package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLedger is a Redis-backed [Ledger]. Entry keys carry a TTL to the
// denied token's expiry, so membership checks stay a single EXISTS and moot
// entries purge themselves; the time-ordered index drives retention sweeps
// and oldest-first eviction.
type RedisLedger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLedger creates a [RedisLedger] namespaced under prefix.
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "gt:bl"
	}
	return &RedisLedger{redis: client, prefix: prefix}
}

func (l *RedisLedger) entryKey(jti string) string {
	return l.prefix + ":e:" + jti
}

func (l *RedisLedger) hashKey(tokenHash string) string {
	return l.prefix + ":h:" + tokenHash
}

func (l *RedisLedger) userKey(userID int64) string {
	return l.prefix + ":u:" + strconv.FormatInt(userID, 10)
}

func (l *RedisLedger) deviceKey(deviceID string) string {
	return l.prefix + ":d:" + deviceID
}

func (l *RedisLedger) timeKey() string {
	return l.prefix + ":t"
}

// timeMember encodes jti, user, and device into the time index member so
// sweeps can reclaim the secondary indexes even after the entry key's TTL
// already fired.
func timeMember(e Entry) string {
	return e.JTI + "|" + strconv.FormatInt(e.UserID, 10) + "|" + e.DeviceID
}

func parseTimeMember(member string) (jti string, userID int64, deviceID string) {
	parts := strings.SplitN(member, "|", 3)
	jti = parts[0]
	if len(parts) > 1 {
		userID, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	if len(parts) > 2 {
		deviceID = parts[2]
	}
	return jti, userID, deviceID
}

type redisEntry struct {
	ID            string `json:"id"`
	JTI           string `json:"jti"`
	TokenHash     string `json:"token_hash,omitempty"`
	UserID        int64  `json:"user_id"`
	DeviceID      string `json:"device_id,omitempty"`
	Reason        string `json:"reason"`
	BlacklistedAt int64  `json:"blacklisted_at"`
	ExpiresAt     int64  `json:"expires_at"`
}

func encodeEntry(e Entry) ([]byte, error) {
	return json.Marshal(redisEntry{
		ID:            e.ID.String(),
		JTI:           e.JTI,
		TokenHash:     e.TokenHash,
		UserID:        e.UserID,
		DeviceID:      e.DeviceID,
		Reason:        e.Reason,
		BlacklistedAt: e.BlacklistedAt.Unix(),
		ExpiresAt:     e.ExpiresAt.Unix(),
	})
}

func decodeEntry(data []byte) (Entry, error) {
	var w redisEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return Entry{}, fmt.Errorf("%w: corrupt entry blob: %v", ErrLedgerUnavailable, err)
	}
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: corrupt entry id: %v", ErrLedgerUnavailable, err)
	}
	return Entry{
		ID:            id,
		JTI:           w.JTI,
		TokenHash:     w.TokenHash,
		UserID:        w.UserID,
		DeviceID:      w.DeviceID,
		Reason:        w.Reason,
		BlacklistedAt: time.Unix(w.BlacklistedAt, 0),
		ExpiresAt:     time.Unix(w.ExpiresAt, 0),
	}, nil
}

func (l *RedisLedger) Add(ctx context.Context, entry Entry) (bool, error) {
	data, err := encodeEntry(entry)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		// Denying an already-expired token is a no-op.
		return false, nil
	}

	ok, err := l.redis.SetNX(ctx, l.entryKey(entry.JTI), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !ok {
		return false, nil
	}

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if entry.TokenHash != "" {
			pipe.Set(ctx, l.hashKey(entry.TokenHash), entry.JTI, ttl)
		}
		pipe.SAdd(ctx, l.userKey(entry.UserID), entry.JTI)
		if entry.DeviceID != "" {
			pipe.SAdd(ctx, l.deviceKey(entry.DeviceID), entry.JTI)
		}
		pipe.ZAdd(ctx, l.timeKey(), redis.Z{
			Score:  float64(entry.BlacklistedAt.Unix()),
			Member: timeMember(entry),
		})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return true, nil
}

func (l *RedisLedger) AddBatch(ctx context.Context, entries []Entry) (int, error) {
	added := 0
	for _, entry := range entries {
		ok, err := l.Add(ctx, entry)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// IsRevoked is the request-path check: one EXISTS.
func (l *RedisLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.entryKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n > 0, nil
}

func (l *RedisLedger) IsTokenHashRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.hashKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n > 0, nil
}

func (l *RedisLedger) IsRevokedBatch(ctx context.Context, jtis []string) (map[string]bool, error) {
	out := make(map[string]bool, len(jtis))
	if len(jtis) == 0 {
		return out, nil
	}

	pipe := l.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(jtis))
	for i, jti := range jtis {
		cmds[i] = pipe.Exists(ctx, l.entryKey(jti))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	for i, cmd := range cmds {
		n, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		out[jtis[i]] = n > 0
	}
	return out, nil
}

func (l *RedisLedger) Remove(ctx context.Context, jti string) (bool, error) {
	entry, err := l.loadEntry(ctx, jti)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	if err := l.removeEntry(ctx, *entry); err != nil {
		return false, err
	}
	return true, nil
}

func (l *RedisLedger) RemoveBatch(ctx context.Context, jtis []string) (int, error) {
	removed := 0
	for _, jti := range jtis {
		ok, err := l.Remove(ctx, jti)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (l *RedisLedger) loadEntry(ctx context.Context, jti string) (*Entry, error) {
	data, err := l.redis.Get(ctx, l.entryKey(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (l *RedisLedger) removeEntry(ctx context.Context, entry Entry) error {
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, l.entryKey(entry.JTI))
		if entry.TokenHash != "" {
			pipe.Del(ctx, l.hashKey(entry.TokenHash))
		}
		pipe.SRem(ctx, l.userKey(entry.UserID), entry.JTI)
		if entry.DeviceID != "" {
			pipe.SRem(ctx, l.deviceKey(entry.DeviceID), entry.JTI)
		}
		pipe.ZRem(ctx, l.timeKey(), timeMember(entry))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (l *RedisLedger) RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error) {
	jtis, err := l.redis.SMembers(ctx, l.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return l.restampEach(ctx, jtis, reason, excludeJTI)
}

func (l *RedisLedger) RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error) {
	jtis, err := l.redis.SMembers(ctx, l.deviceKey(deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return l.restampEach(ctx, jtis, reason, "")
}

func (l *RedisLedger) restampEach(ctx context.Context, jtis []string, reason, excludeJTI string) (int, error) {
	count := 0
	for _, jti := range jtis {
		if jti == excludeJTI {
			continue
		}
		entry, err := l.loadEntry(ctx, jti)
		if err != nil {
			return count, err
		}
		if entry == nil {
			continue
		}
		entry.Reason = reason
		data, err := encodeEntry(*entry)
		if err != nil {
			return count, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		if err := l.redis.Set(ctx, l.entryKey(jti), data, redis.KeepTTL).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		count++
	}
	return count, nil
}

// CleanupExpiredEntries reclaims index state for entries whose denied token
// expired before the given time. The entry keys themselves age out via TTL;
// this sweep keeps the time index and the user/device sets honest.
// Admin-only O(n) over the time index; never call on the request path.
func (l *RedisLedger) CleanupExpiredEntries(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now()
	}

	members, err := l.redis.ZRange(ctx, l.timeKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	count := 0
	for _, member := range members {
		jti, userID, deviceID := parseTimeMember(member)
		entry, err := l.loadEntry(ctx, jti)
		if err != nil {
			return count, err
		}
		if entry != nil && entry.ExpiresAt.After(before) {
			continue
		}

		_, pipeErr := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, l.entryKey(jti))
			if entry != nil && entry.TokenHash != "" {
				pipe.Del(ctx, l.hashKey(entry.TokenHash))
			}
			pipe.SRem(ctx, l.userKey(userID), jti)
			if deviceID != "" {
				pipe.SRem(ctx, l.deviceKey(deviceID), jti)
			}
			pipe.ZRem(ctx, l.timeKey(), member)
			return nil
		})
		if pipeErr != nil {
			return count, fmt.Errorf("%w: %v", ErrLedgerUnavailable, pipeErr)
		}
		count++
	}
	return count, nil
}

// CleanupOldEntries removes entries blacklisted more than olderThanDays ago.
func (l *RedisLedger) CleanupOldEntries(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	max := strconv.FormatInt(cutoff.Unix(), 10)

	members, err := l.redis.ZRangeByScore(ctx, l.timeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	count := 0
	for _, member := range members {
		if err := l.removeMember(ctx, member); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (l *RedisLedger) removeMember(ctx context.Context, member string) error {
	jti, userID, deviceID := parseTimeMember(member)
	entry, err := l.loadEntry(ctx, jti)
	if err != nil {
		return err
	}

	_, pipeErr := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, l.entryKey(jti))
		if entry != nil && entry.TokenHash != "" {
			pipe.Del(ctx, l.hashKey(entry.TokenHash))
		}
		pipe.SRem(ctx, l.userKey(userID), jti)
		if deviceID != "" {
			pipe.SRem(ctx, l.deviceKey(deviceID), jti)
		}
		pipe.ZRem(ctx, l.timeKey(), member)
		return nil
	})
	if pipeErr != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, pipeErr)
	}
	return nil
}

// IsSizeExceeded compares the time-index cardinality against maxSize. The
// count can briefly include entries whose TTL already fired; the sweeps keep
// it honest.
func (l *RedisLedger) IsSizeExceeded(ctx context.Context, maxSize int64) (bool, error) {
	if maxSize <= 0 {
		return false, nil
	}
	n, err := l.redis.ZCard(ctx, l.timeKey()).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n > maxSize, nil
}

// EvictOldest removes up to count entries, oldest first.
func (l *RedisLedger) EvictOldest(ctx context.Context, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	members, err := l.redis.ZRange(ctx, l.timeKey(), 0, int64(count)-1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	evicted := 0
	for _, member := range members {
		if err := l.removeMember(ctx, member); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

func (l *RedisLedger) SizeInfo(ctx context.Context, maxSize int64) (SizeInfo, error) {
	n, err := l.redis.ZCard(ctx, l.timeKey()).Result()
	if err != nil {
		return SizeInfo{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return SizeInfo{
		Entries:    n,
		MaxEntries: maxSize,
		Exceeded:   maxSize > 0 && n > maxSize,
	}, nil
}

// Stats walks the time index and loads live entries.
// Admin-only O(n) operation; never call on the request path.
func (l *RedisLedger) Stats(ctx context.Context) (Stats, error) {
	entries, err := l.liveEntries(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:    int64(len(entries)),
		ByReason: make(map[string]int64),
	}
	for _, entry := range entries {
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

// Search filters live entries newest first.
// Admin-only O(n) operation; never call on the request path.
func (l *RedisLedger) Search(ctx context.Context, criteria SearchCriteria, limit, offset int) ([]Entry, error) {
	members, err := l.redis.ZRevRange(ctx, l.timeKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	matched := make([]Entry, 0)
	for _, member := range members {
		jti, _, _ := parseTimeMember(member)
		entry, err := l.loadEntry(ctx, jti)
		if err != nil {
			return nil, err
		}
		if entry == nil || !criteria.matches(*entry) {
			continue
		}
		matched = append(matched, *entry)
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

func (l *RedisLedger) liveEntries(ctx context.Context) ([]Entry, error) {
	members, err := l.redis.ZRange(ctx, l.timeKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	out := make([]Entry, 0, len(members))
	for _, member := range members {
		jti, _, _ := parseTimeMember(member)
		entry, err := l.loadEntry(ctx, jti)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		out = append(out, *entry)
	}
	return out, nil
}
