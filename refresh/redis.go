package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	saveStatusNotFound int64 = 0
	saveStatusMismatch int64 = 1
	saveStatusSaved    int64 = 2
)

// Conditional record update: replaces the blob only while the stored status
// still matches what the caller last read. This CAS is what turns a replayed
// rotation into a detectable ErrConcurrentModification instead of a lost
// update.
const saveRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local rec = cjson.decode(data)
if rec.status ~= ARGV[1] then
  return 1
end
redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
return 2
`

var saveRecordLua = redis.NewScript(saveRecordScript)

// RedisStore is a Redis-backed [FullStore]. Records are stored as JSON blobs
// keyed by jti, with secondary indexes for token hash, user, device, and a
// sorted set over expiry timestamps that drives CleanupExpired.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore] namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gt"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) recordKey(jti string) string {
	return s.prefix + ":r:" + jti
}

func (s *RedisStore) hashKey(tokenHash string) string {
	return s.prefix + ":h:" + tokenHash
}

func (s *RedisStore) userKey(userID int64) string {
	return s.prefix + ":u:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) deviceKey(deviceID string) string {
	return s.prefix + ":d:" + deviceID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":exp"
}

// wire shape. Field names are part of the Lua CAS contract (rec.status).
type redisRecord struct {
	ID            string `json:"id"`
	JTI           string `json:"jti"`
	UserID        int64  `json:"user_id"`
	TokenHash     string `json:"token_hash"`
	Status        string `json:"status"`
	DeviceID      string `json:"device_id,omitempty"`
	DeviceName    string `json:"device_name,omitempty"`
	DeviceIP      string `json:"device_ip,omitempty"`
	DeviceUA      string `json:"device_ua,omitempty"`
	RevokedReason string `json:"revoked_reason,omitempty"`
	RevokedAt     int64  `json:"revoked_at,omitempty"`
	LastUsedAt    int64  `json:"last_used_at,omitempty"`
	ParentJTI     string `json:"parent_jti,omitempty"`
	ExpiresAt     int64  `json:"expires_at"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

func encodeRecord(rec Record) ([]byte, error) {
	w := redisRecord{
		ID:            rec.ID,
		JTI:           rec.JTI,
		UserID:        rec.UserID,
		TokenHash:     rec.TokenHash,
		Status:        string(rec.Status),
		DeviceID:      rec.Device.DeviceID,
		DeviceName:    rec.Device.Name,
		DeviceIP:      rec.Device.IP,
		DeviceUA:      rec.Device.UserAgent,
		RevokedReason: rec.RevokedReason,
		ParentJTI:     rec.ParentJTI,
		ExpiresAt:     rec.ExpiresAt.Unix(),
		CreatedAt:     rec.CreatedAt.Unix(),
		UpdatedAt:     rec.UpdatedAt.Unix(),
	}
	if !rec.RevokedAt.IsZero() {
		w.RevokedAt = rec.RevokedAt.Unix()
	}
	if !rec.LastUsedAt.IsZero() {
		w.LastUsedAt = rec.LastUsedAt.Unix()
	}
	return json.Marshal(w)
}

func decodeRecord(data []byte) (Record, error) {
	var w redisRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: corrupt record blob: %v", ErrStoreUnavailable, err)
	}
	rec := Record{
		ID:        w.ID,
		JTI:       w.JTI,
		UserID:    w.UserID,
		TokenHash: w.TokenHash,
		Status:    Status(w.Status),
		Device: DeviceInfo{
			DeviceID:  w.DeviceID,
			Name:      w.DeviceName,
			IP:        w.DeviceIP,
			UserAgent: w.DeviceUA,
		},
		RevokedReason: w.RevokedReason,
		ParentJTI:     w.ParentJTI,
		ExpiresAt:     time.Unix(w.ExpiresAt, 0),
		CreatedAt:     time.Unix(w.CreatedAt, 0),
		UpdatedAt:     time.Unix(w.UpdatedAt, 0),
	}
	if w.RevokedAt != 0 {
		rec.RevokedAt = time.Unix(w.RevokedAt, 0)
	}
	if w.LastUsedAt != 0 {
		rec.LastUsedAt = time.Unix(w.LastUsedAt, 0)
	}
	return rec, nil
}

// Create persists a new ACTIVE record and its lookup indexes. Record and
// hash keys carry a TTL to the record's expiry, so even USED records stay
// queryable for reuse detection until the token would have expired anyway.
func (s *RedisStore) Create(ctx context.Context, rec Record) (Record, error) {
	rec.ID = ulid.Make().String()

	data, err := encodeRecord(rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return Record{}, fmt.Errorf("%w: record already expired", ErrRecordInvalid)
	}

	ok, err := s.redis.SetNX(ctx, s.recordKey(rec.JTI), data, ttl).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return Record{}, ErrDuplicateJTI
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.hashKey(rec.TokenHash), rec.JTI, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.JTI)
		if rec.Device.DeviceID != "" {
			pipe.SAdd(ctx, s.deviceKey(rec.Device.DeviceID), rec.JTI)
		}
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(rec.ExpiresAt.Unix()), Member: rec.JTI})
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return rec, nil
}

func (s *RedisStore) FindByJTI(ctx context.Context, jti string) (Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) FindByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	jti, err := s.redis.Get(ctx, s.hashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.FindByJTI(ctx, jti)
}

// Save runs the Lua CAS against the stored status.
func (s *RedisStore) Save(ctx context.Context, updated Record, expectedStatus Status) error {
	data, err := encodeRecord(updated)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result, err := saveRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(updated.JTI)},
		string(expectedStatus),
		data,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch result {
	case saveStatusNotFound:
		return ErrRecordNotFound
	case saveStatusMismatch:
		return ErrConcurrentModification
	case saveStatusSaved:
		return nil
	default:
		return fmt.Errorf("%w: unknown save script status %d", ErrStoreUnavailable, result)
	}
}

// RevokeAllForUser revokes every non-terminal record tracked for the user.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the user's jti
// set (SMembers), fetches the records (pipeline GET), then revokes each one
// through the conditional Save. A record rotated between the read and write
// phases loses its CAS and is simply skipped; a record created between the
// phases is not captured by this call. Both races are narrow and only affect
// logout-all semantics. Callers requiring stronger guarantees can invoke
// RevokeAllForUser a second time.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error) {
	jtis, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.revokeEach(ctx, jtis, reason, excludeJTI)
}

// RevokeAllForDevice is RevokeAllForUser scoped to one device. Same
// atomicity caveat applies.
func (s *RedisStore) RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error) {
	jtis, err := s.redis.SMembers(ctx, s.deviceKey(deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.revokeEach(ctx, jtis, reason, "")
}

func (s *RedisStore) revokeEach(ctx context.Context, jtis []string, reason, excludeJTI string) (int, error) {
	now := time.Now()
	count := 0
	for _, jti := range jtis {
		if jti == excludeJTI {
			continue
		}
		rec, err := s.FindByJTI(ctx, jti)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			return count, err
		}
		revoked, err := rec.MarkRevoked(reason, now)
		if err != nil {
			continue
		}
		if err := s.Save(ctx, revoked, rec.Status); err != nil {
			if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrConcurrentModification) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// CleanupExpired walks the expiry sorted set and deletes records whose
// expiry passed before the given time, together with their indexes. Run
// out-of-band; the record keys themselves also carry Redis TTLs, so this
// mostly reclaims index entries.
func (s *RedisStore) CleanupExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now()
	}
	max := strconv.FormatInt(before.Unix(), 10)

	jtis, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count := 0
	for _, jti := range jtis {
		rec, err := s.FindByJTI(ctx, jti)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return count, err
		}

		_, pipeErr := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.recordKey(jti))
			pipe.ZRem(ctx, s.expiryKey(), jti)
			if err == nil {
				pipe.Del(ctx, s.hashKey(rec.TokenHash))
				pipe.SRem(ctx, s.userKey(rec.UserID), jti)
				if rec.Device.DeviceID != "" {
					pipe.SRem(ctx, s.deviceKey(rec.Device.DeviceID), jti)
				}
			}
			return nil
		})
		if pipeErr != nil {
			return count, fmt.Errorf("%w: %v", ErrStoreUnavailable, pipeErr)
		}
		count++
	}
	return count, nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error) {
	return s.listSet(ctx, s.userKey(userID), limit)
}

func (s *RedisStore) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	return s.listSet(ctx, s.deviceKey(deviceID), limit)
}

func (s *RedisStore) listSet(ctx context.Context, setKey string, limit int) ([]Record, error) {
	jtis, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(jtis) == 0 {
		return []Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(jtis))
	for i, jti := range jtis {
		cmds[i] = pipe.Get(ctx, s.recordKey(jti))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Record, 0, len(jtis))
	for _, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		rec, decErr := decodeRecord(data)
		if decErr != nil {
			return nil, decErr
		}
		out = append(out, rec)
	}
	return sortAndTrim(out, limit), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
