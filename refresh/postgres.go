package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/goToken/migrations"
)

// DBTX abstracts *sql.DB and *sql.Tx so the store can run inside a caller's
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is a SQL-backed [FullStore] for deployments that want
// refresh records in their relational database. The conditional Save maps to
// an UPDATE guarded by the expected status, so the CAS semantics match the
// Redis store exactly.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps an existing connection or transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a pgx connection for the DSN, applies embedded
// migrations, and returns a ready store.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open: %v", ErrStoreUnavailable, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return NewPostgresStore(db), db, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%w: migrations: %v", ErrStoreUnavailable, err)
	}
	return nil
}

const recordColumns = `id, jti, user_id, token_hash, status,
	device_id, device_name, device_ip, device_ua,
	revoked_reason, revoked_at, last_used_at,
	parent_jti, expires_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	rec.ID = ulid.Make().String()

	query := `INSERT INTO refresh_tokens
		(id, jti, user_id, token_hash, status,
		 device_id, device_name, device_ip, device_ua,
		 parent_jti, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.JTI, rec.UserID, rec.TokenHash, string(rec.Status),
		rec.Device.DeviceID, rec.Device.Name, rec.Device.IP, rec.Device.UserAgent,
		rec.ParentJTI, rec.ExpiresAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateJTI
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return rec, nil
}

func (s *PostgresStore) FindByJTI(ctx context.Context, jti string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens WHERE jti = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, jti))
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, tokenHash))
}

// Save is the conditional update. The WHERE clause carries the expected
// status, so a concurrent transition makes RowsAffected zero and the follow
// up existence probe distinguishes a lost CAS from a missing record.
func (s *PostgresStore) Save(ctx context.Context, updated Record, expectedStatus Status) error {
	query := `UPDATE refresh_tokens SET
		status = $1, revoked_reason = $2, revoked_at = $3,
		last_used_at = $4, updated_at = $5
		WHERE jti = $6 AND status = $7`

	res, err := s.db.ExecContext(ctx, query,
		string(updated.Status), updated.RevokedReason, nullTime(updated.RevokedAt),
		nullTime(updated.LastUsedAt), updated.UpdatedAt,
		updated.JTI, string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE jti = $1)`
	if err := s.db.QueryRowContext(ctx, probe, updated.JTI).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists {
		return ErrConcurrentModification
	}
	return ErrRecordNotFound
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error) {
	query := `UPDATE refresh_tokens SET
		status = $1, revoked_reason = $2, revoked_at = $3, updated_at = $3
		WHERE user_id = $4 AND status = $5 AND jti <> $6`

	res, err := s.db.ExecContext(ctx, query,
		string(StatusRevoked), reason, time.Now(), userID, string(StatusActive), excludeJTI,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

func (s *PostgresStore) RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error) {
	query := `UPDATE refresh_tokens SET
		status = $1, revoked_reason = $2, revoked_at = $3, updated_at = $3
		WHERE device_id = $4 AND status = $5`

	res, err := s.db.ExecContext(ctx, query,
		string(StatusRevoked), reason, time.Now(), deviceID, string(StatusActive),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

func (s *PostgresStore) CleanupExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens
		WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.scanMany(ctx, query, args...)
}

func (s *PostgresStore) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens
		WHERE device_id = $1 ORDER BY created_at DESC`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.scanMany(ctx, query, args...)
}

func (s *PostgresStore) scanMany(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		status     string
		revokedAt  sql.NullTime
		lastUsedAt sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &rec.JTI, &rec.UserID, &rec.TokenHash, &status,
		&rec.Device.DeviceID, &rec.Device.Name, &rec.Device.IP, &rec.Device.UserAgent,
		&rec.RevokedReason, &revokedAt, &lastUsedAt,
		&rec.ParentJTI, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec.Status = Status(status)
	if revokedAt.Valid {
		rec.RevokedAt = revokedAt.Time
	}
	if lastUsedAt.Valid {
		rec.LastUsedAt = lastUsedAt.Time
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// isUniqueViolation matches the Postgres unique_violation SQLSTATE without
// binding the store to a single driver error type.
func isUniqueViolation(err error) bool {
	type sqlState interface{ SQLState() string }
	var st sqlState
	if errors.As(err, &st) {
		return st.SQLState() == "23505"
	}
	return false
}
