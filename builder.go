package goToken

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/ledger"
	"github.com/MrEthical07/goToken/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Service]. Configure it with the WithXxx methods and
// call [Builder.Build] exactly once.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	postgresDSN string
	store       refresh.FullStore
	ledgerImpl  ledger.Ledger
	auditSink   AuditSink

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Key material is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the default refresh store, the
// revocation ledger, and the refresh throttle.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithPostgres switches the refresh store to Postgres. Build opens the pool,
// runs pending migrations, and Close releases it. The revocation ledger
// still needs Redis or an explicit [Builder.WithLedger].
func (b *Builder) WithPostgres(dsn string) *Builder {
	b.postgresDSN = dsn
	return b
}

// WithStore injects a custom refresh store, overriding Redis/Postgres wiring.
func (b *Builder) WithStore(store refresh.FullStore) *Builder {
	b.store = store
	return b
}

// WithLedger injects a custom revocation ledger, overriding Redis wiring.
func (b *Builder) WithLedger(l ledger.Ledger) *Builder {
	b.ledgerImpl = l
	return b
}

// WithAuditSink sets the sink receiving audit events when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, proves the signing key pair, wires the
// stores, and returns a ready [Service]. Every configuration failure is
// reported here, at startup, wrapped in [ErrConfiguration].
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfiguration)
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	codec, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		if errors.Is(err, jwt.ErrKeyMismatch) {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("%w: codec: %v", ErrConfiguration, err)
	}

	svc := &Service{
		config:  cfg,
		codec:   codec,
		metrics: NewMetrics(cfg.Metrics),
	}

	switch {
	case b.store != nil:
		svc.store = b.store
	case b.postgresDSN != "":
		store, db, openErr := refresh.OpenPostgresStore(context.Background(), b.postgresDSN)
		if openErr != nil {
			return nil, fmt.Errorf("%w: postgres store: %v", ErrConfiguration, openErr)
		}
		svc.store = store
		svc.sqlDB = db
	case b.redis != nil:
		svc.store = refresh.NewRedisStore(b.redis, cfg.Store.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: a refresh store is required (WithRedis, WithPostgres, or WithStore)", ErrConfiguration)
	}

	switch {
	case b.ledgerImpl != nil:
		svc.ledger = b.ledgerImpl
	case b.redis != nil:
		svc.ledger = ledger.NewRedisLedger(b.redis, cfg.Ledger.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: a revocation ledger is required (WithRedis or WithLedger)", ErrConfiguration)
	}

	if cfg.Security.EnableRefreshThrottle {
		if b.redis == nil {
			return nil, fmt.Errorf("%w: refresh throttle requires a redis client", ErrConfiguration)
		}
		svc.limiter = rate.New(b.redis, rate.Config{
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	}

	svc.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	if cfg.Sweep.Enabled {
		svc.sweeper = startSweeper(svc, cfg.Sweep.Interval)
	}

	b.built = true

	return svc, nil
}
