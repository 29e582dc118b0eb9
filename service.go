package goToken

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	internal "github.com/MrEthical07/goToken/internal"
	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/ledger"
	"github.com/MrEthical07/goToken/refresh"
)

// Service is the token lifecycle orchestrator. It owns issuance, rotation,
// revocation, and validation of access/refresh token pairs, backed by a
// refresh token store and a revocation ledger.
//
// A Service is safe for concurrent use after [Builder.Build].
type Service struct {
	config  Config
	codec   *jwt.Manager
	store   refresh.FullStore
	ledger  ledger.Ledger
	limiter *rate.Limiter
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	sweeper *sweeper

	// sqlDB is non-nil only when Build opened the Postgres pool itself, so
	// Close can release it.
	sqlDB *sql.DB

	closed atomic.Bool
}

// Close stops the background sweeper, flushes the audit dispatcher, and
// releases any connection pool the builder opened. The Service must not be
// used afterwards.
func (s *Service) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.sweeper != nil {
		s.sweeper.stop()
	}
	s.audit.Close()
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
}

// MetricsSnapshot returns a point-in-time copy of all service metrics.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return s.metrics.Snapshot()
}

// AuditDropped reports how many audit events the dispatcher discarded under
// back-pressure.
func (s *Service) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

// Ledger exposes the revocation ledger's operational surface (stats, search,
// retention, eviction) for admin tooling. Request paths never need this.
func (s *Service) Ledger() ledger.Ledger {
	if s == nil {
		return nil
	}
	return s.ledger
}

// Store exposes the refresh record read model for admin tooling.
func (s *Service) Store() refresh.Reporter {
	if s == nil {
		return nil
	}
	return s.store
}

func (s *Service) ready() error {
	if s == nil || s.codec == nil || s.closed.Load() {
		return ErrServiceNotReady
	}
	return nil
}

func (s *Service) issueDeps() flows.IssueDeps {
	return flows.IssueDeps{
		Codec:     s.codec,
		Store:     s.store,
		NewJTI:    internal.NewJTI,
		HashToken: internal.HashTokenHex,
		Now:       time.Now,
	}
}

func (s *Service) refreshDeps() flows.RefreshDeps {
	deps := flows.RefreshDeps{
		Codec:    s.codec,
		Store:    s.store,
		Denylist: s.ledger,
		Issue:    s.issueDeps(),
	}
	if s.limiter != nil {
		deps.RateLimiter = s.limiter
	}
	return deps
}

func (s *Service) revokeDeps() flows.RevokeDeps {
	return flows.RevokeDeps{
		Store:    s.store,
		Denylist: s.ledger,
		Now:      time.Now,
	}
}

func (s *Service) emitAudit(ctx context.Context, eventType string, userID int64, jti string, device DeviceInfo, reason string, success bool, err error) {
	if s.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		JTI:       jti,
		DeviceID:  device.DeviceID,
		IP:        device.IP,
		Reason:    reason,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.audit.Emit(ctx, event)
}
