package goToken

import (
	"context"
	"log"
	"time"
)

// sweeper drives the out-of-band maintenance pass on a fixed interval. Its
// goroutine lifecycle mirrors the audit dispatcher: started by Build, stopped
// by Close, never reachable from a request path.
type sweeper struct {
	svc      *Service
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
}

func startSweeper(svc *Service, interval time.Duration) *sweeper {
	s := &sweeper{
		svc:      svc,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *sweeper) run() {
	defer close(s.finished)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.svc.Sweep(context.Background()); err != nil {
				log.Print("goToken: sweep failed: ", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *sweeper) stop() {
	if s == nil {
		return
	}
	close(s.done)
	<-s.finished
}

// Sweep runs one maintenance pass: expired refresh records and ledger
// entries are removed, retention-aged ledger entries are dropped, and the
// ledger size cap is enforced by evicting oldest entries. It can also be
// called directly when the periodic sweeper is disabled.
func (s *Service) Sweep(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	now := time.Now()

	removed, err := s.store.CleanupExpired(ctx, now)
	if err != nil {
		return err
	}
	s.metrics.Add(MetricSweepRecordsRemoved, uint64(removed))

	entries, err := s.ledger.CleanupExpiredEntries(ctx, now)
	if err != nil {
		return err
	}
	s.metrics.Add(MetricSweepEntriesRemoved, uint64(entries))

	if days := s.config.Ledger.RetentionDays; days > 0 {
		aged, retErr := s.ledger.CleanupOldEntries(ctx, days)
		if retErr != nil {
			return retErr
		}
		s.metrics.Add(MetricSweepEntriesRemoved, uint64(aged))
	}

	if maxEntries := s.config.Ledger.MaxEntries; maxEntries > 0 {
		exceeded, sizeErr := s.ledger.IsSizeExceeded(ctx, maxEntries)
		if sizeErr != nil {
			return sizeErr
		}
		if exceeded {
			evicted, evictErr := s.ledger.EvictOldest(ctx, s.config.Ledger.EvictBatchSize)
			if evictErr != nil {
				return evictErr
			}
			s.metrics.Add(MetricLedgerEvictions, uint64(evicted))
		}
	}

	return nil
}
