package goToken

import "time"

// SecurityReport is a read-only snapshot of the service's security posture,
// returned by [Service.SecurityReport].
type SecurityReport struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	// Rotation and reuse detection are structural properties of the refresh
	// protocol; they cannot be disabled.
	RefreshRotationEnforced      bool
	RefreshReuseDetectionEnabled bool

	RefreshThrottleActive bool
	LedgerCapActive       bool
	LedgerRetentionDays   int
	SweepActive           bool
	AuditActive           bool
	MetricsActive         bool
}

func (s *Service) SecurityReport() SecurityReport {
	if s == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:             s.config.JWT.SigningMethod,
		AccessTTL:                    s.config.JWT.AccessTTL,
		RefreshTTL:                   s.config.JWT.RefreshTTL,
		RefreshRotationEnforced:      true,
		RefreshReuseDetectionEnabled: true,
		RefreshThrottleActive:        s.config.Security.EnableRefreshThrottle,
		LedgerCapActive:              s.config.Ledger.MaxEntries > 0,
		LedgerRetentionDays:          s.config.Ledger.RetentionDays,
		SweepActive:                  s.config.Sweep.Enabled,
		AuditActive:                  s.config.Audit.Enabled,
		MetricsActive:                s.config.Metrics.Enabled,
	}
}
