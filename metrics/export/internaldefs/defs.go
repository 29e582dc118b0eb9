package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef defines a public type used by goToken APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goToken APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the token lifecycle service.
var CounterDefs = []CounterDef{
	{ID: goToken.MetricIssueSuccess, Name: "gotoken_issue_success_total", Help: "Successful token pair issuances."},
	{ID: goToken.MetricIssueFailure, Name: "gotoken_issue_failure_total", Help: "Failed token pair issuances."},
	{ID: goToken.MetricRefreshSuccess, Name: "gotoken_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goToken.MetricRefreshFailure, Name: "gotoken_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: goToken.MetricRefreshRateLimited, Name: "gotoken_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: goToken.MetricReuseDetected, Name: "gotoken_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: goToken.MetricChainTokensRevoked, Name: "gotoken_chain_tokens_revoked_total", Help: "Records revoked by chain-wide incident response."},
	{ID: goToken.MetricValidateSuccess, Name: "gotoken_validate_success_total", Help: "Successful access token validations."},
	{ID: goToken.MetricValidateFailure, Name: "gotoken_validate_failure_total", Help: "Failed access token validations."},
	{ID: goToken.MetricValidateRevoked, Name: "gotoken_validate_revoked_total", Help: "Validations denied by the revocation ledger."},
	{ID: goToken.MetricRevoke, Name: "gotoken_revoke_total", Help: "Single-token revocation operations."},
	{ID: goToken.MetricRevokeAll, Name: "gotoken_revoke_all_total", Help: "Bulk revocation operations (user or device scope)."},
	{ID: goToken.MetricTokensRevoked, Name: "gotoken_tokens_revoked_total", Help: "Records transitioned to REVOKED across all operations."},
	{ID: goToken.MetricSweepRecordsRemoved, Name: "gotoken_sweep_records_removed_total", Help: "Expired refresh records removed by sweeps."},
	{ID: goToken.MetricSweepEntriesRemoved, Name: "gotoken_sweep_entries_removed_total", Help: "Ledger entries removed by expiry or retention sweeps."},
	{ID: goToken.MetricLedgerEvictions, Name: "gotoken_ledger_evictions_total", Help: "Ledger entries evicted by the size cap."},
}

// HistogramDefs is an exported constant or variable used by the token lifecycle service.
var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricValidateLatency, Name: "gotoken_validate_latency_seconds", Help: "ValidateAccessToken latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the token lifecycle service.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the token lifecycle service.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus and OTel consumers expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
