package internaldefs

import (
	tokens "github.com/markstack/tokens"
)

// CounterDef defines a public type used by the token service APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokens.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by the token service APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokens.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the token service.
var CounterDefs = []CounterDef{
	{ID: tokens.MetricIssueSuccess, Name: "tokens_issue_success_total", Help: "Successful token issuances."},
	{ID: tokens.MetricIssueFailure, Name: "tokens_issue_failure_total", Help: "Failed token issuances."},
	{ID: tokens.MetricValidateSuccess, Name: "tokens_validate_success_total", Help: "Successful access-token validations."},
	{ID: tokens.MetricValidateFailure, Name: "tokens_validate_failure_total", Help: "Failed access-token validations."},
	{ID: tokens.MetricRefreshSuccess, Name: "tokens_refresh_success_total", Help: "Successful refresh operations."},
	{ID: tokens.MetricRefreshFailure, Name: "tokens_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: tokens.MetricRefreshReuseBlocked, Name: "tokens_refresh_reuse_blocked_total", Help: "Refresh attempts blocked by rotation reuse detection."},
	{ID: tokens.MetricRevoke, Name: "tokens_revoke_total", Help: "Single refresh-token revocations."},
	{ID: tokens.MetricRevokeAll, Name: "tokens_revoke_all_total", Help: "Revoke-all-for-subject operations."},
	{ID: tokens.MetricTokensSwept, Name: "tokens_swept_total", Help: "Expired refresh-token records removed by sweeps."},
}

// HistogramDefs is an exported constant or variable used by the token service.
var HistogramDefs = []HistogramDef{
	{ID: tokens.MetricValidateLatency, Name: "tokens_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the token service.
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

// HistogramBoundSuffix is an exported constant or variable used by the token service.
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

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
