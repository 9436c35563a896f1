// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames read from the capture source
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetpass_frames_total",
			Help: "Total number of frames read from the capture source",
		},
		[]string{"source"},
	)

	// FramesRejectedTotal counts frames dropped before filter parsing
	FramesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetpass_frames_rejected_total",
			Help: "Total number of frames rejected before module filter parsing",
		},
		[]string{"reason"}, // not_probe | no_vendor_element | bad_fcs | rate_limited | decode
	)

	// FilterParseErrorsTotal counts module filter parse failures by error kind
	FilterParseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetpass_filter_parse_errors_total",
			Help: "Total number of module filters that failed to parse",
		},
		[]string{"kind"},
	)

	// PeersParsedTotal counts module filters parsed successfully
	PeersParsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streetpass_peers_parsed_total",
			Help: "Total number of peer module filters parsed",
		},
	)

	// MatchesTotal counts peers whose filter matched the local filter
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streetpass_matches_total",
			Help: "Total number of peers matching the local module filter",
		},
	)

	// DuplicatesTotal counts matches suppressed by the dedup window
	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streetpass_duplicates_suppressed_total",
			Help: "Total number of matches suppressed inside the dedup window",
		},
	)

	// HandlerErrorsTotal counts encounter handler failures
	HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetpass_handler_errors_total",
			Help: "Total number of encounter handler errors",
		},
		[]string{"handler"},
	)

	// ReporterErrorsTotal counts reporter errors by name and error type
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetpass_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter", "error_type"},
	)

	// BeaconsSentTotal counts probe requests broadcast with the local filter
	BeaconsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetpass_beacons_sent_total",
			Help: "Total number of probe requests broadcast",
		},
		[]string{"interface", "result"}, // ok | error
	)

	// ParseLatencySeconds measures per-frame decode and match latency
	ParseLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streetpass_parse_latency_seconds",
			Help:    "Latency of decoding and matching one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 16), // 1µs to ~33ms
		},
	)

	// ScanActive is 1 while a scan is running
	ScanActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streetpass_scan_active",
			Help: "Whether a scan is currently running (1) or not (0)",
		},
	)

	// RateLimitedSources tracks distinct sources in the current rate limit window
	RateLimitedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streetpass_rate_limit_active_sources",
			Help: "Number of distinct source addresses in the current rate limit window",
		},
	)
)

// Frame rejection reasons used as the "reason" label.
const (
	ReasonNotProbe        = "not_probe"
	ReasonNoVendorElement = "no_vendor_element"
	ReasonBadFCS          = "bad_fcs"
	ReasonRateLimited     = "rate_limited"
	ReasonDecode          = "decode"
)
