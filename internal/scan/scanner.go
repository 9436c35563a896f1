// Package scan reads probe requests from a frame source, decodes the module
// filters they advertise and surfaces the peers whose filter matches the
// local one.
package scan

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/segmentio/ksuid"

	"firestige.xyz/streetpass/internal/ccmp"
	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/internal/dot11"
	"firestige.xyz/streetpass/internal/metrics"
	"firestige.xyz/streetpass/internal/source"
)

// Config wires a Scanner.
type Config struct {
	Local    *cec.ModuleFilter // required
	LocalMAC net.HardwareAddr  // master address for session keys
	OUI      dot11.VendorOUI

	VerifyFCS   bool
	KeepFrames  bool
	DedupWindow time.Duration // 0 = report every match
	RateLimit   RateLimiterConfig

	Deriver *ccmp.Deriver // nil = no session keys
	Handler Handler       // nil = matches are only counted

	SourceName string // "source" metric label
}

// Stats is a snapshot of scanner counters.
type Stats struct {
	Frames        uint64 `json:"frames"`
	Probes        uint64 `json:"probes"`
	Rejected      uint64 `json:"rejected"`
	Payloads      uint64 `json:"payloads"`
	ParseErrors   uint64 `json:"parse_errors"`
	Matches       uint64 `json:"matches"`
	Duplicates    uint64 `json:"duplicates"`
	RateLimited   uint64 `json:"rate_limited"`
	HandlerErrors uint64 `json:"handler_errors"`
}

// Scanner matches captured peers against the local module filter.
// Run and HandleFrame must not be called concurrently.
type Scanner struct {
	cfg       Config
	sessionID string
	decoder   *dot11.Decoder
	limiter   *RateLimiter
	seen      *cache.Cache // peer key → struct{}

	frames        atomic.Uint64
	probes        atomic.Uint64
	rejected      atomic.Uint64
	payloads      atomic.Uint64
	parseErrors   atomic.Uint64
	matches       atomic.Uint64
	duplicates    atomic.Uint64
	rateLimited   atomic.Uint64
	handlerErrors atomic.Uint64
}

// New creates a scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Local == nil {
		return nil, errors.New("scan: local module filter is required")
	}
	if cfg.OUI == (dot11.VendorOUI{}) {
		cfg.OUI = dot11.DefaultVendorOUI
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "unknown"
	}
	s := &Scanner{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		decoder:   dot11.NewDecoder(cfg.OUI),
		limiter:   NewRateLimiter(cfg.RateLimit),
	}
	if cfg.DedupWindow > 0 {
		s.seen = cache.New(cfg.DedupWindow, 2*cfg.DedupWindow)
	}
	return s, nil
}

// SessionID identifies this scanner's run in every encounter it emits.
func (s *Scanner) SessionID() string { return s.sessionID }

// Run reads src until it is exhausted or ctx is cancelled. Per-frame
// failures are counted and skipped; only source errors end the run.
func (s *Scanner) Run(ctx context.Context, src source.Source) error {
	metrics.ScanActive.Set(1)
	defer metrics.ScanActive.Set(0)

	logger := slog.Default().With("component", "scan", "session_id", s.sessionID)
	logger.Info("scan started", "source", s.cfg.SourceName, "link_type", src.LinkType(), "oui", s.cfg.OUI)

	link := src.LinkType()
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("scan stopped", "stats", s.Stats())
			return nil
		}

		data, ci, err := src.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, core.ErrCaptureTimeout):
			continue
		case errors.Is(err, io.EOF):
			logger.Info("scan finished, source exhausted", "stats", s.Stats())
			return nil
		default:
			return fmt.Errorf("read frame: %w", err)
		}

		if err := s.HandleFrame(ctx, data, ci, link); err != nil {
			logger.Debug("frame skipped", "error", err)
		}
	}
}

// HandleFrame processes one captured frame. The error explains why the frame
// produced no encounter; a frame that parsed but did not match returns nil.
func (s *Scanner) HandleFrame(ctx context.Context, data []byte, ci gopacket.CaptureInfo, link layers.LinkType) error {
	start := time.Now()
	defer func() { metrics.ParseLatencySeconds.Observe(time.Since(start).Seconds()) }()

	s.frames.Add(1)
	metrics.FramesTotal.WithLabelValues(s.cfg.SourceName).Inc()

	req, err := s.decoder.Decode(data, link)
	if err != nil {
		s.reject(rejectReason(err))
		return err
	}
	s.probes.Add(1)

	if s.cfg.VerifyFCS && !req.FCSValid {
		s.reject(metrics.ReasonBadFCS)
		return fmt.Errorf("%w: from %s", core.ErrBadFCS, req.Source)
	}

	ts := ci.Timestamp
	if ts.IsZero() {
		ts = start
	}
	if !s.limiter.Allow(req.Source, ts) {
		s.rateLimited.Add(1)
		s.reject(metrics.ReasonRateLimited)
		metrics.RateLimitedSources.Set(float64(s.limiter.ActiveSources()))
		return fmt.Errorf("%w: %s", core.ErrRateLimited, req.Source)
	}

	var errs []error
	for _, payload := range req.Payloads {
		s.payloads.Add(1)
		peer, err := cec.Parse(payload)
		if err != nil {
			s.parseErrors.Add(1)
			metrics.FilterParseErrorsTotal.WithLabelValues(parseErrorKind(err)).Inc()
			errs = append(errs, fmt.Errorf("module filter from %s: %w", req.Source, err))
			continue
		}
		metrics.PeersParsedTotal.Inc()

		if !s.cfg.Local.Matches(peer) {
			continue
		}
		if s.duplicate(peer.Key()) {
			s.duplicates.Add(1)
			metrics.DuplicatesTotal.Inc()
			continue
		}
		s.matches.Add(1)
		metrics.MatchesTotal.Inc()

		enc := s.encounter(req, peer, payload, data, link, ts)
		if s.cfg.Handler == nil {
			continue
		}
		if err := s.cfg.Handler.HandleEncounter(ctx, enc); err != nil {
			s.handlerErrors.Add(1)
			errs = append(errs, fmt.Errorf("handle encounter %s: %w", enc.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scanner) reject(reason string) {
	s.rejected.Add(1)
	metrics.FramesRejectedTotal.WithLabelValues(reason).Inc()
}

// duplicate reports whether key was already surfaced inside the dedup window
// and remembers it otherwise.
func (s *Scanner) duplicate(key cec.Key) bool {
	if s.seen == nil {
		return false
	}
	// Add fails when an unexpired entry exists.
	return s.seen.Add(key.String(), struct{}{}, cache.DefaultExpiration) != nil
}

func (s *Scanner) encounter(req *dot11.ProbeRequest, peer *cec.ModuleFilter, payload, frame []byte,
	link layers.LinkType, ts time.Time) *core.Encounter {
	enc := &core.Encounter{
		ID:        ksuid.New().String(),
		SessionID: s.sessionID,
		Timestamp: ts,
		PeerMAC:   req.Source.String(),
		PeerKey:   peer.Key().String(),
		SSID:      req.SSID,
		Filter:    slices.Clone(payload),
	}
	if req.HasSignal {
		enc.Signal = req.Signal
	}
	if s.cfg.KeepFrames {
		enc.Frame = slices.Clone(frame)
		enc.LinkType = int(link)
	}
	if s.cfg.Deriver != nil && len(s.cfg.LocalMAC) == 6 {
		key, err := s.cfg.Deriver.Derive(s.cfg.Local.Key(), peer.Key(), s.cfg.LocalMAC, req.Source)
		if err != nil {
			slog.Warn("session key derivation failed", "peer", enc.PeerMAC, "error", err)
		} else {
			enc.SessionKey = hex.EncodeToString(key[:])
		}
	}
	return enc
}

// Stats returns a snapshot of the scanner counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Frames:        s.frames.Load(),
		Probes:        s.probes.Load(),
		Rejected:      s.rejected.Load(),
		Payloads:      s.payloads.Load(),
		ParseErrors:   s.parseErrors.Load(),
		Matches:       s.matches.Load(),
		Duplicates:    s.duplicates.Load(),
		RateLimited:   s.rateLimited.Load(),
		HandlerErrors: s.handlerErrors.Load(),
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, core.ErrNotProbeRequest):
		return metrics.ReasonNotProbe
	case errors.Is(err, core.ErrNoVendorElement):
		return metrics.ReasonNoVendorElement
	default:
		return metrics.ReasonDecode
	}
}

func parseErrorKind(err error) string {
	switch {
	case errors.Is(err, cec.ErrTruncatedInput):
		return "truncated"
	case errors.Is(err, cec.ErrMarkerMismatch):
		return "marker_mismatch"
	case errors.Is(err, cec.ErrUnknownMarker):
		return "unknown_marker"
	case errors.Is(err, cec.ErrDuplicateList):
		return "duplicate_list"
	case errors.Is(err, cec.ErrTrailingData):
		return "trailing_data"
	case errors.Is(err, cec.ErrMissingKey):
		return "missing_key"
	case errors.Is(err, cec.ErrInvalidSendMode):
		return "invalid_send_mode"
	case errors.Is(err, cec.ErrInvalidCmpLength):
		return "invalid_cmp_length"
	default:
		return "other"
	}
}
