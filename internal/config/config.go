// Package config handles global configuration loading using viper.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `streetpass:` root key in YAML.
type GlobalConfig struct {
	Device    DeviceConfig     `mapstructure:"device"`
	Filter    FilterConfig     `mapstructure:"filter"`
	Capture   CaptureConfig    `mapstructure:"capture"`
	Scan      ScanConfig       `mapstructure:"scan"`
	Beacon    BeaconConfig     `mapstructure:"beacon"`
	Crypto    CryptoConfig     `mapstructure:"crypto"`
	History   HistoryConfig    `mapstructure:"history"`
	Reporters []ReporterConfig `mapstructure:"reporters"`
	Control   ControlConfig    `mapstructure:"control"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Log       LogConfig        `mapstructure:"log"`
}

// ─── Device Identity ───

// DeviceConfig identifies the local device.
type DeviceConfig struct {
	Key cec.Key `mapstructure:"key"` // 16 hex digits, quote it in YAML
	MAC string  `mapstructure:"mac"` // Empty = interface address
}

// ─── Local Module Filter ───

// FilterConfig describes the local module filter advertised and matched against.
type FilterConfig struct {
	RawBytesFlags uint8            `mapstructure:"raw_bytes_flags"`
	RawBytes      []RawBytesConfig `mapstructure:"raw_bytes"`
	TitleFlags    uint8            `mapstructure:"title_flags"`
	Titles        []TitleConfig    `mapstructure:"titles"`
}

// RawBytesConfig is one raw bytes filter.
type RawBytesConfig struct {
	Pattern   HexBytes `mapstructure:"pattern"`    // Up to 16 bytes, hex
	CmpLength *int     `mapstructure:"cmp_length"` // nil = len(pattern)
}

// TitleConfig is one title filter.
type TitleConfig struct {
	TitleID  uint32       `mapstructure:"title_id"`
	SendMode cec.SendMode `mapstructure:"send_mode"` // EXCHANGE | RECV_ONLY | SEND_ONLY | SEND_RECV
	MVEs     []MVEConfig  `mapstructure:"mves"`
}

// MVEConfig is one mask/value/expectation triple.
type MVEConfig struct {
	Mask        uint8 `mapstructure:"mask"`
	Value       uint8 `mapstructure:"value"`
	Expectation uint8 `mapstructure:"expectation"`
}

// ─── Capture ───

// CaptureConfig selects the frame source.
type CaptureConfig struct {
	Type         string `mapstructure:"type"`      // afpacket | file
	Interface    string `mapstructure:"interface"` // Monitor-mode interface for afpacket
	File         string `mapstructure:"file"`      // pcap or pcapng path for file
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	ProbeFilter  bool   `mapstructure:"probe_filter"` // Attach the probe-request BPF program
}

// ─── Scanner ───

// ScanConfig tunes the scanning loop.
type ScanConfig struct {
	Duration           time.Duration `mapstructure:"duration"` // 0 = until interrupted
	VendorOUI          HexBytes      `mapstructure:"vendor_oui"`
	VerifyFCS          bool          `mapstructure:"verify_fcs"`
	KeepFrames         bool          `mapstructure:"keep_frames"` // Attach the raw frame to encounters
	DedupWindow        time.Duration `mapstructure:"dedup_window"`
	MaxFramesPerSource int           `mapstructure:"max_frames_per_source"` // 0 = no rate limit
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// ─── Beacon ───

// BeaconConfig controls broadcasting the local filter.
type BeaconConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interface string        `mapstructure:"interface"` // Empty = capture.interface
	Interval  time.Duration `mapstructure:"interval"`
	SSID      string        `mapstructure:"ssid"`
}

// ─── Crypto ───

// CryptoConfig points at the key material for session key derivation.
type CryptoConfig struct {
	NormalKeyFile string `mapstructure:"normal_key_file"`
	CECDKeyFile   string `mapstructure:"cecd_key_file"`
}

// Enabled reports whether both key files are configured.
func (c CryptoConfig) Enabled() bool {
	return c.NormalKeyFile != "" && c.CECDKeyFile != ""
}

// ─── History ───

// HistoryConfig controls the persistent encounter store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ─── Reporters ───

// ReporterConfig contains reporter plugin configuration.
type ReporterConfig struct {
	Name   string         `mapstructure:"name"`
	Config map[string]any `mapstructure:"config"`
}

// ─── Control ───

// ControlConfig configures the command channels of a running scanner.
type ControlConfig struct {
	Socket     string             `mapstructure:"socket"`      // Unix socket for the CLI, empty disables it
	CommandTTL time.Duration      `mapstructure:"command_ttl"` // Older remote commands are dropped
	Kafka      CommandKafkaConfig `mapstructure:"kafka"`
}

// CommandKafkaConfig configures the remote command topic.
type CommandKafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	Topic           string   `mapstructure:"topic"`
	GroupID         string   `mapstructure:"group_id"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // earliest | latest
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Hex values ───

// HexBytes decodes from a hex string. Colons, dashes, spaces and a 0x prefix
// are ignored, so "00:1f:32:01" and "001F3201" are the same value.
type HexBytes []byte

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	s := strings.NewReplacer(":", "", "-", "", " ", "").Replace(string(text))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex %q: %w", text, err)
	}
	*h = b
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

func (h HexBytes) String() string { return hex.EncodeToString(h) }

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `streetpass: ...`.
type configRoot struct {
	StreetPass GlobalConfig `mapstructure:"streetpass"`
}

// Load reads configuration from file and validates it.
// The YAML file uses `streetpass:` as root key; env vars use the STREETPASS_ prefix
// (e.g., STREETPASS_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Read reads configuration from file without validating it, so callers can
// apply overrides first and call ValidateAndApplyDefaults themselves.
func Read(path string) (*GlobalConfig, error) {
	v := viper.New()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// The `streetpass.` key prefix maps to `STREETPASS_` through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.StreetPass
	return &cfg, nil
}

// decodeHook lets YAML strings populate keys, send modes, hex blobs and durations.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setDefaults sets default values for configuration.
// All keys use the "streetpass." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("streetpass.capture.type", "afpacket")
	v.SetDefault("streetpass.capture.snap_len", 4096)
	v.SetDefault("streetpass.capture.buffer_size_mb", 8)
	v.SetDefault("streetpass.capture.timeout_ms", 200)
	v.SetDefault("streetpass.capture.probe_filter", true)

	// Scan defaults
	v.SetDefault("streetpass.scan.vendor_oui", DefaultVendorOUI)
	v.SetDefault("streetpass.scan.verify_fcs", false)
	v.SetDefault("streetpass.scan.keep_frames", true)
	v.SetDefault("streetpass.scan.dedup_window", "5m")
	v.SetDefault("streetpass.scan.max_frames_per_source", 0)
	v.SetDefault("streetpass.scan.rate_limit_window", "10s")

	// Beacon defaults
	v.SetDefault("streetpass.beacon.enabled", false)
	v.SetDefault("streetpass.beacon.interval", "2s")
	v.SetDefault("streetpass.beacon.ssid", DefaultSSID)

	// History defaults
	v.SetDefault("streetpass.history.enabled", false)
	v.SetDefault("streetpass.history.path", "/var/lib/streetpass/history")

	// Control defaults
	v.SetDefault("streetpass.control.socket", DefaultSocket)
	v.SetDefault("streetpass.control.command_ttl", "5m")
	v.SetDefault("streetpass.control.kafka.enabled", false)
	v.SetDefault("streetpass.control.kafka.topic", "streetpass-commands")
	v.SetDefault("streetpass.control.kafka.auto_offset_reset", "latest")

	// Metrics defaults
	v.SetDefault("streetpass.metrics.enabled", false)
	v.SetDefault("streetpass.metrics.listen", ":9091")
	v.SetDefault("streetpass.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("streetpass.log.level", "info")
	v.SetDefault("streetpass.log.format", "text")
	v.SetDefault("streetpass.log.outputs.file.enabled", false)
	v.SetDefault("streetpass.log.outputs.file.path", "/var/log/streetpass/streetpass.log")
	v.SetDefault("streetpass.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("streetpass.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("streetpass.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("streetpass.log.outputs.file.rotation.compress", true)
}

const (
	// DefaultVendorOUI is the OUI and vendor type of the streetpass information element.
	DefaultVendorOUI = "00:1f:32:01"
	// DefaultSSID is the wildcard scan network the handhelds probe for.
	DefaultSSID = "Nintendo_3DS_continuous_scan_000"
	// DefaultSocket is where the control socket listens.
	DefaultSocket = "/var/run/streetpass.sock"
)

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Every error wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return nil
}

func (cfg *GlobalConfig) validate() error {
	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Device ──
	if cfg.Device.MAC != "" {
		if _, err := net.ParseMAC(cfg.Device.MAC); err != nil {
			return fmt.Errorf("invalid device.mac: %w", err)
		}
	}

	// ── Filter ──
	if _, err := cfg.Filter.ModuleFilter(cfg.Device.Key); err != nil {
		return err
	}

	// ── Capture ──
	switch cfg.Capture.Type {
	case "afpacket":
		if cfg.Capture.Interface == "" {
			return errors.New("capture.interface is required when capture.type=afpacket")
		}
	case "file":
		if cfg.Capture.File == "" {
			return errors.New("capture.file is required when capture.type=file")
		}
	default:
		return fmt.Errorf("unsupported capture.type: %s (must be afpacket/file)", cfg.Capture.Type)
	}
	if cfg.Capture.SnapLen <= 0 {
		cfg.Capture.SnapLen = 4096
	}
	if cfg.Capture.TimeoutMs <= 0 {
		cfg.Capture.TimeoutMs = 200
	}

	// ── Scan ──
	if len(cfg.Scan.VendorOUI) == 0 {
		_ = cfg.Scan.VendorOUI.UnmarshalText([]byte(DefaultVendorOUI))
	}
	if len(cfg.Scan.VendorOUI) != 4 {
		return fmt.Errorf("scan.vendor_oui must be 4 bytes (oui + type), got %d", len(cfg.Scan.VendorOUI))
	}
	if cfg.Scan.Duration < 0 || cfg.Scan.DedupWindow < 0 || cfg.Scan.RateLimitWindow < 0 {
		return errors.New("scan durations must not be negative")
	}
	if cfg.Scan.MaxFramesPerSource < 0 {
		return errors.New("scan.max_frames_per_source must not be negative")
	}

	// ── Beacon ──
	if cfg.Beacon.Enabled {
		if cfg.Beacon.Interface == "" {
			cfg.Beacon.Interface = cfg.Capture.Interface
		}
		if cfg.Beacon.Interface == "" {
			return errors.New("beacon.interface is required when beacon.enabled=true and capture is a file")
		}
		if cfg.Beacon.Interval <= 0 {
			return errors.New("beacon.interval must be positive")
		}
		if cfg.Beacon.SSID == "" {
			cfg.Beacon.SSID = DefaultSSID
		}
	}

	// ── Crypto ──
	if (cfg.Crypto.NormalKeyFile == "") != (cfg.Crypto.CECDKeyFile == "") {
		return errors.New("crypto.normal_key_file and crypto.cecd_key_file must be set together")
	}

	// ── History ──
	if cfg.History.Enabled && cfg.History.Path == "" {
		return errors.New("history.path is required when history.enabled=true")
	}

	// ── Reporters ──
	for i, r := range cfg.Reporters {
		if r.Name == "" {
			return fmt.Errorf("reporters[%d].name is required", i)
		}
	}

	// ── Control ──
	if cfg.Control.CommandTTL < 0 {
		return errors.New("control.command_ttl must not be negative")
	}
	if cfg.Control.CommandTTL == 0 {
		cfg.Control.CommandTTL = 5 * time.Minute
	}
	if kc := cfg.Control.Kafka; kc.Enabled {
		if len(kc.Brokers) == 0 || kc.Topic == "" || kc.GroupID == "" {
			return errors.New("control.kafka needs brokers, topic and group_id when enabled")
		}
		switch kc.AutoOffsetReset {
		case "", "earliest", "latest":
		default:
			return fmt.Errorf("invalid control.kafka.auto_offset_reset: %s (must be earliest/latest)", kc.AutoOffsetReset)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return errors.New("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}

// ModuleFilter builds the local module filter carrying key.
func (fc FilterConfig) ModuleFilter(key cec.Key) (*cec.ModuleFilter, error) {
	mf := cec.NewModuleFilter(key)

	raws := make([]cec.RawBytesFilter, 0, len(fc.RawBytes))
	for i, rc := range fc.RawBytes {
		f, err := cec.NewRawBytesFilter(rc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("filter.raw_bytes[%d]: %w", i, err)
		}
		if rc.CmpLength != nil {
			if err := f.SetCmpLength(*rc.CmpLength); err != nil {
				return nil, fmt.Errorf("filter.raw_bytes[%d].cmp_length: %w", i, err)
			}
		}
		raws = append(raws, f)
	}
	if err := mf.SetRawBytesFilters(raws...); err != nil {
		return nil, fmt.Errorf("filter.raw_bytes: %w", err)
	}

	titles := make([]cec.TitleFilter, 0, len(fc.Titles))
	for i, tc := range fc.Titles {
		mves := make([]cec.MVE, 0, len(tc.MVEs))
		for _, m := range tc.MVEs {
			mves = append(mves, cec.MVE{Mask: m.Mask, Value: m.Value, Expectation: m.Expectation})
		}
		f, err := cec.NewTitleFilter(tc.TitleID, tc.SendMode, mves...)
		if err != nil {
			return nil, fmt.Errorf("filter.titles[%d]: %w", i, err)
		}
		titles = append(titles, f)
	}
	if err := mf.SetTitleFilters(titles...); err != nil {
		return nil, fmt.Errorf("filter.titles: %w", err)
	}

	if err := setListFlags(mf, fc.RawBytesFlags, fc.TitleFlags); err != nil {
		return nil, err
	}
	return mf, nil
}

func setListFlags(mf *cec.ModuleFilter, rawFlags, titleFlags uint8) error {
	raw := mf.RawBytes()
	if err := raw.SetFlags(rawFlags); err != nil {
		return fmt.Errorf("filter.raw_bytes_flags: %w", err)
	}
	mf.SetRawBytes(raw)

	titles := mf.Titles()
	if err := titles.SetFlags(titleFlags); err != nil {
		return fmt.Errorf("filter.title_flags: %w", err)
	}
	mf.SetTitles(titles)
	return nil
}
