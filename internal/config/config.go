// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/wire"
	"firestige.xyz/flowkey/internal/log"
)

// Config is the top-level configuration, under the `flowkey:` root key.
type Config struct {
	Log      log.Config     `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Output   OutputConfig   `mapstructure:"output"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// DecoderConfig controls key extraction.
type DecoderConfig struct {
	// PacketType names the framing of input packets: "eth", "ipv4", "mpls",
	// ... or "ns,type". Empty means Ethernet.
	PacketType  string `mapstructure:"packet_type"`
	MaxMPLSScan int    `mapstructure:"max_mpls_scan"` // 0 = until bottom of stack

	pt wire.PacketType
}

// Type returns the parsed packet type. Valid after ValidateAndApplyDefaults.
func (d *DecoderConfig) Type() wire.PacketType { return d.pt }

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`     // 0 = GOMAXPROCS
	BufferSize int `mapstructure:"buffer_size"` // per-worker input queue
	// At most WarnBurst malformed-packet warnings are logged per in_port
	// every WarnInterval.
	WarnInterval time.Duration `mapstructure:"warn_interval"`
	WarnBurst    int           `mapstructure:"warn_burst"`
}

// OutputConfig selects how extracted keys are written.
type OutputConfig struct {
	Format string `mapstructure:"format"` // text | proto
	Path   string `mapstructure:"path"`   // empty or "-" = stdout
	// DedupTTL, when positive, writes each distinct flow key once per TTL.
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
	// Kafka, when Topic is set, publishes proto records instead of
	// writing to Path.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig contains Kafka producer settings.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none | gzip | snappy | lz4 | zstd
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Enabled reports whether keys go to Kafka.
func (k *KafkaConfig) Enabled() bool { return k.Topic != "" }

// configRoot matches the YAML structure `flowkey: ...`.
type configRoot struct {
	Flowkey Config `mapstructure:"flowkey"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to FLOWKEY_* environment overrides (e.g. FLOWKEY_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "flowkey.log.level" maps to env FLOWKEY_LOG_LEVEL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Flowkey

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("flowkey.log.level", log.DefaultLevel)
	v.SetDefault("flowkey.log.format", log.FormatPattern)
	v.SetDefault("flowkey.log.pattern", log.DefaultPattern)
	v.SetDefault("flowkey.log.time", log.DefaultTime)
	v.SetDefault("flowkey.log.report_caller", false)
	v.SetDefault("flowkey.log.quiet", false)
	v.SetDefault("flowkey.log.file.filename", "")
	v.SetDefault("flowkey.log.file.max_size", 100)
	v.SetDefault("flowkey.log.file.max_backups", 5)
	v.SetDefault("flowkey.log.file.max_age", 30)
	v.SetDefault("flowkey.log.file.compress", true)

	v.SetDefault("flowkey.metrics.enabled", false)
	v.SetDefault("flowkey.metrics.listen", ":9091")
	v.SetDefault("flowkey.metrics.path", "/metrics")

	v.SetDefault("flowkey.decoder.packet_type", "eth")
	v.SetDefault("flowkey.decoder.max_mpls_scan", 0)

	v.SetDefault("flowkey.pipeline.workers", 0)
	v.SetDefault("flowkey.pipeline.buffer_size", 1024)
	v.SetDefault("flowkey.pipeline.warn_interval", "10s")
	v.SetDefault("flowkey.pipeline.warn_burst", 5)

	v.SetDefault("flowkey.metadata.in_port", 0)
	v.SetDefault("flowkey.metadata.skb_priority", 0)
	v.SetDefault("flowkey.metadata.pkt_mark", 0)
	v.SetDefault("flowkey.metadata.recirc_id", 0)
	v.SetDefault("flowkey.metadata.dp_hash", 0)
	v.SetDefault("flowkey.metadata.ct_state", 0)
	v.SetDefault("flowkey.metadata.ct_zone", 0)
	v.SetDefault("flowkey.metadata.ct_mark", 0)

	v.SetDefault("flowkey.output.format", "text")
	v.SetDefault("flowkey.output.path", "-")
	v.SetDefault("flowkey.output.dedup_ttl", "0s")
	v.SetDefault("flowkey.output.kafka.topic", "")
	v.SetDefault("flowkey.output.kafka.batch_size", 100)
	v.SetDefault("flowkey.output.kafka.batch_timeout", "100ms")
	v.SetDefault("flowkey.output.kafka.compression", "snappy")
	v.SetDefault("flowkey.output.kafka.max_attempts", 3)
}

// ValidateAndApplyDefaults validates configuration and resolves derived values.
func (cfg *Config) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if cfg.Log.Level != "" && !validLevels[cfg.Log.Level] {
		return invalid("log.level %q (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", log.FormatPattern, log.FormatPrefixed:
	default:
		return invalid("log.format %q (must be pattern/prefixed)", cfg.Log.Format)
	}

	if cfg.Decoder.PacketType == "" {
		cfg.Decoder.PacketType = "eth"
	}
	pt, err := wire.ParsePacketType(cfg.Decoder.PacketType)
	if err != nil {
		return invalid("decoder.packet_type: %v", err)
	}
	cfg.Decoder.pt = pt
	if cfg.Decoder.MaxMPLSScan < 0 {
		return invalid("decoder.max_mpls_scan must be >= 0, got %d", cfg.Decoder.MaxMPLSScan)
	}

	if cfg.Pipeline.Workers < 0 {
		return invalid("pipeline.workers must be >= 0, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.BufferSize <= 0 {
		cfg.Pipeline.BufferSize = 1024
	}
	if cfg.Pipeline.WarnInterval < 0 || cfg.Pipeline.WarnBurst < 0 {
		return invalid("pipeline.warn_interval and pipeline.warn_burst must be >= 0")
	}

	if err := cfg.Metadata.Validate(); err != nil {
		return err
	}
	if _, err := cfg.Filter.Program(); err != nil {
		return err
	}

	switch cfg.Output.Format {
	case "":
		cfg.Output.Format = "text"
	case "text", "proto":
	default:
		return invalid("output.format %q (must be text/proto)", cfg.Output.Format)
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = "-"
	}
	if cfg.Output.DedupTTL < 0 {
		return invalid("output.dedup_ttl must be >= 0")
	}
	if k := &cfg.Output.Kafka; k.Enabled() {
		if len(k.Brokers) == 0 {
			return invalid("output.kafka.brokers is required when output.kafka.topic is set")
		}
		switch k.Compression {
		case "", "none", "gzip", "snappy", "lz4", "zstd":
		default:
			return invalid("output.kafka.compression %q (must be none/gzip/snappy/lz4/zstd)", k.Compression)
		}
		if k.BatchSize <= 0 {
			k.BatchSize = 100
		}
		if k.MaxAttempts <= 0 {
			k.MaxAttempts = 3
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrConfigInvalid)
}
