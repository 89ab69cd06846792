package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvThinkTimeout = "BRAIN_THINK_TIMEOUT"
	EnvListenAddr   = "ARENA_LISTEN_ADDR"
	EnvLogLevel     = "ARENA_LOG_LEVEL"
)

// Config is the full process configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Match  MatchConfig  `yaml:"match"`
}

// ServerConfig covers the HTTP/WebSocket glue.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// MatchConfig holds every tunable of a single match.
type MatchConfig struct {
	ArenaWidth    float64       `yaml:"arena_width"`
	ArenaHeight   float64       `yaml:"arena_height"`
	MaxRounds     int           `yaml:"max_rounds"`
	RoundDuration time.Duration `yaml:"round_duration"`
	ThinkTimeout  time.Duration `yaml:"think_timeout"`
	Intermission  time.Duration `yaml:"intermission"`

	TickRate      int `yaml:"tick_rate_hz"`
	BroadcastRate int `yaml:"broadcast_rate_hz"`
	MaxWorkers    int `yaml:"max_workers"`

	// Seed drives spawn positions and each agent's Math.random. Zero picks a
	// time-based seed at match creation.
	Seed int64 `yaml:"seed"`

	DebugLogLimit  int `yaml:"debug_log_limit"`
	DebugReadLimit int `yaml:"debug_read_limit"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:5000",
			LogLevel:        "info",
			ShutdownTimeout: 5 * time.Second,
			WriteTimeout:    2 * time.Second,
		},
		Match: DefaultMatch(),
	}
}

// DefaultMatch returns the stock match settings.
func DefaultMatch() MatchConfig {
	return MatchConfig{
		ArenaWidth:     800,
		ArenaHeight:    600,
		MaxRounds:      10,
		RoundDuration:  60 * time.Second,
		ThinkTimeout:   50 * time.Millisecond,
		TickRate:       60,
		BroadcastRate:  20,
		MaxWorkers:     8,
		DebugLogLimit:  200,
		DebugReadLimit: 100,
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment overrides. Unparseable or non-positive values
// are ignored and the current value kept.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvThinkTimeout)); v != "" {
		if d, ok := ParseSeconds(v); ok {
			c.Match.ThinkTimeout = d
		}
	}
	if v := strings.TrimSpace(getenv(EnvListenAddr)); v != "" {
		c.Server.ListenAddr = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.Server.LogLevel = v
	}
}

// ParseSeconds parses a positive decimal number of seconds ("0.05").
func ParseSeconds(s string) (time.Duration, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalidMatchConfig)
	}
	return c.Match.Validate()
}

// Validate checks every match setting for range errors.
func (m MatchConfig) Validate() error {
	switch {
	case m.ArenaWidth <= 0 || m.ArenaHeight <= 0:
		return fmt.Errorf("%w: arena must be positive, got %gx%g", ErrInvalidMatchConfig, m.ArenaWidth, m.ArenaHeight)
	case m.ArenaWidth < 100 || m.ArenaHeight < 100:
		return fmt.Errorf("%w: arena must be at least 100x100", ErrInvalidMatchConfig)
	case m.MaxRounds < 1:
		return fmt.Errorf("%w: max_rounds must be >= 1, got %d", ErrInvalidMatchConfig, m.MaxRounds)
	case m.RoundDuration <= 0:
		return fmt.Errorf("%w: round_duration must be positive", ErrInvalidMatchConfig)
	case m.ThinkTimeout <= 0 || m.ThinkTimeout > 10*time.Second:
		return fmt.Errorf("%w: think_timeout must be in (0, 10s], got %s", ErrInvalidMatchConfig, m.ThinkTimeout)
	case m.Intermission < 0:
		return fmt.Errorf("%w: intermission must not be negative", ErrInvalidMatchConfig)
	case m.TickRate < 1 || m.TickRate > 1000:
		return fmt.Errorf("%w: tick_rate_hz must be in [1, 1000], got %d", ErrInvalidMatchConfig, m.TickRate)
	case m.BroadcastRate < 1 || m.BroadcastRate > m.TickRate:
		return fmt.Errorf("%w: broadcast_rate_hz must be in [1, tick_rate_hz], got %d", ErrInvalidMatchConfig, m.BroadcastRate)
	case m.MaxWorkers < 1:
		return fmt.Errorf("%w: max_workers must be >= 1", ErrInvalidMatchConfig)
	case m.DebugLogLimit < 1 || m.DebugReadLimit < 1 || m.DebugReadLimit > m.DebugLogLimit:
		return fmt.Errorf("%w: debug limits must satisfy 1 <= read <= capacity", ErrInvalidMatchConfig)
	}
	return nil
}

// TickDuration is the fixed simulation timestep.
func (m MatchConfig) TickDuration() time.Duration {
	return time.Second / time.Duration(m.TickRate)
}

// DurationToTicks converts wall durations to a whole number of ticks,
// rounding up so a positive duration is never zero ticks.
func (m MatchConfig) DurationToTicks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(math.Ceil(d.Seconds() * float64(m.TickRate)))
}

// RoundTicks is the round length in ticks.
func (m MatchConfig) RoundTicks() uint64 { return m.DurationToTicks(m.RoundDuration) }

// IntermissionTicks is how long the RoundEnd phase lasts.
func (m MatchConfig) IntermissionTicks() uint64 { return m.DurationToTicks(m.Intermission) }

// BroadcastEvery is the number of ticks between two published broadcasts.
func (m MatchConfig) BroadcastEvery() uint64 {
	n := m.TickRate / m.BroadcastRate
	if n <= 0 {
		n = 1
	}
	return uint64(n)
}
