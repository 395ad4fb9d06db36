// Package config is the process-level configuration of §6: a YAML
// file describing which bots to run plus the environment-variable
// knobs (credentials, cache TTLs, pool sizes, paper-mode constants)
// that tune the ambient collaborators. Loading is the same two-step
// shape as the teacher's internal/config: resolve a path, decode YAML,
// then overlay documented env vars so ops can tune a running config
// file without editing it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tradecore/pkg/confkit"
)

// PostgresConf mirrors goctl-style database settings.
type PostgresConf struct {
	DSN         string        `yaml:"dsn"`
	MaxOpen     int           `yaml:"maxOpen"`
	MaxIdle     int           `yaml:"maxIdle"`
	MaxLifetime time.Duration `yaml:"maxLifetime"`
}

// CacheConf mirrors go-zero's CacheConf shape for the oracle's shared
// tier and the model layer's row cache.
type CacheConf struct {
	Host string `yaml:"host"`
	Pass string `yaml:"pass"`
}

// BotConfig is one row of the `bots` YAML section: enough to seed a
// fresh `bots` table row, or to validate one already persisted.
type BotConfig struct {
	ID                       string   `yaml:"id"`
	Symbols                  []string `yaml:"symbols"`
	TimeframeShort           string   `yaml:"timeframeShort"`
	TimeframeLong            string   `yaml:"timeframeLong"`
	CandleLookback           int      `yaml:"candleLookback"`
	CyclePeriodSeconds       int      `yaml:"cyclePeriodSeconds"`
	EntryConfidenceThreshold float64  `yaml:"entryConfidenceThreshold"`
	ForceCloseOnStop         bool     `yaml:"forceCloseOnStop"`
	Model                    string   `yaml:"model"`
	MaxTokens                int      `yaml:"maxTokens"`
	Temperature              float64  `yaml:"temperature"`
	StopLossPct              float64  `yaml:"stopLossPct"`
	TakeProfitPct            float64  `yaml:"takeProfitPct"`
	InitialCapital           float64  `yaml:"initialCapital"`
	PaperTrading             bool     `yaml:"paperTrading"`
	ExchangeProvider         string   `yaml:"exchangeProvider"`
	MaxPositionPct           float64  `yaml:"maxPositionPct"`
	MaxExposurePct           float64  `yaml:"maxExposurePct"`
	MaxDrawdownPct           float64  `yaml:"maxDrawdownPct"`
	MaxTradesPerDay          int      `yaml:"maxTradesPerDay"`
	MinRRRatio               float64  `yaml:"minRRRatio"`
}

// Config is the full process configuration.
type Config struct {
	Env      string       `yaml:"env"`
	Postgres PostgresConf `yaml:"postgres"`
	Cache    CacheConf    `yaml:"cache"`
	Bots     []BotConfig  `yaml:"bots"`

	// Env-overlaid oracle/datastore/paper knobs, never written to the
	// YAML file (credentials and tuning live in the environment per
	// §6).
	LLMDailyCostLimit  float64
	LLMCacheTTLSeconds int
	LLMBatchSize       int
	DBPoolSize         int
	DBPoolTimeout      time.Duration
	PaperFeeRate       float64
	PaperSlippageBps   int64
	CycleDefaultSeconds int

	// Credentials. Never logged: pkg/redact strips these substrings at
	// every log sink regardless.
	ExchangeKeys map[string]string // EXCHANGE_<PROVIDER>_KEY(S)
	LLMAPIKeys   map[string]string // LLM_<PROVIDER>_API_KEY

	path string
}

const defaultConfigRelativePath = "etc/tradecore.yaml"

func init() {
	confkit.LoadDotenvOnce()
}

// MustLoad loads path (the default config path when path is empty)
// and panics on failure. It is
// the cmd/tradecore bootstrap convention, matching the teacher's
// config.MustLoad / executor.MustLoad "panic only at process start"
// rule.
func MustLoad(path string) *Config {
	if path == "" {
		path = defaultConfigRelativePath
	}
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the YAML file at path (if present — a missing file is
// not an error, since a process may run entirely off env-configured
// bots) and overlays the documented environment variables.
func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	cfg := &Config{Env: "dev"}
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("config: resolve path %s: %w", path, err)
		}
		if data, err := os.ReadFile(absPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", absPath, err)
		}
		cfg.path = absPath
	}

	cfg.overlayEnv()
	return cfg, cfg.Validate()
}

func (c *Config) overlayEnv() {
	c.LLMDailyCostLimit = envFloat("LLM_DAILY_COST_LIMIT", 0)
	c.LLMCacheTTLSeconds = envInt("LLM_CACHE_TTL_SECONDS", 300)
	c.LLMBatchSize = envInt("LLM_BATCH_SIZE", 1)
	c.DBPoolSize = envInt("DB_POOL_SIZE", 10)
	c.DBPoolTimeout = time.Duration(envInt("DB_POOL_TIMEOUT", 5)) * time.Second
	c.PaperFeeRate = envFloat("PAPER_FEE_RATE", 0.001)
	c.PaperSlippageBps = int64(envInt("PAPER_SLIPPAGE_BPS", 0))
	c.CycleDefaultSeconds = envInt("CYCLE_DEFAULT_SECONDS", 300)

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}

	c.ExchangeKeys = envPrefixed("EXCHANGE_", "_KEY")
	for k, v := range envPrefixed("EXCHANGE_", "_KEYS") {
		c.ExchangeKeys[k] = v
	}
	c.LLMAPIKeys = envPrefixed("LLM_", "_API_KEY")
}

// Validate checks invariants that would otherwise surface as a
// confusing panic deep inside the engine.
func (c *Config) Validate() error {
	switch c.Env {
	case "", "test", "dev", "prod":
		if c.Env == "" {
			c.Env = "dev"
		}
	default:
		return fmt.Errorf("config: env must be one of test|dev|prod, got %q", c.Env)
	}
	seen := make(map[string]bool, len(c.Bots))
	for _, b := range c.Bots {
		if b.ID == "" {
			return fmt.Errorf("config: bot entry missing id")
		}
		if seen[b.ID] {
			return fmt.Errorf("config: duplicate bot id %q", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// IsTestEnv reports whether this process should prefer low-cost
// defaults (mirrors the teacher's Config.IsTestEnv).
func (c *Config) IsTestEnv() bool { return c.Env == "test" || c.Env == "" }

func (c *Config) Path() string { return c.path }

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envPrefixed scans the process environment for KEY names matching
// prefix + "<NAME>" + suffix and returns a map keyed by the
// lower-cased <NAME>, e.g. EXCHANGE_HYPERLIQUID_KEY -> {"hyperliquid":
// "..."}. Values are never logged; pkg/redact also masks them
// defensively at the sink in case a caller mistakenly interpolates one
// into a log line.
func envPrefixed(prefix, suffix string) map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		key, val, ok := splitEnv(kv)
		if !ok || len(key) <= len(prefix)+len(suffix) {
			continue
		}
		if !hasPrefixSuffix(key, prefix, suffix) {
			continue
		}
		name := key[len(prefix) : len(key)-len(suffix)]
		out[toLowerASCII(name)] = val
	}
	return out
}

func splitEnv(kv string) (key, val string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func hasPrefixSuffix(s, prefix, suffix string) bool {
	if len(s) < len(prefix)+len(suffix) {
		return false
	}
	return s[:len(prefix)] == prefix && s[len(s)-len(suffix):] == suffix
}

func toLowerASCII(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
