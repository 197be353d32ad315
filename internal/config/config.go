// Package config loads process configuration: ports, the durable-store
// path, bearer tokens, CORS origin, and the rate-limit/timeout knobs the
// interception server needs at startup. It is distinct from
// internal/settings, which holds redaction behavior that is mutable at
// runtime through the management API and lives in the durable store, not
// here.
//
// Grounded on the teacher's defaults() -> proxy-config.json -> env
// layering, generalized to a richer defaults -> anonamoose.yaml -> env
// stack using viper, with fsnotify driving live reload of the file layer
// while env vars remain the final override.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`

	APIToken   string `mapstructure:"api_token"`
	StatsToken string `mapstructure:"stats_token"`
	CORSOrigin string `mapstructure:"cors_origin"`

	DBPath        string `mapstructure:"db_path"`
	NERModelCache string `mapstructure:"ner_model_cache"`
	NEREndpoint   string `mapstructure:"ner_endpoint"`

	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`

	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MaxRedactChars  int           `mapstructure:"max_redact_chars"`

	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`

	SessionMapCapacity int           `mapstructure:"session_map_capacity"`
	SessionMapIdleTTL  time.Duration `mapstructure:"session_map_idle_ttl"`
	SessionSweepEvery  time.Duration `mapstructure:"session_sweep_every"`

	LogLevel string `mapstructure:"log_level"`
}

// OnChange is invoked with the freshly reloaded Config whenever
// anonamoose.yaml changes on disk. Env vars are re-applied on top of the
// new file contents before the callback fires, so the override order is
// preserved across reloads.
type OnChange func(Config)

// Loader owns the viper instance so file-watch callbacks can re-resolve
// the full layered config instead of just the file layer.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader with defaults applied and, if present,
// configPath read in. configPath may be empty, in which case only the
// default search paths ("./anonamoose.yaml", "/etc/anonamoose/anonamoose.yaml")
// are consulted; a missing file at any of those paths is not an error.
func NewLoader(configPath string) (*Loader, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("anonamoose")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/anonamoose")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	return &Loader{v: v}, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("port", 8787)
	v.SetDefault("bind_address", "0.0.0.0")
	v.SetDefault("api_token", "")
	v.SetDefault("stats_token", "")
	v.SetDefault("cors_origin", "")
	v.SetDefault("db_path", "./data/anonamoose.db")
	v.SetDefault("ner_model_cache", "./data/ner-models")
	v.SetDefault("ner_endpoint", "http://localhost:8008")
	v.SetDefault("openai_base_url", "https://api.openai.com")
	v.SetDefault("anthropic_base_url", "https://api.anthropic.com")
	v.SetDefault("upstream_timeout", 60*time.Second)
	v.SetDefault("max_body_bytes", int64(1<<20))
	v.SetDefault("max_redact_chars", 100000)
	v.SetDefault("rate_limit_requests", 120)
	v.SetDefault("rate_limit_window", 60*time.Second)
	v.SetDefault("session_map_capacity", 10000)
	v.SetDefault("session_map_idle_ttl", time.Hour)
	v.SetDefault("session_sweep_every", 5*time.Minute)
	v.SetDefault("log_level", "info")
}

// bindLegacyEnv wires the documented §6 environment variable names
// (PORT, MGMT_PORT, API_TOKEN, STATS_TOKEN, ANONAMOOSE_DB_PATH,
// CORS_ORIGIN, NER_MODEL_CACHE) onto their mapstructure keys. MGMT_PORT
// is accepted but folds onto the same "port" key as PORT, per the spec's
// note that the current shape collapses both onto one port.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("port", "PORT", "MGMT_PORT")
	_ = v.BindEnv("api_token", "API_TOKEN")
	_ = v.BindEnv("stats_token", "STATS_TOKEN")
	_ = v.BindEnv("db_path", "ANONAMOOSE_DB_PATH")
	_ = v.BindEnv("cors_origin", "CORS_ORIGIN")
	_ = v.BindEnv("ner_model_cache", "NER_MODEL_CACHE")
}

// Load resolves the fully layered config once.
func (l *Loader) Load() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Watch starts fsnotify-driven live reload of the file layer. Each time
// anonamoose.yaml changes, the full config is re-resolved (file + env)
// and handed to onChange. Watch is a no-op if no config file was found
// at NewLoader time.
func (l *Loader) Watch(onChange OnChange) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}
