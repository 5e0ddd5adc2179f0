package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/profile-finder/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	SerpAPI    SerpAPIConfig    `yaml:"serpapi" mapstructure:"serpapi"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Entity     EntityConfig     `yaml:"entity" mapstructure:"entity"`
	Estimate   EstimateConfig   `yaml:"estimate" mapstructure:"estimate"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the provider chain.
type SearchConfig struct {
	Primary            string            `yaml:"primary" mapstructure:"primary"`
	Secondary          string            `yaml:"secondary" mapstructure:"secondary"`
	Fallback           string            `yaml:"fallback" mapstructure:"fallback"`
	TargetDomain       string            `yaml:"target_domain" mapstructure:"target_domain"`
	MaxResults         int               `yaml:"max_results" mapstructure:"max_results"`
	TimeoutSecs        int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit          float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst          int               `yaml:"rate_burst" mapstructure:"rate_burst"`
	AffiliationAliases map[string]string `yaml:"affiliation_aliases" mapstructure:"affiliation_aliases"`
}

// Providers returns the configured chain order, skipping unset entries.
func (s SearchConfig) Providers() []string {
	var out []string
	for _, name := range []string{s.Primary, s.Secondary} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// SerpAPIConfig holds SerpAPI settings.
type SerpAPIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader and search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// BrowserConfig configures headless browser sessions for scrape providers.
type BrowserConfig struct {
	Backend         string `yaml:"backend" mapstructure:"backend"`
	ExecPath        string `yaml:"exec_path" mapstructure:"exec_path"`
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	WaitSelector    string `yaml:"wait_selector" mapstructure:"wait_selector"`
	MaxSessions     int    `yaml:"max_sessions" mapstructure:"max_sessions"`
	SearchURL       string `yaml:"search_url" mapstructure:"search_url"`
}

// PageTimeout returns the page load timeout.
func (b BrowserConfig) PageTimeout() time.Duration {
	return time.Duration(b.PageTimeoutSecs) * time.Second
}

// ScoringConfig configures similarity scoring and default thresholds.
type ScoringConfig struct {
	Encoder         string  `yaml:"encoder" mapstructure:"encoder"`
	CosineThreshold float64 `yaml:"cosine_threshold" mapstructure:"cosine_threshold"`
	FuzzyThreshold  float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	NgramDim        int     `yaml:"ngram_dim" mapstructure:"ngram_dim"`
	OnnxLibraryPath string  `yaml:"onnx_library_path" mapstructure:"onnx_library_path"`
	ModelPath       string  `yaml:"model_path" mapstructure:"model_path"`
	TokenizerPath   string  `yaml:"tokenizer_path" mapstructure:"tokenizer_path"`
	MaxSeqLen       int     `yaml:"max_seq_len" mapstructure:"max_seq_len"`
	CacheDir        string  `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// Thresholds returns the configured default thresholds.
func (s ScoringConfig) Thresholds() model.Thresholds {
	return model.Thresholds{Cosine: s.CosineThreshold, Fuzzy: s.FuzzyThreshold}
}

// EntityConfig selects the entity extractor.
type EntityConfig struct {
	Extractor string   `yaml:"extractor" mapstructure:"extractor"`
	Cities    []string `yaml:"cities" mapstructure:"cities"`
}

// EstimateConfig configures attribute estimation.
type EstimateConfig struct {
	IncomeTablePath string `yaml:"income_table_path" mapstructure:"income_table_path"`
}

// EngineConfig configures the task orchestrator and retry policy.
type EngineConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	StallAfterSecs   int `yaml:"stall_after_secs" mapstructure:"stall_after_secs"`
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures batch health alerting in serve mode.
type MonitoringConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	ErrorRateThreshold  float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	MinResolved         int     `yaml:"min_resolved" mapstructure:"min_resolved"`
	DLQThreshold        int     `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
}

// PricingConfig overrides the built-in usage rates. Keys are provider
// names for Search and model IDs for Anthropic.
type PricingConfig struct {
	Search    map[string]float64      `yaml:"search" mapstructure:"search"`
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Vendor keys are also read from their conventional variable names.
	for key, env := range map[string]string{
		"serpapi.key":   "SERPAPI_KEY",
		"jina.key":      "JINA_API_KEY",
		"anthropic.key": "ANTHROPIC_API_KEY",
	} {
		envPrefixed := "PROFILE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefixed, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	// Defaults
	v.SetDefault("search.primary", "serpapi")
	v.SetDefault("search.secondary", "bing")
	v.SetDefault("search.fallback", "unavailable")
	v.SetDefault("search.target_domain", "linkedin.com")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("search.rate_limit", 2.0)
	v.SetDefault("search.rate_burst", 2)
	v.SetDefault("search.affiliation_aliases", model.DefaultAffiliationAliases)
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("browser.backend", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.page_timeout_secs", 15)
	v.SetDefault("browser.wait_selector", "#b_results")
	v.SetDefault("browser.max_sessions", 2)
	v.SetDefault("browser.search_url", "https://www.bing.com/search")
	v.SetDefault("scoring.encoder", "ngram")
	v.SetDefault("scoring.cosine_threshold", 0.40)
	v.SetDefault("scoring.fuzzy_threshold", 0.75)
	v.SetDefault("scoring.ngram_dim", 512)
	v.SetDefault("scoring.max_seq_len", 128)
	v.SetDefault("entity.extractor", "gazetteer")
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.stall_after_secs", 30)
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.initial_backoff_ms", 500)
	v.SetDefault("engine.max_backoff_ms", 5000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "profile-finder.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.error_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_resolved", 20)
	v.SetDefault("monitoring.dlq_threshold", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Empty defaults make env-only values visible to Unmarshal.
	for _, key := range []string{
		"anthropic.model", "browser.exec_path", "browser.user_agent",
		"scoring.onnx_library_path", "scoring.model_path", "scoring.tokenizer_path",
		"scoring.cache_dir", "estimate.income_table_path", "monitoring.webhook_url",
	} {
		v.SetDefault(key, "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "resolve", "serve" and "store"; all problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkSearch := func() {
		if err := c.Scoring.Thresholds().Validate(); err != nil {
			errs = append(errs, "scoring: "+err.Error())
		}
		switch c.Search.Fallback {
		case "", "unavailable", "no_match":
		default:
			errs = append(errs, "search.fallback must be unavailable or no_match")
		}
		if len(c.Search.Providers()) == 0 {
			errs = append(errs, "search.primary is required")
		}
		switch c.Browser.Backend {
		case "chrome", "jina", "none":
		default:
			errs = append(errs, "browser.backend must be chrome, jina or none")
		}
		switch c.Scoring.Encoder {
		case "ngram":
		case "onnx":
			if c.Scoring.ModelPath == "" || c.Scoring.TokenizerPath == "" {
				errs = append(errs, "scoring.model_path and scoring.tokenizer_path are required for the onnx encoder")
			}
		default:
			errs = append(errs, "scoring.encoder must be ngram or onnx")
		}
		switch c.Entity.Extractor {
		case "gazetteer":
		case "llm":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required for the llm extractor")
			}
		default:
			errs = append(errs, "entity.extractor must be gazetteer or llm")
		}
		if c.Engine.MaxRetries < 0 {
			errs = append(errs, "engine.max_retries must be >= 0")
		}
		if w := c.Engine.Workers; w != 0 && (w < 4 || w > 8) {
			errs = append(errs, "engine.workers must be 0 (auto) or between 4 and 8")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres")
			}
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "resolve":
		checkSearch()
	case "serve":
		checkSearch()
		checkStore()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.Enabled && (c.Monitoring.ErrorRateThreshold <= 0 || c.Monitoring.ErrorRateThreshold > 1) {
			errs = append(errs, "monitoring.error_rate_threshold must be in (0, 1]")
		}
	case "store":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
