package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "OBSERVATORY"
	configName     = "console"
	DefaultModel   = "gemma-3-4b-instruct"
	MaxJobsLimit   = 10000
	MaxPagesLimit  = 100
	defaultBaseURL = "http://localhost:8000"
)

// Config holds console configuration.
type Config struct {
	BaseURL         string        `mapstructure:"API_URL"`
	APIToken        string        `mapstructure:"API_TOKEN"`
	Timeout         time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	Parallelism     int           `mapstructure:"PARALLELISM"`
	MaxResponseSize int64         `mapstructure:"MAX_RESPONSE_SIZE"`
	UserAgent       string        `mapstructure:"USER_AGENT"`

	ScrapingPollInterval  time.Duration `mapstructure:"SCRAPING_POLL_INTERVAL"`
	LLMPollInterval       time.Duration `mapstructure:"LLM_POLL_INTERVAL"`
	DownloadFollowUpDelay time.Duration `mapstructure:"DOWNLOAD_FOLLOWUP_DELAY"`

	DefaultMaxJobs  int    `mapstructure:"DEFAULT_MAX_JOBS"`
	DefaultMaxPages int    `mapstructure:"DEFAULT_MAX_PAGES"`
	DefaultModel    string `mapstructure:"DEFAULT_MODEL"`
	RecentTasks     int    `mapstructure:"RECENT_TASKS"`

	JournalPath  string `mapstructure:"JOURNAL_PATH"`
	ListenAddr   string `mapstructure:"LISTEN_ADDR"`
	ConsoleToken string `mapstructure:"CONSOLE_TOKEN"`
	MetricsAddr  string `mapstructure:"METRICS_ADDR"`
	Verbose      bool   `mapstructure:"VERBOSE"`
}

// DefaultConfig returns the values the dashboard shipped with.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:               defaultBaseURL,
		Timeout:               30 * time.Second,
		Parallelism:           4,
		MaxResponseSize:       int64(10 * datasize.MB),
		UserAgent:             "observatory-admin-console/1.0",
		ScrapingPollInterval:  5 * time.Second,
		LLMPollInterval:       10 * time.Second,
		DownloadFollowUpDelay: 3 * time.Second,
		DefaultMaxJobs:        100,
		DefaultMaxPages:       10,
		DefaultModel:          DefaultModel,
		RecentTasks:           50,
		JournalPath:           "data/console.db",
		ListenAddr:            ":8090",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.MaxResponseSize <= 0 {
		return fmt.Errorf("max response size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ScrapingPollInterval <= 0 {
		return fmt.Errorf("scraping poll interval must be positive")
	}
	if c.LLMPollInterval <= 0 {
		return fmt.Errorf("llm poll interval must be positive")
	}
	if c.DownloadFollowUpDelay < 0 {
		return fmt.Errorf("download follow-up delay cannot be negative")
	}
	if c.DefaultMaxJobs <= 0 || c.DefaultMaxJobs > MaxJobsLimit {
		return fmt.Errorf("default max jobs must be between 1 and %d", MaxJobsLimit)
	}
	if c.DefaultMaxPages <= 0 || c.DefaultMaxPages > MaxPagesLimit {
		return fmt.Errorf("default max pages must be between 1 and %d", MaxPagesLimit)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("default model cannot be empty")
	}
	if c.RecentTasks <= 0 {
		return fmt.Errorf("recent tasks must be positive")
	}

	return nil
}

// Load layers defaults, an optional console.yaml and OBSERVATORY_* env vars.
// An explicit path must exist; the search path may be empty.
func Load(path string) (*Config, error) {
	vp := viper.New()
	setDefaults(vp, DefaultConfig())

	if path != "" {
		vp.SetConfigFile(path)
	} else {
		vp.SetConfigName(configName)
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/observatory-console/")
	}

	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(vp *viper.Viper, cfg *Config) {
	vp.SetDefault("API_URL", cfg.BaseURL)
	vp.SetDefault("API_TOKEN", cfg.APIToken)
	vp.SetDefault("REQUEST_TIMEOUT", cfg.Timeout.String())
	vp.SetDefault("PARALLELISM", cfg.Parallelism)
	vp.SetDefault("MAX_RESPONSE_SIZE", datasize.ByteSize(cfg.MaxResponseSize).String())
	vp.SetDefault("USER_AGENT", cfg.UserAgent)
	vp.SetDefault("SCRAPING_POLL_INTERVAL", cfg.ScrapingPollInterval.String())
	vp.SetDefault("LLM_POLL_INTERVAL", cfg.LLMPollInterval.String())
	vp.SetDefault("DOWNLOAD_FOLLOWUP_DELAY", cfg.DownloadFollowUpDelay.String())
	vp.SetDefault("DEFAULT_MAX_JOBS", cfg.DefaultMaxJobs)
	vp.SetDefault("DEFAULT_MAX_PAGES", cfg.DefaultMaxPages)
	vp.SetDefault("DEFAULT_MODEL", cfg.DefaultModel)
	vp.SetDefault("RECENT_TASKS", cfg.RecentTasks)
	vp.SetDefault("JOURNAL_PATH", cfg.JournalPath)
	vp.SetDefault("LISTEN_ADDR", cfg.ListenAddr)
	vp.SetDefault("CONSOLE_TOKEN", cfg.ConsoleToken)
	vp.SetDefault("METRICS_ADDR", cfg.MetricsAddr)
	vp.SetDefault("VERBOSE", cfg.Verbose)
}

// stringToDurationHookFunc parses Go duration strings such as "5s" or "1m30s".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "10MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string; let the weak decoder try a plain integer.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}
