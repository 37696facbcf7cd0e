package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tracker configuration.
type Config struct {
	SeedFile   string `yaml:"seed_file"`
	ProductURL string `yaml:"product_url"`

	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`

	ReviewsURLTemplate string `yaml:"reviews_url_template"`
	OffersURLTemplate  string `yaml:"offers_url_template"`
	OfferPageSize      int    `yaml:"offer_page_size"`
	CityID             string `yaml:"city_id"`
	OfferParallelism   int    `yaml:"offer_parallelism"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`
	MaxOfferPages      int    `yaml:"max_offer_pages"`

	ItemMarker  string `yaml:"item_marker"`
	CategoryKey string `yaml:"category_key"`

	ExportDir    string `yaml:"export_dir"`
	ExportFormat string `yaml:"export_format"` // json or dual

	Database DatabaseConfig `yaml:"database"`

	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic"`

	RedisAddr    string        `yaml:"redis_addr"`
	RedisLockKey string        `yaml:"redis_lock_key"`
	RedisLockTTL time.Duration `yaml:"redis_lock_ttl"`

	Interval    time.Duration `yaml:"interval"`
	RunOnStart  bool          `yaml:"run_on_start"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogFile     string        `yaml:"log_file"`
	Verbose     bool          `yaml:"verbose"`
}

// DefaultConfig returns defaults matching the live marketplace endpoints.
func DefaultConfig() *Config {
	return &Config{
		SeedFile:           "seed.json",
		UserAgent:          "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:143.0) Gecko/20100101 Firefox/143.0",
		Timeout:            10 * time.Second,
		MaxRetries:         0,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		RequestsPerSecond:  0,
		ReviewsURLTemplate: "https://kaspi.kz/yml/review-view/api/v1/reviews/product/%d?withAgg=true",
		OffersURLTemplate:  "https://kaspi.kz/yml/offer-view/offers/%d",
		OfferPageSize:      20,
		CityID:             "710000000",
		OfferParallelism:   1,
		DedupeMaxSize:      10000,
		MaxOfferPages:      500,
		ItemMarker:         "BACKEND.components.item = ",
		CategoryKey:        "category",
		ExportDir:          "export",
		ExportFormat:       "json",
		Database:           DefaultDatabaseConfig(),
		KafkaTopic:         "product-snapshots",
		RedisLockKey:       "kaspi-offer-tracker:run",
		RedisLockTTL:       10 * time.Minute,
		Interval:           900 * time.Second,
		RunOnStart:         true,
		Verbose:            false,
	}
}

// Load reads a YAML file on top of DefaultConfig.
func Load(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", filename, err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SeedFile == "" && c.ProductURL == "" {
		return fmt.Errorf("either seed file or product URL must be set")
	}
	if c.ProductURL != "" {
		if err := validateURL(c.ProductURL); err != nil {
			return fmt.Errorf("invalid product URL: %w", err)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if !strings.Contains(c.ReviewsURLTemplate, "%d") {
		return fmt.Errorf("reviews URL template must contain %%d")
	}
	if !strings.Contains(c.OffersURLTemplate, "%d") {
		return fmt.Errorf("offers URL template must contain %%d")
	}
	if c.OfferPageSize <= 0 {
		return fmt.Errorf("offer page size must be positive")
	}
	if c.CityID == "" {
		return fmt.Errorf("city id cannot be empty")
	}
	if c.OfferParallelism <= 0 {
		return fmt.Errorf("offer parallelism must be positive")
	}
	if c.MaxOfferPages <= 0 {
		return fmt.Errorf("max offer pages must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if strings.TrimSpace(c.ItemMarker) == "" {
		return fmt.Errorf("item marker cannot be empty")
	}
	if c.CategoryKey == "" {
		return fmt.Errorf("category key cannot be empty")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export dir cannot be empty")
	}
	if c.ExportFormat != "json" && c.ExportFormat != "dual" {
		return fmt.Errorf("export format must be json or dual")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic cannot be empty when brokers are set")
	}
	if c.RedisAddr != "" && c.RedisLockTTL <= 0 {
		return fmt.Errorf("redis lock ttl must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	return nil
}

// KafkaBrokerList splits the comma separated broker setting.
func (c *Config) KafkaBrokerList() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}
