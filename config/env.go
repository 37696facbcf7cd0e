package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a Go duration ("15m") or a number of seconds.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, true, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overrides cfg from the process environment.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"TRACKER_SEED_FILE":    &c.SeedFile,
		"TRACKER_PRODUCT_URL":  &c.ProductURL,
		"TRACKER_EXPORT_DIR":   &c.ExportDir,
		"TRACKER_METRICS_ADDR": &c.MetricsAddr,
		"TRACKER_LOG_FILE":     &c.LogFile,
		"KAFKA_BROKERS":        &c.KafkaBrokers,
		"KAFKA_TOPIC":          &c.KafkaTopic,
		"REDIS_ADDR":           &c.RedisAddr,
		"DB_DRIVER":            &c.Database.Driver,
		"DB_DSN":               &c.Database.DSN,
		"DB_HOST":              &c.Database.Host,
		"DB_PORT":              &c.Database.Port,
		"DB_USER":              &c.Database.User,
		"DB_PASSWORD":          &c.Database.Password,
		"DB_NAME":              &c.Database.Name,
		"DB_PATH":              &c.Database.Path,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"TRACKER_MAX_RETRIES":       &c.MaxRetries,
		"TRACKER_OFFER_PARALLELISM": &c.OfferParallelism,
		"TRACKER_MAX_OFFER_PAGES":   &c.MaxOfferPages,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"TRACKER_INTERVAL": &c.Interval,
		"TRACKER_TIMEOUT":  &c.Timeout,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

// Seed is the external seed document.
type Seed struct {
	ProductURL string `json:"product_url"`
}

// LoadSeed reads the seed JSON file and returns its product URL.
func LoadSeed(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return "", fmt.Errorf("decode seed %q: %w", filename, err)
	}
	if strings.TrimSpace(seed.ProductURL) == "" {
		return "", fmt.Errorf("seed %q has no product_url", filename)
	}
	if err := validateURL(seed.ProductURL); err != nil {
		return "", fmt.Errorf("seed %q: %w", filename, err)
	}
	return seed.ProductURL, nil
}

// ResolveProductURL returns the configured override or reads the seed file.
func (c *Config) ResolveProductURL() (string, error) {
	if c.ProductURL != "" {
		return c.ProductURL, nil
	}
	return LoadSeed(c.SeedFile)
}
