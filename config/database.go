package config

import (
	"fmt"
	"net/url"
)

// DatabaseConfig describes the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, pgx or sqlite3
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
}

// DefaultDatabaseConfig points at the compose postgres service.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:   "postgres",
		Host:     "kaspi-parser-db",
		Port:     "5432",
		User:     "postgres",
		Password: "postgres",
		Name:     "postgres",
		Path:     "data/tracker.db",
	}
}

// Validate checks the driver and the fields it needs.
func (d DatabaseConfig) Validate() error {
	switch d.Driver {
	case "postgres", "pgx":
		if d.DSN == "" && (d.Host == "" || d.Name == "") {
			return fmt.Errorf("database host and name are required for %s", d.Driver)
		}
	case "sqlite3":
		if d.DSN == "" && d.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	default:
		return fmt.Errorf("database driver must be postgres, pgx or sqlite3")
	}
	return nil
}

// ConnectionString returns the DSN handed to sql.Open.
func (d DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "sqlite3":
		return d.Path
	case "pgx":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.Host + ":" + d.Port,
			Path:     "/" + d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	default:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			d.Host, d.Port, d.User, d.Password, d.Name)
	}
}
