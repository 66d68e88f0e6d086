package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration decodes "30s"-style YAML values into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) std() time.Duration { return time.Duration(d) }

// fileConfig is the on-disk configuration for the daemon.
type fileConfig struct {
	Listen string `yaml:"listen"`

	Store struct {
		// Backend selects the persistence layer: memory, mongo, or redis.
		Backend  string `yaml:"backend"`
		MongoURI string `yaml:"mongo_uri"`
		MongoDB  string `yaml:"mongo_db"`
		RedisURI string `yaml:"redis_uri"`
	} `yaml:"store"`

	Reconcile struct {
		ActivePollInterval    duration `yaml:"active_poll_interval"`
		IdlePollInterval      duration `yaml:"idle_poll_interval"`
		NotificationHistory   int      `yaml:"notification_history"`
		StaleRunningThreshold duration `yaml:"stale_running_threshold"`
	} `yaml:"reconcile"`

	ShutdownTimeout duration `yaml:"shutdown_timeout"`
}

func defaultFileConfig() fileConfig {
	var c fileConfig
	c.Listen = ":8080"
	c.Store.Backend = "memory"
	c.Store.MongoURI = "mongodb://localhost:27017"
	c.Store.MongoDB = "jobline"
	c.Store.RedisURI = "redis://localhost:6379/0"
	c.ShutdownTimeout = duration(30 * time.Second)
	return c
}

// loadConfig reads the YAML config at path, layered over defaults.
// An empty path returns the defaults untouched.
func loadConfig(path string) (fileConfig, error) {
	c := defaultFileConfig()
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}

	switch c.Store.Backend {
	case "memory", "mongo", "redis":
	default:
		return c, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return c, nil
}
