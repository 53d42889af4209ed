// Package loadtest drives a synthetic query workload against a static set
// of node client ports and logs latency/outcome per request, the way
// internal/client/tester drove lookups against a Koorde ring. Bootstrap
// discovery there was Docker-container introspection or Route53; this
// workload has no container runtime or DNS zone to ask, so peers are a
// configured, static address list instead.
package loadtest

import (
	"fmt"
	"strings"
	"time"

	"tagstore-dht/internal/config"
	"tagstore-dht/internal/configloader"
	"tagstore-dht/internal/logger"
)

// SimulationConfig controls the overall run length.
type SimulationConfig struct {
	Duration time.Duration `yaml:"duration"`
}

// ParallelismConfig bounds how many workers fire concurrently per wave.
type ParallelismConfig struct {
	MinWorkers int `yaml:"min"`
	MaxWorkers int `yaml:"max"`
}

// QueryConfig controls the synthetic request rate and shape.
type QueryConfig struct {
	Rate        float64           `yaml:"rate"` // waves per second
	Timeout     time.Duration     `yaml:"timeout"`
	Parallelism ParallelismConfig `yaml:"parallelism"`
}

// CSVConfig controls the per-request result log.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the root configuration for cmd/loadtest.
type Config struct {
	Logger     config.LoggerConfig `yaml:"logger"`
	Simulation SimulationConfig    `yaml:"simulation"`
	Peers      []string            `yaml:"peers"` // static "host:port" client addresses
	CSV        CSVConfig           `yaml:"csv"`
	Query      QueryConfig         `yaml:"query"`
}

// Load reads cfg from path and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := configloader.LoadYAML(path, cfg); err != nil {
		return nil, err
	}

	configloader.OverrideBool(&cfg.Logger.Active, "LOGGER_ACTIVE")
	configloader.OverrideString(&cfg.Logger.Level, "LOGGER_LEVEL")
	configloader.OverrideString(&cfg.Logger.Encoding, "LOGGER_ENCODING")
	configloader.OverrideString(&cfg.Logger.Mode, "LOGGER_MODE")
	configloader.OverrideString(&cfg.Logger.File.Path, "LOGGER_FILE_PATH")
	configloader.OverrideInt(&cfg.Logger.File.MaxSize, "LOGGER_FILE_MAXSIZE")
	configloader.OverrideInt(&cfg.Logger.File.MaxBackups, "LOGGER_FILE_MAXBACKUPS")
	configloader.OverrideInt(&cfg.Logger.File.MaxAge, "LOGGER_FILE_MAXAGE")
	configloader.OverrideBool(&cfg.Logger.File.Compress, "LOGGER_FILE_COMPRESS")

	configloader.OverrideDuration(&cfg.Simulation.Duration, "SIM_DURATION")
	configloader.OverrideStringSlice(&cfg.Peers, "LOADTEST_PEERS")

	configloader.OverrideBool(&cfg.CSV.Enabled, "CSV_ENABLED")
	configloader.OverrideString(&cfg.CSV.Path, "CSV_PATH")

	configloader.OverrideFloat(&cfg.Query.Rate, "QUERY_RATE")
	configloader.OverrideDuration(&cfg.Query.Timeout, "QUERY_TIMEOUT")
	configloader.OverrideInt(&cfg.Query.Parallelism.MinWorkers, "QUERY_PARALLELISM_MIN")
	configloader.OverrideInt(&cfg.Query.Parallelism.MaxWorkers, "QUERY_PARALLELISM_MAX")

	return cfg, nil
}

// Validate checks Config for the same structural mistakes the node and
// client configs guard against: accumulate every violation, return one.
func (c *Config) Validate() error {
	var errs []string

	if c.Logger.Active {
		switch c.Logger.Level {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Sprintf("logger.level must be one of [debug, info, warn, error], got %q", c.Logger.Level))
		}
		if c.Logger.Mode == "file" && c.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path must be set when logger.mode = file")
		}
	}

	if c.Simulation.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.duration must be > 0 (got %v)", c.Simulation.Duration))
	}
	if len(c.Peers) == 0 {
		errs = append(errs, "peers must list at least one node client address")
	}
	if c.CSV.Enabled && c.CSV.Path == "" {
		errs = append(errs, "csv.path must be set when csv.enabled = true")
	}
	if c.Query.Rate <= 0 {
		errs = append(errs, fmt.Sprintf("query.rate must be > 0 (got %f)", c.Query.Rate))
	}
	if c.Query.Parallelism.MinWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("query.parallelism.min must be > 0 (got %d)", c.Query.Parallelism.MinWorkers))
	}
	if c.Query.Parallelism.MaxWorkers < c.Query.Parallelism.MinWorkers {
		errs = append(errs, fmt.Sprintf("query.parallelism.max must be >= min (got %d < %d)",
			c.Query.Parallelism.MaxWorkers, c.Query.Parallelism.MinWorkers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the loaded configuration at INFO level.
func (c *Config) LogConfig(lgr logger.Logger) {
	lgr.Info("loaded loadtest configuration",
		logger.F("logger.active", c.Logger.Active),
		logger.F("logger.level", c.Logger.Level),
		logger.F("simulation.duration", c.Simulation.Duration.String()),
		logger.F("peers", strings.Join(c.Peers, ",")),
		logger.F("csv.enabled", c.CSV.Enabled),
		logger.F("csv.path", c.CSV.Path),
		logger.F("query.rate", c.Query.Rate),
		logger.F("query.timeout", c.Query.Timeout.String()),
		logger.F("query.parallelism.min", c.Query.Parallelism.MinWorkers),
		logger.F("query.parallelism.max", c.Query.Parallelism.MaxWorkers),
	)
}
