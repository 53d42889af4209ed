package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"tagstore-dht/internal/configloader"
	"tagstore-dht/internal/logger"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | otlp
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// FaultToleranceConfig governs the Chord ring's maintenance cadence
// (spec.md §4.4/§5) and replication factor (§4.8, §9 open question
// resolved as a single configurable R).
type FaultToleranceConfig struct {
	SuccessorListSize  int           `yaml:"successorListSize"`
	StabilizeInterval  time.Duration `yaml:"stabilizeInterval"`  // WAIT_CHECK
	StableMod          int           `yaml:"stableMod"`          // STABLE_MOD
	FailureTimeout     time.Duration `yaml:"failureTimeout"`
	FingerBatchSize    int           `yaml:"fingerBatchSize"`    // validated only; fixFingers uses chord.FingerBatchSize (20)
	ReplicationFactor  int           `yaml:"replicationFactor"`  // R
}

// ElectionConfig governs the Bully elector (spec.md §4.5).
type ElectionConfig struct {
	ElectionMod   int           `yaml:"electionMod"`   // ELECTION_MOD
	ElectionRounds int          `yaml:"electionRounds"`// countdown length
	BroadcastMod  int           `yaml:"broadcastMod"`  // BROADCAST_MOD
	StartMod      int           `yaml:"startMod"`       // START_MOD
}

// MulticastConfig describes the shared UDP multicast group used by both
// the elector and discovery (spec.md §6).
type MulticastConfig struct {
	Addr          string `yaml:"addr"`
	ElectionPort  int    `yaml:"electionPort"`
	DiscoveryPort int    `yaml:"discoveryPort"`
}

// BootstrapConfig selects how a node seeds its first peer (spec.md §4.6).
type BootstrapConfig struct {
	Mode  string   `yaml:"mode"` // multicast | static | init
	Peers []string `yaml:"peers"`
}

type DHTConfig struct {
	IDBits         int                  `yaml:"idBits"`
	Mode           string               `yaml:"mode"` // private | public interface selection
	FaultTolerance FaultToleranceConfig `yaml:"faultTolerance"`
	Election       ElectionConfig       `yaml:"election"`
	Multicast      MulticastConfig      `yaml:"multicast"`
	Bootstrap      BootstrapConfig      `yaml:"bootstrap"`
}

type NodeConfig struct {
	Id        string `yaml:"id"`
	Bind      string `yaml:"bind"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`      // client-facing data port
	ChordPort int    `yaml:"chordPort"` // peer-facing ring/replication port
}

// StoreConfig is the external catalog/blob collaborator's configuration
// (spec.md §1, §6: DB_BASE_URL, DB_NAME, CONTENT_PATH).
type StoreConfig struct {
	DBBaseURL   string `yaml:"dbBaseUrl"`
	DBName      string `yaml:"dbName"`
	ContentPath string `yaml:"contentPath"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	DHT       DHTConfig       `yaml:"dht"`
	Node      NodeConfig      `yaml:"node"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns a Config populated with spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{Active: true, Level: "info", Encoding: "console", Mode: "stdout"},
		DHT: DHTConfig{
			IDBits: 160,
			Mode:   "private",
			FaultTolerance: FaultToleranceConfig{
				SuccessorListSize: 5,
				StabilizeInterval: 5 * time.Second, // WAIT_CHECK
				StableMod:         2,
				FailureTimeout:    5 * time.Second,
				FingerBatchSize:   20,
				ReplicationFactor: 3,
			},
			Election: ElectionConfig{
				ElectionMod:    1,
				ElectionRounds: 3,
				BroadcastMod:   3,
				StartMod:       1,
			},
			Multicast: MulticastConfig{
				Addr:          "224.0.0.1",
				ElectionPort:  10002,
				DiscoveryPort: 10003,
			},
			Bootstrap: BootstrapConfig{Mode: "multicast"},
		},
		Node: NodeConfig{
			Bind:      "0.0.0.0",
			Host:      "127.0.0.1",
			Port:      10000,
			ChordPort: 10001,
		},
		Store: StoreConfig{
			DBBaseURL:   "./data",
			DBName:      "catalog.db",
			ContentPath: "content",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to
// Default() for any field the file omits (the file need not exist at all;
// a missing path is not an error — every deployment key is also settable
// via ApplyEnvOverrides, matching spec.md §6's environment-first model).
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := configloader.LoadYAML(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies the environment variables recognized by
// spec.md §6 (HOST, PORT, CHORD_PORT, MCAST_ADDR, DB_BASE_URL, DB_NAME,
// CONTENT_PATH; PROTOCOL is not read, Config has no protocol field) plus the ambient-stack keys SPEC_FULL.md §6 adds
// (NODE_ID, LOGGER_*, TRACE_*, REPLICATION_FACTOR, STABILIZE_INTERVAL,
// ELECTION_TIMEOUT, FINGER_BATCH_SIZE), delegating the actual env-parsing
// to internal/configloader's generic field overrides.
func (cfg *Config) ApplyEnvOverrides() {
	configloader.OverrideString(&cfg.Node.Host, "HOST")
	configloader.OverrideInt(&cfg.Node.Port, "PORT")
	configloader.OverrideInt(&cfg.Node.ChordPort, "CHORD_PORT")
	configloader.OverrideString(&cfg.DHT.Multicast.Addr, "MCAST_ADDR")
	configloader.OverrideString(&cfg.Store.DBBaseURL, "DB_BASE_URL")
	configloader.OverrideString(&cfg.Store.DBName, "DB_NAME")
	configloader.OverrideString(&cfg.Store.ContentPath, "CONTENT_PATH")
	configloader.OverrideString(&cfg.Node.Id, "NODE_ID")
	configloader.OverrideString(&cfg.Node.Bind, "NODE_BIND")
	configloader.OverrideString(&cfg.DHT.Bootstrap.Mode, "BOOTSTRAP_MODE")
	configloader.OverrideStringSlice(&cfg.DHT.Bootstrap.Peers, "BOOTSTRAP_PEERS")
	configloader.OverrideInt(&cfg.DHT.FaultTolerance.ReplicationFactor, "REPLICATION_FACTOR")
	configloader.OverrideDuration(&cfg.DHT.FaultTolerance.StabilizeInterval, "STABILIZE_INTERVAL")
	configloader.OverrideInt(&cfg.DHT.Election.ElectionRounds, "ELECTION_TIMEOUT")
	configloader.OverrideInt(&cfg.DHT.FaultTolerance.FingerBatchSize, "FINGER_BATCH_SIZE")
	configloader.OverrideBool(&cfg.Telemetry.Tracing.Enabled, "TRACE_ENABLED")
	configloader.OverrideString(&cfg.Telemetry.Tracing.Exporter, "TRACE_EXPORTER")
	configloader.OverrideString(&cfg.Telemetry.Tracing.Endpoint, "TRACE_ENDPOINT")
	configloader.OverrideBool(&cfg.Logger.Active, "LOGGER_ACTIVE")
	configloader.OverrideString(&cfg.Logger.Level, "LOGGER_LEVEL")
	configloader.OverrideString(&cfg.Logger.Encoding, "LOGGER_ENCODING")
	configloader.OverrideString(&cfg.Logger.Mode, "LOGGER_MODE")
	configloader.OverrideString(&cfg.Logger.File.Path, "LOGGER_FILE_PATH")
}

// ValidateConfig performs structural validation, accumulating every
// violation instead of returning on the first one found.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.DHT.IDBits <= 0 {
		errs = append(errs, "dht.idBits must be > 0")
	}
	switch cfg.DHT.Mode {
	case "public", "private":
	default:
		errs = append(errs, fmt.Sprintf("invalid dht.mode: %s", cfg.DHT.Mode))
	}
	if cfg.DHT.FaultTolerance.SuccessorListSize <= 0 {
		errs = append(errs, "dht.faultTolerance.successorListSize must be > 0")
	}
	if cfg.DHT.FaultTolerance.StabilizeInterval <= 0 {
		errs = append(errs, "dht.faultTolerance.stabilizeInterval must be > 0")
	}
	if cfg.DHT.FaultTolerance.ReplicationFactor < 1 {
		errs = append(errs, "dht.faultTolerance.replicationFactor must be >= 1")
	}
	if cfg.DHT.FaultTolerance.FingerBatchSize <= 0 {
		errs = append(errs, "dht.faultTolerance.fingerBatchSize must be > 0")
	}

	switch cfg.DHT.Bootstrap.Mode {
	case "multicast", "init":
	case "static":
		for _, p := range cfg.DHT.Bootstrap.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be multicast, static or init)", cfg.DHT.Bootstrap.Mode))
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}
	if cfg.Node.ChordPort < 0 || cfg.Node.ChordPort > 65535 {
		errs = append(errs, fmt.Sprintf("node.chordPort must be in [0,65535], got %d", cfg.Node.ChordPort))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the loaded configuration at DEBUG level.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("dht.idBits", cfg.DHT.IDBits),
		logger.F("dht.mode", cfg.DHT.Mode),
		logger.F("dht.faultTolerance.successorListSize", cfg.DHT.FaultTolerance.SuccessorListSize),
		logger.F("dht.faultTolerance.stabilizeInterval", cfg.DHT.FaultTolerance.StabilizeInterval.String()),
		logger.F("dht.faultTolerance.replicationFactor", cfg.DHT.FaultTolerance.ReplicationFactor),
		logger.F("dht.multicast.addr", cfg.DHT.Multicast.Addr),
		logger.F("dht.multicast.electionPort", cfg.DHT.Multicast.ElectionPort),
		logger.F("dht.multicast.discoveryPort", cfg.DHT.Multicast.DiscoveryPort),
		logger.F("dht.bootstrap.mode", cfg.DHT.Bootstrap.Mode),
		logger.F("node.host", cfg.Node.Host),
		logger.F("node.port", cfg.Node.Port),
		logger.F("node.chordPort", cfg.Node.ChordPort),
		logger.F("store.dbBaseUrl", cfg.Store.DBBaseURL),
		logger.F("store.contentPath", cfg.Store.ContentPath),
		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
	)
}
