package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// AppName is the application name used for XDG directory paths.
const AppName = "scanpipe"

// Default configuration values.
const (
	// DefaultServerAddr is the listen address of the HTTP trigger.
	DefaultServerAddr = ":8080"

	// DefaultMaxConnections bounds concurrently accepted HTTP connections.
	DefaultMaxConnections = 256

	// DefaultReadHeaderTimeout protects the server from slow clients.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultDriver stores status in a local SQLite file.
	DefaultDriver = DriverSQLite

	// DefaultWorkers is the size of the shared worker pool.
	// Ten workers with a 500 slot admission queue matches the executor sizing
	// the scan service has always run with.
	DefaultWorkers = 10

	// DefaultQueueSize is the bound of the admission queue in front of the pool.
	// When it is full, submitters block.
	DefaultQueueSize = 500

	// DefaultMaxConcurrency limits in-flight items of a single stage fan-out.
	// Each item spawns an external process, so this stays well below Workers.
	DefaultMaxConcurrency = 4

	// DefaultRunTimeout bounds one whole pipeline run.
	DefaultRunTimeout = 2 * time.Hour

	// DefaultToolTimeout bounds one external tool invocation.
	// A migration analysis of a large EAR can take tens of minutes.
	DefaultToolTimeout = 30 * time.Minute

	// DefaultBatchSize is the number of findings inserted per statement batch.
	DefaultBatchSize = 1000

	// DefaultJFrogBinary is the artifact repository CLI.
	DefaultJFrogBinary = "jfrog"

	// DefaultRepositoryPattern is searched below for <pattern>/<spk>/.
	DefaultRepositoryPattern = "libs-release-*/com/baml"

	// DefaultMTABinary is the migration analyzer CLI.
	DefaultMTABinary = "windup-cli"

	// DefaultMTAReport is the CSV file the analyzer writes into its output directory.
	DefaultMTAReport = "AllIssues.csv"

	// DefaultDotNetReport is the CSV file the code analysis tool writes.
	DefaultDotNetReport = "report.csv"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DriverMemory keeps everything in process; useful for one-off CLI scans.
	DriverMemory = "memory"
)

// Config holds all configuration of the scan service.
// It is populated from defaults, then a YAML file, then CLI flags, and is
// passed explicitly to the components that need it.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Pool        PoolConfig      `yaml:"pool"`
	Timeouts    TimeoutConfig   `yaml:"timeouts"`
	Directories DirectoryConfig `yaml:"directories"`
	Tools       ToolsConfig     `yaml:"tools"`
	Findings    FindingsConfig  `yaml:"findings"`
	Storage     StorageConfig   `yaml:"storage"`
	Log         LogConfig       `yaml:"log"`

	// ConfigFilePath is the file the configuration was loaded from, if any.
	ConfigFilePath string `yaml:"-"`
}

// ServerConfig configures the HTTP trigger.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MaxConnections    int           `yaml:"maxConnections"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`

	// CORSOrigins lists origins allowed to poll status from a browser.
	CORSOrigins []string `yaml:"corsOrigins,omitempty"`
}

// DatabaseConfig selects and configures the status store.
type DatabaseConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver string `yaml:"driver"`

	// Dir is the directory holding the SQLite file.
	Dir string `yaml:"dir"`

	// URL is the postgres connection string.
	URL string `yaml:"url,omitempty"`

	// Password overrides the password in URL. May be an enc: value.
	Password string `yaml:"password,omitempty"`

	// MaxConns is the postgres pool size.
	MaxConns int32 `yaml:"maxConns,omitempty"`
}

// PoolConfig sizes the shared worker pool.
type PoolConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queueSize"`
	MaxConcurrency int `yaml:"maxConcurrency"`
}

// TimeoutConfig bounds run and tool durations.
type TimeoutConfig struct {
	Run  time.Duration `yaml:"run"`
	Tool time.Duration `yaml:"tool"`
}

// DirectoryConfig holds the working directories of the stages.
type DirectoryConfig struct {
	Artifacts string `yaml:"artifacts"`
	Downloads string `yaml:"downloads"`
	Scans     string `yaml:"scans"`
	Logs      string `yaml:"logs"`
}

// FindingsConfig configures findings ingestion.
type FindingsConfig struct {
	BatchSize int `yaml:"batchSize"`
}

// StorageConfig configures the optional object store used to archive reports.
// Archiving is disabled when Endpoint is empty.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	AccessKey string `yaml:"accessKey,omitempty"`
	SecretKey string `yaml:"secretKey,omitempty"`
	UseSSL    bool   `yaml:"useSSL,omitempty"`
}

// Enabled reports whether report archiving is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

// LogConfig configures the logger.
type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// NewConfig creates a Config populated with defaults.
func NewConfig() *Config {
	cacheDir := XDGCacheDir()
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultServerAddr,
			MaxConnections:    DefaultMaxConnections,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
		Database: DatabaseConfig{
			Driver:   DefaultDriver,
			Dir:      XDGDataDir(),
			MaxConns: 10,
		},
		Pool: PoolConfig{
			Workers:        DefaultWorkers,
			QueueSize:      DefaultQueueSize,
			MaxConcurrency: DefaultMaxConcurrency,
		},
		Timeouts: TimeoutConfig{
			Run:  DefaultRunTimeout,
			Tool: DefaultToolTimeout,
		},
		Directories: DirectoryConfig{
			Artifacts: filepath.Join(cacheDir, "artifacts"),
			Downloads: filepath.Join(cacheDir, "downloads"),
			Scans:     filepath.Join(cacheDir, "scans"),
			Logs:      filepath.Join(cacheDir, "logs"),
		},
		Tools:    defaultTools(),
		Findings: FindingsConfig{BatchSize: DefaultBatchSize},
	}
}

// XDGDataDir returns the XDG data directory for scanpipe.
// On Linux: ~/.local/share/scanpipe
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for scanpipe.
// On Linux: ~/.config/scanpipe
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for scanpipe.
// Downloads and analyzer output are disposable, so they live here.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.Pool.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Pool.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	if c.Pool.MaxConcurrency <= 0 {
		return ErrInvalidMaxConcurrency
	}
	if c.Timeouts.Run <= 0 {
		return ErrInvalidRunTimeout
	}
	if c.Timeouts.Tool <= 0 {
		return ErrInvalidToolTimeout
	}
	if c.Findings.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Dir == "" {
			return ErrMissingDatabaseDir
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return ErrMissingDatabaseURL
		}
	case DriverMemory:
	default:
		return ErrUnsupportedDriver
	}

	if err := c.Tools.validate(); err != nil {
		return err
	}

	if c.Storage.Enabled() && c.Storage.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}
