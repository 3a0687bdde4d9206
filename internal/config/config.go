package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/asad/blobmirror/internal/filter"
	"github.com/asad/blobmirror/internal/logging"
	"github.com/asad/blobmirror/internal/storage"
)

// MaxPageSize is the largest page the blob service accepts.
const MaxPageSize = 5000

// Config holds the settings of one mirror run.
// Values come from defaults, an optional YAML file, environment variables and flags, in that order.
type Config struct {
	// Account is the storage account name.
	// Env: AZURE_STORAGE_ACCOUNT
	Account string `yaml:"account"`

	// Key is the storage account access key.
	// Env: AZURE_STORAGE_ACCESS_KEY
	Key string `yaml:"key"`

	// Endpoint overrides the blob service URL (Azurite, sovereign clouds).
	// Env: AZURE_STORAGE_ENDPOINT
	Endpoint string `yaml:"endpoint"`

	// SourceDir mirrors from a local directory tree instead of Azure.
	SourceDir string `yaml:"source_dir"`

	// Output is the directory the mirror tree is written to.
	// Env: BLOBMIRROR_OUTPUT. Default: current directory.
	Output string `yaml:"output"`

	// ContainerPattern and BlobPattern are unanchored regular expressions. Empty matches all.
	ContainerPattern string `yaml:"container_pattern"`
	BlobPattern      string `yaml:"blob_pattern"`

	// StartDate and EndDate bound the blob last-modified time, inclusive.
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	// IncludeSnapshots also mirrors blob snapshots.
	IncludeSnapshots bool `yaml:"include_snapshots"`

	// PageSize is the listing page size. Zero lets the service decide.
	PageSize int `yaml:"page_size"`

	// MetricsFile, when set, receives run metrics in Prometheus text format.
	MetricsFile string `yaml:"metrics_file"`

	// Port is where "serve" listens.
	// Env: BLOBMIRROR_PORT. Default: 8080
	Port int `yaml:"port"`

	// LogLevel controls the verbosity of logging (debug, info, warn, error).
	// Env: LOG_LEVEL. Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "console" or "json".
	// Env: LOG_FORMAT. Default: "console"
	LogFormat string `yaml:"log_format"`
}

// Default returns a Config with defaults applied.
func Default() *Config {
	return &Config{
		Output:    ".",
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load builds a Config from defaults, the YAML file at path (if path is not empty) and the
// environment. Flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.LoadEnv(os.LookupEnv)
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return storage.NewError(storage.KindInvalidConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return storage.NewError(storage.KindInvalidConfig, "parse config file "+path, err)
	}
	return nil
}

// LoadEnv overlays environment variables. lookup is os.LookupEnv outside tests.
func (c *Config) LoadEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	// Load credentials
	str("AZURE_STORAGE_ACCOUNT", &c.Account)
	str("AZURE_STORAGE_ACCESS_KEY", &c.Key)
	str("AZURE_STORAGE_ENDPOINT", &c.Endpoint)

	// Load OUTPUT
	str("BLOBMIRROR_OUTPUT", &c.Output)

	// Load logging settings
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup("BLOBMIRROR_PAGE_SIZE"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PageSize = n
		}
	}

	// Load BLOBMIRROR_PORT
	if v, ok := lookup("BLOBMIRROR_PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Port = port
		}
	}
}

// Validate performs validation on the configuration.
// Returns an error if any invalid settings are detected.
func (c *Config) Validate() error {
	var errs []error

	if c.SourceDir == "" {
		if c.Account == "" {
			errs = append(errs, errors.New("account is required (--account or AZURE_STORAGE_ACCOUNT)"))
		}
		if c.Key == "" {
			errs = append(errs, errors.New("access key is required (--key or AZURE_STORAGE_ACCESS_KEY)"))
		}
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output directory cannot be empty"))
	}
	if c.PageSize < 0 || c.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("invalid page size %d (must be 0-%d)", c.PageSize, MaxPageSize))
	}
	errs = append(errs, c.validateLogging()...)
	if _, err := filter.NewDateRange(c.StartDate, c.EndDate); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return storage.NewError(storage.KindInvalidConfig, "validate configuration", errors.Join(errs...))
	}
	return nil
}

// ValidateServe checks the settings used by the serve command.
func (c *Config) ValidateServe() error {
	var errs []error
	if c.Output == "" {
		errs = append(errs, errors.New("mirror directory cannot be empty"))
	}
	if c.Port <= 0 || c.Port >= 65536 {
		errs = append(errs, fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port))
	}
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return storage.NewError(storage.KindInvalidConfig, "validate configuration", errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateLogging() []error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q (want console or json)", c.LogFormat))
	}
	return errs
}

// Filters compiles the name patterns and date range.
// Pattern errors surface here, before any network call.
func (c *Config) Filters() (containers, blobs filter.Pattern, dates filter.DateRange, err error) {
	if containers, err = filter.Compile(c.ContainerPattern); err != nil {
		return
	}
	if blobs, err = filter.Compile(c.BlobPattern); err != nil {
		return
	}
	dates, err = filter.NewDateRange(c.StartDate, c.EndDate)
	return
}
