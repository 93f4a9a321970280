// Package config holds the server and worker configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/ilcdirac/internal/software"
	"github.com/me/ilcdirac/internal/storage"
)

// DefaultPlatform is the system configuration jobs run on unless told otherwise.
const DefaultPlatform = "x86_64-slc5-gcc43-opt"

// ServerConfig holds configuration for the reporting server.
type ServerConfig struct {
	Addr            string // Listen address (default ":8080")
	LogLevel        string // Log level: debug, info, warn, error
	LogFormat       string // Log format: text, json
	DBPath          string // SQLite database path (":memory:" for testing)
	ProcessListPath string // ProcessList file served and updated by the server
	ReporterKeys    string // JSON file of reporter keys; empty leaves writes open
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		DBPath:    "ilcdirac.db",
	}
}

// ReportConfig selects where a worker sends its reports: to a server
// (URL), straight into a local database (DBPath), or nowhere.
type ReportConfig struct {
	URL    string `yaml:"url"`
	Key    string `yaml:"key"`
	DBPath string `yaml:"db_path"`
}

// WorkerConfig is the operations configuration of a worker node.
type WorkerConfig struct {
	Platform        string           `yaml:"platform"`
	WorkDir         string           `yaml:"work_dir"`
	Software        software.Config  `yaml:"software"`
	DetectorMirrors []string         `yaml:"detector_mirrors"`
	StorageElements []storage.Config `yaml:"storage_elements"`
	Report          ReportConfig     `yaml:"report"`
	// EventPatterns lists, per application, the output lines echoed while
	// it runs.
	EventPatterns            map[string][]string `yaml:"event_patterns"`
	ExcludeAllButEventString bool                `yaml:"exclude_all_but_event_string"`
	// ProxyPath is the grid proxy handed to the steps.
	ProxyPath string `yaml:"proxy_path"`
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Platform: DefaultPlatform,
		WorkDir:  ".",
		EventPatterns: map[string][]string{
			"Mokka":  {`^> BeginOfEvent`},
			"Marlin": {`^\[ VERBOSE "Marlin"\]`},
			"SLIC":   {`^BeginEvent`},
			"LCSIM":  {`^Processing event`},
		},
	}
}

// LoadWorkerConfig reads a worker configuration. Fields absent from the
// file keep their default values.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read worker config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse worker config %s: %w", path, err)
	}
	for i, se := range cfg.StorageElements {
		if se.Name == "" {
			return cfg, fmt.Errorf("storage element %d has no name", i)
		}
	}
	return cfg, nil
}
