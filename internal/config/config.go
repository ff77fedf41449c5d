// Package config holds the chfs configuration: where the store lives,
// and the fixed attribute and statfs values reported to the kernel.
package config

import (
	"fmt"
	"os"
	"strconv"

	"chfs/internal/logging"
	"chfs/internal/store"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverCouchDB = "couchdb"
	DriverFixture = "fixture"
)

// Config is the top-level configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Attributes AttributesConfig `yaml:"attributes"`
	Statfs     StatfsConfig     `yaml:"statfs"`
	Log        LogConfig        `yaml:"log"`
}

// StoreConfig selects and addresses the document store.
type StoreConfig struct {
	// Driver is "couchdb" or "fixture".
	Driver string `yaml:"driver"`

	URL      string `yaml:"url"`
	Database string `yaml:"database"`

	// View is the "design/view" index that directories are listed from.
	View string `yaml:"view"`

	// Stale is the staleness accepted for directory listings: "", "ok"
	// or "update_after".
	Stale store.Stale `yaml:"stale"`

	// Fixture is the YAML file loaded by the fixture driver.
	Fixture string `yaml:"fixture"`
}

// AttributesConfig holds the fixed attributes of synthetic nodes.
type AttributesConfig struct {
	DirectorySize uint64 `yaml:"directory_size"`
	DirectoryMode Mode   `yaml:"directory_mode"`
	FileMode      Mode   `yaml:"file_mode"`
}

// StatfsConfig holds the placeholder capacity reported by statfs. The
// store has no block or inode accounting.
type StatfsConfig struct {
	BlockSize   uint32 `yaml:"block_size"`
	FragSize    uint32 `yaml:"frag_size"`
	Blocks      uint64 `yaml:"blocks"`
	BlocksFree  uint64 `yaml:"blocks_free"`
	BlocksAvail uint64 `yaml:"blocks_avail"`
	Files       uint64 `yaml:"files"`
	FilesFree   uint64 `yaml:"files_free"`
	NameMax     uint32 `yaml:"name_max"`
}

// LogConfig sets the log level name (ERROR, WARN, INFO, DEBUG, TRACE).
type LogConfig struct {
	Level string `yaml:"level"`
}

// Mode is a permission mode written as an octal string ("0555").
type Mode uint32

// UnmarshalYAML parses the octal form.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: mode must be an octal string", value.Line)
	}
	parsed, err := strconv.ParseUint(value.Value, 8, 32)
	if err != nil {
		return fmt.Errorf("line %d: invalid mode %q: %w", value.Line, value.Value, err)
	}
	*m = Mode(parsed)
	return nil
}

// MarshalYAML writes the octal form.
func (m Mode) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%#o", uint32(m)), nil
}

// Placeholder statfs value used for every field by default.
const nominalStatfs = 1000000

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:   DriverCouchDB,
			URL:      "http://localhost:5984",
			Database: "chronicle",
			View:     "instances/context",
			Stale:    store.StaleOK,
		},
		Attributes: AttributesConfig{
			DirectorySize: 4096,
			DirectoryMode: 0o555,
			FileMode:      0o444,
		},
		Statfs: StatfsConfig{
			BlockSize:   nominalStatfs,
			FragSize:    nominalStatfs,
			Blocks:      nominalStatfs,
			BlocksFree:  nominalStatfs,
			BlocksAvail: nominalStatfs,
			Files:       nominalStatfs,
			FilesFree:   nominalStatfs,
			NameMax:     255,
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverCouchDB:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the couchdb driver")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store.database is required for the couchdb driver")
		}
	case DriverFixture:
		if c.Store.Fixture == "" {
			return fmt.Errorf("store.fixture is required for the fixture driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.View == "" {
		return fmt.Errorf("store.view is required")
	}
	if !c.Store.Stale.Valid() {
		return fmt.Errorf("unknown store.stale %q", c.Store.Stale)
	}
	if c.Attributes.DirectoryMode > 0o777 || c.Attributes.FileMode > 0o777 {
		return fmt.Errorf("attribute modes must be permission bits only")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
