// Package config provides the configuration options for CoOrganizer, read
// from defaults, an optional JSON config file and environment variables.
// Command-line flags are applied on top by the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// StoreHost and StorePort address the shared-item store.
	StoreHost string `json:"storeHost"`
	StorePort int    `json:"storePort"`

	// SharePath is the upload path on the store.
	SharePath string `json:"sharePath"`

	// ImportSuffix selects store downloads that carry shared items.
	ImportSuffix string `json:"importSuffix"`

	// Prefs locates persisted preferences: a file path, sqlite://path or
	// postgres://dsn.
	Prefs string `json:"prefs"`

	// ListenAddr is where serve exposes the control API and store proxy.
	ListenAddr string `json:"listenAddr"`

	LogLevel string `json:"logLevel"`

	// Cipher names the encryption suite (aes-gcm, chacha20-poly1305).
	Cipher string `json:"cipher"`

	// HTTPTimeout bounds every call to the store.
	HTTPTimeout Duration `json:"httpTimeout"`

	// MaxImportBody bounds how much of a download is buffered for import.
	MaxImportBody int64 `json:"maxImportBody"`

	// OrganizerRetention is how long imported items are kept; zero keeps
	// them forever.
	OrganizerRetention Duration `json:"organizerRetention"`

	// Config is the path to the config file.
	Config string `json:"-"`
}

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Environment variables read by Load.
const (
	EnvConfig     = "CONFIG"
	EnvStoreHost  = "COORG_STORE_HOST"
	EnvStorePort  = "COORG_STORE_PORT"
	EnvPrefs      = "COORG_PREFS"
	EnvListenAddr = "COORG_LISTEN_ADDR"
	EnvLogLevel   = "COORG_LOG_LEVEL"
)

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		StoreHost:          "localhost",
		StorePort:          3000,
		SharePath:          "/share",
		ImportSuffix:       "/import",
		Prefs:              DefaultPrefsPath(),
		ListenAddr:         "localhost:8089",
		LogLevel:           "info",
		Cipher:             "aes-gcm",
		HTTPTimeout:        Duration(10 * time.Second),
		MaxImportBody:      32 << 20,
		OrganizerRetention: Duration(30 * 24 * time.Hour),
		Config:             "config.json",
	}
}

// DefaultPrefsPath is the preferences file under the user config directory.
func DefaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "coorganizer-prefs.json"
	}
	return dir + string(os.PathSeparator) + "coorganizer" + string(os.PathSeparator) + "prefs.json"
}

// Load builds Options from defaults, the config file and the environment.
// path names the config file; CONFIG overrides it. A missing file at the
// default location is not an error, a missing file named explicitly is.
func Load(path string) (*Options, error) {
	options := Default()
	explicit := path != ""
	if explicit {
		options.Config = path
	}
	if configPath := os.Getenv(EnvConfig); configPath != "" {
		options.Config = configPath
		explicit = true
	}

	if options.Config != "" {
		data, err := os.ReadFile(options.Config)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("error while reading config file: %w", err)
		}
	}

	if v := os.Getenv(EnvStoreHost); v != "" {
		options.StoreHost = v
	}
	if v := os.Getenv(EnvStorePort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvStorePort, err)
		}
		options.StorePort = port
	}
	if v := os.Getenv(EnvPrefs); v != "" {
		options.Prefs = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		options.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		options.LogLevel = v
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// Validate checks values that would otherwise fail far from their source.
func (o *Options) Validate() error {
	if o.StoreHost == "" {
		return errors.New("store host is required")
	}
	if o.StorePort <= 0 || o.StorePort > 65535 {
		return fmt.Errorf("store port %d out of range", o.StorePort)
	}
	if o.ImportSuffix == "" {
		return errors.New("import suffix is required")
	}
	if o.HTTPTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	return nil
}
