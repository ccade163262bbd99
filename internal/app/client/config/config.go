package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultEnv           = "local"
	defaultConfigDir     = ".certkeeper"
	defaultDriver        = DriverSQLite
)

// Storage drivers understood by the client.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
	DriverRemote = "remote"
)

// ErrRemoteOffline rejects starting the remote driver offline. Its cache is
// loaded from the server at start, so there is nothing to edit without it.
var ErrRemoteOffline = errors.New("the remote driver cannot start offline; use a local driver with --offline")

type Config struct {
	Env           string
	ConfigDir     string
	StorageDriver string
	// DataPath is the SQLite file or the badger directory.
	DataPath      string
	ServerAddress string
	EnableTLS     bool
	// QueueJournalPath is a badger directory holding the offline queue. Empty
	// keeps the queue in memory, except for the badger driver which shares
	// its database.
	QueueJournalPath string
	Offline          bool
	Autosave         Autosave
	ProbeInterval    time.Duration
}

type Autosave struct {
	Debounce     time.Duration
	SavedDisplay time.Duration
}

// MustLoad reads the client configuration. An explicit env file is loaded
// before the environment; otherwise ./.env is used when present.
func MustLoad(envFile string) *Config {
	cfg, err := Load(envFile)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("CONFIG_DIR", "")
	v.SetDefault("STORAGE_DRIVER", defaultDriver)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("ENABLE_TLS", false)
	v.SetDefault("AUTOSAVE_DEBOUNCE_MS", 600)
	v.SetDefault("AUTOSAVE_SAVED_DISPLAY_MS", 2000)
	v.SetDefault("PROBE_INTERVAL_SECONDS", 15)
	v.SetDefault("OFFLINE", false)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		configDir = filepath.Join(home, defaultConfigDir)
	}

	driver := v.GetString("STORAGE_DRIVER")
	dataPath := v.GetString("DATA_PATH")
	if dataPath == "" {
		switch driver {
		case DriverBadger:
			dataPath = filepath.Join(configDir, "badger")
		default:
			dataPath = filepath.Join(configDir, "certificates.db")
		}
	}

	cfg := &Config{
		Env:              v.GetString("APP_ENV"),
		ConfigDir:        configDir,
		StorageDriver:    driver,
		DataPath:         dataPath,
		ServerAddress:    v.GetString("SERVER_ADDRESS"),
		EnableTLS:        v.GetBool("ENABLE_TLS"),
		QueueJournalPath: v.GetString("QUEUE_JOURNAL_PATH"),
		Offline:          v.GetBool("OFFLINE"),
		Autosave: Autosave{
			Debounce:     time.Duration(v.GetInt("AUTOSAVE_DEBOUNCE_MS")) * time.Millisecond,
			SavedDisplay: time.Duration(v.GetInt("AUTOSAVE_SAVED_DISPLAY_MS")) * time.Millisecond,
		},
		ProbeInterval: time.Duration(v.GetInt("PROBE_INTERVAL_SECONDS")) * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings. The CLI calls it again after applying flags.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverSQLite, DriverBadger, DriverMemory:
	case DriverRemote:
		if c.ServerAddress == "" {
			return fmt.Errorf("SERVER_ADDRESS must be set for the remote driver")
		}
		if c.Offline {
			return ErrRemoteOffline
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Autosave.Debounce <= 0 {
		return fmt.Errorf("AUTOSAVE_DEBOUNCE_MS must be positive")
	}
	if c.Autosave.SavedDisplay < 0 {
		return fmt.Errorf("AUTOSAVE_SAVED_DISPLAY_MS must not be negative")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("PROBE_INTERVAL_SECONDS must be positive")
	}
	return nil
}

// EnsureDirs creates the directories the local storage lives in.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.ConfigDir}
	switch c.StorageDriver {
	case DriverSQLite:
		dirs = append(dirs, filepath.Dir(c.DataPath))
	case DriverBadger:
		dirs = append(dirs, c.DataPath)
	}
	if c.QueueJournalPath != "" {
		dirs = append(dirs, c.QueueJournalPath)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
