// Package config loads hostkeep settings.
//
// Settings are layered, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← applied by the CLI
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← HOSTKEEP_*
//	├─────────────────────────────┤
//	│  2. User Config File        │  ← ~/.config/hostkeep/config.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// A missing config file is not an error.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/hostkeep/internal/logging"
)

// ErrInvalidConfig indicates a setting holds an unusable value.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all settings.
type Config struct {
	// HostsPath is the hosts file to manage.
	HostsPath string `toml:"hosts_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	Watch  WatchConfig  `toml:"watch"`
	Write  WriteConfig  `toml:"write"`
	Backup BackupConfig `toml:"backup"`
}

// WatchConfig configures change detection.
type WatchConfig struct {
	// Debounce is the quiet period before a change is checked.
	Debounce Duration `toml:"debounce"`
}

// WriteConfig configures how the hosts file is written.
type WriteConfig struct {
	// Backup copies the file before every write.
	Backup bool `toml:"backup"`

	// Elevated routes writes through ElevateCommand.
	Elevated bool `toml:"elevated"`

	// ElevateCommand is the privilege prefix, e.g. ["sudo", "-n"]. Empty
	// runs the replace script directly, for callers that are already root.
	ElevateCommand []string `toml:"elevate_command"`
}

// BackupConfig configures backup retention. Zero disables a limit.
type BackupConfig struct {
	MaxCount int      `toml:"max_count"`
	MaxAge   Duration `toml:"max_age"`
}

// Duration is a time.Duration written as a Go duration string ("300ms").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HostsPath: DefaultHostsPath(),
		LogLevel:  "info",
		Watch: WatchConfig{
			Debounce: Duration{300 * time.Millisecond},
		},
		Write: WriteConfig{
			Backup:         true,
			ElevateCommand: []string{"sudo"},
		},
		Backup: BackupConfig{
			MaxCount: 10,
		},
	}
}

// DefaultHostsPath returns the platform's hosts file location.
func DefaultHostsPath() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return filepath.Join(root, "System32", "drivers", "etc", "hosts")
	}
	return "/etc/hosts"
}

// DefaultPath returns the user config file location, or "" when no config
// directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hostkeep", "config.toml")
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HostsPath) == "" {
		errs = append(errs, errors.New("hosts_path is empty"))
	}
	if !validLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Watch.Debounce.Duration <= 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce))
	}
	if c.Backup.MaxCount < 0 {
		errs = append(errs, fmt.Errorf("backup.max_count must not be negative, got %d", c.Backup.MaxCount))
	}
	if c.Backup.MaxAge.Duration < 0 {
		errs = append(errs, fmt.Errorf("backup.max_age must not be negative, got %s", c.Backup.MaxAge))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func validLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Level returns the configured log level.
func (c Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// Encode writes c as TOML.
func Encode(w io.Writer, c Config) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}
