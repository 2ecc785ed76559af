package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/hostkeep/internal/vfs"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOSTKEEP_"

// EnvConfigPath names the variable that overrides the config file location.
const EnvConfigPath = EnvPrefix + "CONFIG"

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Line is the line number where the error occurred (if available).
	Line int
	// Column is the column number where the error occurred (if available).
	Column int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// EnvError reports an environment variable that could not be applied.
type EnvError struct {
	Name  string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *EnvError) Error() string {
	return fmt.Sprintf("environment %s=%q: %v", e.Name, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *EnvError) Unwrap() error {
	return e.Err
}

// Loader reads configuration from a file and the environment.
type Loader struct {
	fs        vfs.FS
	lookupEnv func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFS sets the file system the config file is read from.
func WithFS(fsys vfs.FS) LoaderOption {
	return func(l *Loader) {
		l.fs = fsys
	}
}

// WithLookupEnv sets the environment lookup function.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = fn
	}
}

// NewLoader creates a Loader backed by the OS.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		fs:        vfs.NewOSFS(),
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load is shorthand for NewLoader().Load(path).
func Load(path string) (Config, error) {
	return NewLoader().Load(path)
}

// Path returns the config file to read: explicit if set, then
// HOSTKEEP_CONFIG, then DefaultPath.
func (l *Loader) Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p, ok := l.lookupEnv(EnvConfigPath); ok && p != "" {
		return p
	}
	return DefaultPath()
}

// Load builds the configuration from defaults, the file at path (see Path)
// and HOSTKEEP_* overrides, then validates it.
func (l *Loader) Load(path string) (Config, error) {
	cfg := Default()

	if err := l.loadFile(l.Path(path), &cfg); err != nil {
		return Config{}, err
	}
	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes path over cfg. A missing file leaves cfg unchanged.
func (l *Loader) loadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		perr := &ParseError{Path: path, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

// envSetter applies one environment value to cfg.
type envSetter func(cfg *Config, value string) error

// envMapping maps HOSTKEEP_* variables onto settings.
var envMapping = map[string]envSetter{
	"HOSTS_PATH": func(c *Config, v string) error {
		c.HostsPath = v
		return nil
	},
	"LOG_LEVEL": func(c *Config, v string) error {
		c.LogLevel = v
		return nil
	},
	"WATCH_DEBOUNCE": func(c *Config, v string) error {
		return c.Watch.Debounce.UnmarshalText([]byte(v))
	},
	"WRITE_BACKUP": func(c *Config, v string) error {
		return setBool(&c.Write.Backup, v)
	},
	"WRITE_ELEVATED": func(c *Config, v string) error {
		return setBool(&c.Write.Elevated, v)
	},
	"WRITE_ELEVATE_COMMAND": func(c *Config, v string) error {
		c.Write.ElevateCommand = strings.Fields(v)
		return nil
	},
	"BACKUP_MAX_COUNT": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Backup.MaxCount = n
		return nil
	},
	"BACKUP_MAX_AGE": func(c *Config, v string) error {
		return c.Backup.MaxAge.UnmarshalText([]byte(v))
	},
}

// applyEnv applies every set HOSTKEEP_* override. Empty values count as set.
func (l *Loader) applyEnv(cfg *Config) error {
	for suffix, set := range envMapping {
		name := EnvPrefix + suffix
		value, ok := l.lookupEnv(name)
		if !ok {
			continue
		}
		if err := set(cfg, value); err != nil {
			return &EnvError{Name: name, Value: value, Err: err}
		}
	}
	return nil
}

// setBool parses the boolean spellings accepted in the environment.
func setBool(dst *bool, s string) error {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		*dst = true
	case "false", "no", "off", "0":
		*dst = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}
