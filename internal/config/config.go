// Package config loads pilot settings from defaults, a TOML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultDir         = ".pilot"
	DefaultConfigFile  = "pilot.toml"
	DefaultDBPath      = ".pilot/pilot.db"
	DefaultLogFile     = ".pilot/pilot.log"
	DefaultWebAddr     = "localhost:8000"
	DefaultShareOrigin = "http://localhost:8000"
)

type SlotBackend string

const (
	SlotSQLite SlotBackend = "sqlite"
	SlotRedis  SlotBackend = "redis"
	SlotMemory SlotBackend = "memory"
)

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Log struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	File      string `toml:"file"`
	Timestamp bool   `toml:"timestamp"`
}

type Reminders struct {
	Interval          Duration    `toml:"interval"`
	Backend           SlotBackend `toml:"backend"`
	DBPath            string      `toml:"db_path"`
	RedisAddr         string      `toml:"redis_addr"`
	RedisPrefix       string      `toml:"redis_prefix"`
	RearmOnReschedule bool        `toml:"rearm_on_reschedule"`
}

type Notifications struct {
	// Permission is the starting state: default, granted or denied.
	Permission string `toml:"permission"`
	// OnRequest is how a headless request resolves from the default state.
	OnRequest string `toml:"on_request"`
}

type Suggest struct {
	APIKey    string   `toml:"api_key"`
	Endpoint  string   `toml:"endpoint"`
	Model     string   `toml:"model"`
	Timeout   Duration `toml:"timeout"`
	MockDelay Duration `toml:"mock_delay"`
}

type Share struct {
	Origin string `toml:"origin"`
	Path   string `toml:"path"`
}

type Web struct {
	Addr string `toml:"addr"`
}

type Config struct {
	Log           Log           `toml:"log"`
	Reminders     Reminders     `toml:"reminders"`
	Notifications Notifications `toml:"notifications"`
	Suggest       Suggest       `toml:"suggest"`
	Share         Share         `toml:"share"`
	Web           Web           `toml:"web"`

	// File is the config file that was read, if any.
	File string `toml:"-"`
}

func Defaults() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "text", File: DefaultLogFile},
		Reminders: Reminders{
			Interval:    Duration{30 * time.Second},
			Backend:     SlotSQLite,
			DBPath:      DefaultDBPath,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "pilot:",
		},
		Notifications: Notifications{Permission: "default", OnRequest: "granted"},
		Suggest: Suggest{
			Model:     "gemini-2.5-flash",
			Timeout:   Duration{20 * time.Second},
			MockDelay: Duration{time.Second},
		},
		Share: Share{Origin: DefaultShareOrigin, Path: "/"},
		Web:   Web{Addr: DefaultWebAddr},
	}
}

// Load reads the config for the current directory, then registers the common
// flags on fs and parses args. Callers may register their own flags on fs
// beforehand.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("PILOT_CONFIG")
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if fs != nil {
		registerFlags(fs, cfg)
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("parsing flags: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	cfg.File = path
	return nil
}

func findConfigFile() string {
	for _, p := range []string{DefaultConfigFile, filepath.Join(DefaultDir, DefaultConfigFile)} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PILOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PILOT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PILOT_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("PILOT_DB_PATH"); v != "" {
		cfg.Reminders.DBPath = v
	}
	if v := os.Getenv("PILOT_SLOT_BACKEND"); v != "" {
		cfg.Reminders.Backend = SlotBackend(v)
	}
	if v := os.Getenv("PILOT_REDIS_ADDR"); v != "" {
		cfg.Reminders.RedisAddr = v
	}
	if v := os.Getenv("PILOT_NOTIFICATIONS"); v != "" {
		cfg.Notifications.Permission = v
	}
	if v := os.Getenv("PILOT_WEB_ADDR"); v != "" {
		cfg.Web.Addr = v
	}
	if v := os.Getenv("PILOT_SHARE_ORIGIN"); v != "" {
		cfg.Share.Origin = v
	}

	// GEMINI_API_KEY wins over the generic API_KEY.
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Suggest.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Suggest.APIKey = v
	}
}

// registerFlags binds the common overrides to cfg fields, so flag defaults
// are whatever the file and environment produced.
func registerFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format (text, json, logfmt)")
	fs.StringVar(&cfg.Reminders.DBPath, "db-path", cfg.Reminders.DBPath, "Path to the reminder database")
	fs.Func("slot-backend", "Fired-reminder storage (sqlite, redis, memory)", func(s string) error {
		cfg.Reminders.Backend = SlotBackend(s)
		return nil
	})
	fs.StringVar(&cfg.Reminders.RedisAddr, "redis-addr", cfg.Reminders.RedisAddr, "Redis address for the redis backend")
	fs.DurationVar(&cfg.Reminders.Interval.Duration, "interval", cfg.Reminders.Interval.Duration, "Reminder poll interval")
	fs.StringVar(&cfg.Notifications.Permission, "notifications", cfg.Notifications.Permission, "Notification permission (default, granted, denied)")
	fs.StringVar(&cfg.Web.Addr, "addr", cfg.Web.Addr, "Address for the web server")
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Reminders.Backend {
	case SlotSQLite, SlotRedis, SlotMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown slot backend %q", c.Reminders.Backend))
	}
	if c.Reminders.Interval.Duration <= 0 {
		errs = append(errs, errors.New("reminder interval must be positive"))
	}
	switch c.Notifications.Permission {
	case "default", "granted", "denied":
	default:
		errs = append(errs, fmt.Errorf("invalid notification permission %q", c.Notifications.Permission))
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if c.Suggest.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("suggest timeout must be positive"))
	}
	return errors.Join(errs...)
}
