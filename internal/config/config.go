package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root configuration for btt, stored in ~/.btt/config.json.
// The file supports single-line // comments for documentation purposes.
// Every key can be overridden from the environment as BTT_<SECTION>_<KEY>,
// e.g. BTT_STORAGE_DRIVER=sqlite.
type Config struct {
	Tracker TrackerConfig `mapstructure:"tracker"`
	Storage StorageConfig `mapstructure:"storage"`
	Prefs   PrefsConfig   `mapstructure:"prefs"`
	Log     LogConfig     `mapstructure:"log"`
	Outlook OutlookConfig `mapstructure:"outlook"`

	// Path is the file the configuration was read from.
	Path string `mapstructure:"-"`
}

// TrackerConfig holds defaults for the tracking commands.
type TrackerConfig struct {
	// OwnerID tags every record written by this install.
	OwnerID string `mapstructure:"owner_id"`
	// Timezone is the IANA zone calendar dates are interpreted in. Empty = UTC.
	Timezone string `mapstructure:"timezone"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	// Driver is one of "json", "sqlite" or "postgres".
	Driver      string `mapstructure:"driver"`
	Dir         string `mapstructure:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// PrefsConfig locates the encrypted preferences store.
type PrefsConfig struct {
	Path    string `mapstructure:"path"`
	Encrypt bool   `mapstructure:"encrypt"`
}

// LogConfig controls diagnostic output on stderr.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// OutlookConfig holds Microsoft Graph / Outlook calendar sync settings.
type OutlookConfig struct {
	// TenantID is the Azure AD tenant. Use "common" for personal/multi-tenant accounts.
	TenantID string `mapstructure:"tenant_id"`
	// ClientID is the Azure app (client) ID for the OAuth2 device code flow.
	ClientID string `mapstructure:"client_id"`
	// DefaultProject is the project assigned to imported Outlook events.
	DefaultProject string `mapstructure:"default_project"`
	// Timezone is the IANA timezone for event times (e.g. "Europe/Berlin"). Empty = UTC.
	Timezone string `mapstructure:"timezone"`
}

const (
	// DefaultOwnerID identifies records of a single-user install.
	DefaultOwnerID = "local"
	// DefaultTenantID is the Microsoft "common" tenant (supports personal and
	// multi-tenant organisational accounts without additional registration).
	DefaultTenantID = "common"
	// DefaultClientID is the well-known public Azure CLI app ID.
	// It supports device code flow without a client secret and requires no
	// app registration. Replace with your own registered app ID for
	// organisational or production deployments.
	DefaultClientID = "04b07795-8542-4c4a-95af-30b2c573d5ab"
	// DefaultProject is the project used for imported events when none is specified.
	DefaultProject = "Meetings"
)

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing,
// allowing human-readable documentation inside the file.
const configTemplate = `// btt configuration – ~/.btt/config.json
//
// All settings are optional; the built-in defaults shown below work out of
// the box. Any key can also be set from the environment, e.g.
// BTT_STORAGE_DRIVER=sqlite or BTT_TRACKER_TIMEZONE=Europe/Berlin.
{
  // ── Tracking ─────────────────────────────────────────────────────────────
  "tracker": {
    // Owner recorded on every entry. Only relevant when several people
    // share one database.
    "owner_id": "local",

    // IANA timezone in which --from/--to dates and weeks are interpreted.
    // Leave empty to use UTC. Can be overridden with: btt list --tz <tz>
    "timezone": ""
  },

  // ── Storage ──────────────────────────────────────────────────────────────
  "storage": {
    // "json"     – one human-readable file per day below "dir" (default)
    // "sqlite"   – a single database file at "sqlite_path"
    // "postgres" – a shared server at "postgres_url"
    "driver": "json",

    // Leave paths empty to keep everything next to this file.
    "dir": "",
    "sqlite_path": "",
    "postgres_url": ""
  },

  // ── Preferences (btt prefs set/get) ──────────────────────────────────────
  "prefs": {
    "path": "",
    // Store preference values AES-GCM encrypted at rest.
    "encrypt": true
  },

  // ── Diagnostics ──────────────────────────────────────────────────────────
  "log": {
    // One of: debug, info, warn, error. --verbose forces debug.
    "level": "info"
  },

  // ── Microsoft Graph / Outlook calendar sync ──────────────────────────────
  "outlook": {
    // Azure AD tenant ID.
    // • "common"  – personal Microsoft accounts and any organisation (default)
    // • Your organisation's tenant GUID, e.g. "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
    "tenant_id": "common",

    // Azure application (client) ID used for the OAuth2 device code flow.
    // The built-in value is the public Azure CLI app – no app registration needed.
    "client_id": "04b07795-8542-4c4a-95af-30b2c573d5ab",

    // Default project assigned to imported Outlook calendar events.
    // Can be overridden per-sync with: btt outlook sync --project <name>
    "default_project": "Meetings",

    // IANA timezone for interpreting calendar event times, e.g. "Europe/Berlin".
    // Leave empty to use UTC. Can be overridden with: btt outlook sync --timezone <tz>
    "timezone": ""
  }
}
`

// DefaultPath returns the path to ~/.btt/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".btt", "config.json"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled; inline comments are not stripped.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("tracker.owner_id", DefaultOwnerID)
	v.SetDefault("tracker.timezone", "")
	v.SetDefault("storage.driver", "json")
	v.SetDefault("storage.dir", filepath.Join(dir, "data"))
	v.SetDefault("storage.sqlite_path", filepath.Join(dir, "btt.db"))
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("prefs.path", filepath.Join(dir, "prefs.json"))
	v.SetDefault("prefs.encrypt", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("outlook.tenant_id", DefaultTenantID)
	v.SetDefault("outlook.client_id", DefaultClientID)
	v.SetDefault("outlook.default_project", DefaultProject)
	v.SetDefault("outlook.timezone", "")
}

// Load reads ~/.btt/config.json, creating it with annotated defaults on first
// run.
func Load() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, creating it from the annotated template
// if it does not exist. Lines starting with // are stripped before JSON
// parsing. Empty values fall back to defaults relative to path's directory.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			logrus.WithError(writeErr).WithField("path", path).Warn("could not create config file")
		}
		data = []byte(configTemplate)
	} else if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v, dir)
	v.SetEnvPrefix("BTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(stripLineComments(data))); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	cfg.Path = path

	// Fill empty values with built-in defaults so callers always get a usable
	// Config even if the user blanks out a key.
	fill := func(field *string, def string) {
		if strings.TrimSpace(*field) == "" {
			*field = def
		}
	}
	fill(&cfg.Tracker.OwnerID, DefaultOwnerID)
	fill(&cfg.Storage.Driver, "json")
	fill(&cfg.Storage.Dir, filepath.Join(dir, "data"))
	fill(&cfg.Storage.SQLitePath, filepath.Join(dir, "btt.db"))
	fill(&cfg.Prefs.Path, filepath.Join(dir, "prefs.json"))
	fill(&cfg.Log.Level, "info")
	fill(&cfg.Outlook.TenantID, DefaultTenantID)
	fill(&cfg.Outlook.ClientID, DefaultClientID)
	fill(&cfg.Outlook.DefaultProject, DefaultProject)

	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	cfg.Storage.SQLitePath = expandHome(cfg.Storage.SQLitePath)
	cfg.Prefs.Path = expandHome(cfg.Prefs.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "json", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver %q: want json, sqlite or postgres", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("storage.postgres_url is required for the postgres driver")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
