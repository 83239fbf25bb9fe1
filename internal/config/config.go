package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendICS    = "ics"
)

const (
	defaultPortalURL       = "https://members.brsgolf.com"
	defaultEventName       = "Golf"
	defaultTimezone        = "Europe/Dublin"
	defaultRefresh         = "0 */6 * * *"
	defaultListen          = "127.0.0.1:8080"
	defaultReminderMinutes = 1440
	defaultMaxResults      = 20
	defaultBrowserTimeout  = 60
)

// PortalConfig points at the club's booking portal.
type PortalConfig struct {
	// BaseURL is the portal root, e.g. "https://members.brsgolf.com".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Club is the club slug in portal URLs, e.g. "killeen".
	Club string `yaml:"club" json:"club"`
	// CredentialsFile is a JSON file holding {"username", "password"}.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// BrowserConfig controls the headless Chromium used to scrape the portal.
type BrowserConfig struct {
	// ExecPath overrides Chromium auto-detection when set.
	ExecPath string `yaml:"exec_path" json:"exec_path"`
	Headless bool   `yaml:"headless" json:"headless"`
	// TimeoutSeconds bounds one login + scrape sequence.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// CalendarConfig describes where managed events live.
type CalendarConfig struct {
	// Backend is "google" (default) or "ics".
	Backend string `yaml:"backend" json:"backend"`

	// Name is the Google calendar summary to sync into. Empty means primary.
	Name string `yaml:"name" json:"name"`

	// EventName is the title of managed events. Only events with exactly
	// this summary are ever deleted.
	EventName string `yaml:"event_name" json:"event_name"`
	Location  string `yaml:"location" json:"location"`

	// Timezone is the IANA zone bookings are read in and events are written in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CredentialsFile is the Google OAuth client JSON; TokenFile caches the
	// user token obtained on first run.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	TokenFile       string `yaml:"token_file" json:"token_file"`

	// ICSPath is the calendar file used by the "ics" backend.
	ICSPath string `yaml:"ics_path" json:"ics_path"`

	ReminderMinutes int `yaml:"reminder_minutes" json:"reminder_minutes"`
	// MaxResults is the page size used when listing upcoming events.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Portal   PortalConfig   `yaml:"portal" json:"portal"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// Refresh is a cron expression (e.g. "0 */6 * * *") for daemon mode.
	Refresh string `yaml:"refresh" json:"refresh"`

	// Listen is the status server address in daemon mode.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects every status endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// PortalCredentials are the member login for the booking portal.
type PortalCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:         defaultPortalURL,
			CredentialsFile: "brs_credentials.json",
		},
		Browser: BrowserConfig{
			Headless:       true,
			TimeoutSeconds: defaultBrowserTimeout,
		},
		Calendar: CalendarConfig{
			Backend:         BackendGoogle,
			EventName:       defaultEventName,
			Timezone:        defaultTimezone,
			CredentialsFile: "google_credentials.json",
			TokenFile:       "google_token.json",
			ICSPath:         "teetimes.ics",
			ReminderMinutes: defaultReminderMinutes,
			MaxResults:      defaultMaxResults,
		},
		Refresh:  defaultRefresh,
		Listen:   defaultListen,
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = defaultPortalURL
	}
	if c.Browser.TimeoutSeconds <= 0 {
		c.Browser.TimeoutSeconds = defaultBrowserTimeout
	}
	switch c.Calendar.Backend {
	case BackendGoogle, BackendICS:
	default:
		c.Calendar.Backend = BackendGoogle
	}
	if c.Calendar.EventName == "" {
		c.Calendar.EventName = defaultEventName
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = defaultTimezone
	}
	if c.Calendar.ReminderMinutes <= 0 {
		c.Calendar.ReminderMinutes = defaultReminderMinutes
	}
	if c.Calendar.MaxResults <= 0 {
		c.Calendar.MaxResults = defaultMaxResults
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports settings a run cannot start without.
func (c *Config) Validate() error {
	if c.Portal.Club == "" {
		return errors.New("config: portal.club is required")
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("config: calendar.timezone %q: %w", c.Calendar.Timezone, err)
	}
	if c.Calendar.Backend == BackendICS && c.Calendar.ICSPath == "" {
		return errors.New("config: calendar.ics_path is required for the ics backend")
	}
	return nil
}

// BrowserTimeout returns Browser.TimeoutSeconds as a duration.
func (c *Config) BrowserTimeout() time.Duration {
	return time.Duration(c.Browser.TimeoutSeconds) * time.Second
}

// Location resolves Calendar.Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (parent directory created) and returned.
//   - Otherwise the YAML is unmarshalled and defaults are filled in.
//
// Relative file paths in the config are resolved against the config's
// directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.resolvePaths(filepath.Dir(path))
			return cfg, nil
		}
		return nil, err
	}

	// Start from defaults so keys missing from the file keep their default
	// (notably browser.headless, which has no usable zero value).
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.resolvePaths(filepath.Dir(path))

	return cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{
		&c.Portal.CredentialsFile,
		&c.Calendar.CredentialsFile,
		&c.Calendar.TokenFile,
		&c.Calendar.ICSPath,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".teesync-config-*.tmp")
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// and a rename, leaving the file with 0600 permissions.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadPortalCredentials reads the portal login from a JSON file.
func LoadPortalCredentials(path string) (PortalCredentials, error) {
	var creds PortalCredentials
	data, err := os.ReadFile(path)
	if err != nil {
		return creds, fmt.Errorf("config: read portal credentials: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("config: parse portal credentials %s: %w", path, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return creds, fmt.Errorf("config: portal credentials %s: username and password are required", path)
	}
	return creds, nil
}
