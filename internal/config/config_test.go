package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendGoogle, cfg.Calendar.Backend)
	assert.Equal(t, 1440, cfg.Calendar.ReminderMinutes)
	assert.Equal(t, filepath.Join(dir, "nested", "google_token.json"), cfg.Calendar.TokenFile)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_FillsDefaultsAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
portal:
  club: killeen
  credentials_file: secrets/brs.json
calendar:
  backend: nonsense
  event_name: Tee Time
  location: Killeen Castle
  ics_path: /var/lib/teesync/tee.ics
refresh: "*/30 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "killeen", cfg.Portal.Club)
	assert.Equal(t, "https://members.brsgolf.com", cfg.Portal.BaseURL)
	assert.Equal(t, filepath.Join(dir, "secrets", "brs.json"), cfg.Portal.CredentialsFile)
	assert.Equal(t, BackendGoogle, cfg.Calendar.Backend)
	assert.Equal(t, "Tee Time", cfg.Calendar.EventName)
	assert.Equal(t, "/var/lib/teesync/tee.ics", cfg.Calendar.ICSPath)
	assert.Equal(t, "Europe/Dublin", cfg.Calendar.Timezone)
	assert.Equal(t, 20, cfg.Calendar.MaxResults)
	assert.Equal(t, "*/30 * * * *", cfg.Refresh)
	assert.Equal(t, 60, cfg.Browser.TimeoutSeconds)
	assert.True(t, cfg.Browser.Headless)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("portal: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "club is required")

	cfg.Portal.Club = "killeen"
	assert.NoError(t, cfg.Validate())

	cfg.Calendar.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg.Calendar.Timezone = "UTC"
	cfg.Calendar.Backend = BackendICS
	cfg.Calendar.ICSPath = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Portal.Club = "killeen"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "killeen", loaded.Portal.Club)
	require.NotNil(t, loaded.BasicAuth)
	assert.Equal(t, "admin", loaded.BasicAuth.Username)
}

func TestLoadPortalCredentials(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"username":"member","password":"pw"}`), 0o600))
	creds, err := LoadPortalCredentials(good)
	require.NoError(t, err)
	assert.Equal(t, PortalCredentials{Username: "member", Password: "pw"}, creds)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"username":"member"}`), 0o600))
	_, err = LoadPortalCredentials(empty)
	assert.Error(t, err)

	_, err = LoadPortalCredentials(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
