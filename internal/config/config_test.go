package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points viper away from any homeai.yaml on the machine.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, LocalBaseURL, cfg.API.BaseURL, "local host falls back to the local API")
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "web", cfg.Session.Platform)
	assert.Equal(t, 720*time.Hour, cfg.Session.TokenTTL)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".homeai", "session.json"), cfg.Store.Path)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 8, cfg.Poll.MaxAttempts)
	assert.False(t, cfg.Log.Debug)
	assert.Equal(t, "127.0.0.1:8000", cfg.DevServer.Addr)
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("HOMEAI_API_BASE_URL", "https://api.homeai.test/")
	t.Setenv("HOMEAI_SESSION_PLATFORM", "IOS")
	t.Setenv("HOMEAI_SESSION_USER_ID", "u1")
	t.Setenv("HOMEAI_POLL_MAX_ATTEMPTS", "3")
	t.Setenv("HOMEAI_STORE_KIND", "redis")
	t.Setenv("DEBUG", "true")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "https://api.homeai.test", cfg.API.BaseURL)
	assert.Equal(t, "ios", cfg.Session.Platform)
	assert.Equal(t, "u1", cfg.Session.UserID)
	assert.Equal(t, 3, cfg.Poll.MaxAttempts)
	assert.Equal(t, "redis", cfg.Store.Kind)
	assert.True(t, cfg.Log.Debug)
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://staging.homeai.test
session:
  user_id: designer-7
  platform: android
poll:
  interval: 500ms
store:
  kind: none
`), 0o600))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://staging.homeai.test", cfg.API.BaseURL)
	assert.Equal(t, "designer-7", cfg.Session.UserID)
	assert.Equal(t, "android", cfg.Session.Platform)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "none", cfg.Store.Kind)
}

func TestLoad_SearchPath(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("homeai.yaml", []byte("session:\n  user_id: from-cwd\n"), 0o600))

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "from-cwd", cfg.Session.UserID)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	v := New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown platform",
			env:  map[string]string{"HOMEAI_SESSION_PLATFORM": "windows"},
			want: "config.session.platform",
		},
		{
			name: "unknown store",
			env:  map[string]string{"HOMEAI_STORE_KIND": "s3"},
			want: "config.store.kind",
		},
		{
			name: "zero attempts",
			env:  map[string]string{"HOMEAI_POLL_MAX_ATTEMPTS": "0"},
			want: "config.poll.maxattempts",
		},
		{
			name: "short ttl",
			env:  map[string]string{"HOMEAI_SESSION_TOKEN_TTL": "10m"},
			want: "config.session.tokenttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		host     string
		want     string
	}{
		{name: "explicit wins", explicit: "https://api.homeai.app/", host: "localhost", want: "https://api.homeai.app"},
		{name: "localhost", host: "localhost", want: LocalBaseURL},
		{name: "loopback v4", host: "127.0.0.1", want: LocalBaseURL},
		{name: "loopback v6", host: "::1", want: LocalBaseURL},
		{name: "bracketed v6 with port", host: "[::1]:3000", want: LocalBaseURL},
		{name: "host with port", host: "localhost:5173", want: LocalBaseURL},
		{name: "remote host", host: "app.homeai.app", want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveBaseURL(tt.explicit, tt.host))
		})
	}
}
