package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
)

const validProperties = `# comment
server_url = https://cloud.example.com/remote.php/dav/files/alice
username = alice
password = s3cret
remote_directory_path = /Backup/Photos
local_directory_path = /data/photos
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Properties(t *testing.T) {
	keyring.MockInit()
	path := writeConfig(t, DefaultConfigFile, validProperties)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://cloud.example.com/remote.php/dav/files/alice", cfg.ServerURL)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, "/Backup/Photos", cfg.RemoteDirectoryPath)
	assert.Equal(t, filepath.Clean("/data/photos"), cfg.LocalDirectoryPath)
	assert.Equal(t, path, cfg.Path)

	// defaults
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultUploadTimeout, cfg.UploadTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.StateDir)
}

func TestLoad_OptionalKeys(t *testing.T) {
	keyring.MockInit()
	path := writeConfig(t, DefaultConfigFile, validProperties+`
concurrency = 8
request_timeout = 90s
upload_timeout = 1h
insecure_skip_verify = true
log_level = debug
log_format = json
state_dir = /var/lib/davpush
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.UploadTimeout)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Clean("/var/lib/davpush"), cfg.StateDir)
}

func TestLoad_ValuesKeepHashAndEquals(t *testing.T) {
	keyring.MockInit()
	content := strings.Replace(validProperties, "password = s3cret", "password = abc#123=x $y", 1)
	path := writeConfig(t, DefaultConfigFile, content+"  # indented comment\n\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc#123=x $y", cfg.Password)
	assert.Equal(t, "/Backup/Photos", cfg.RemoteDirectoryPath)
}

func TestLoad_PropertiesWithoutEquals(t *testing.T) {
	path := writeConfig(t, DefaultConfigFile, validProperties+"concurrency 8\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "line 7")
}

func TestParseProperties(t *testing.T) {
	values, err := parseProperties(strings.NewReader("# c\nServer_URL = http://h/a=b#c\n\nempty =\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"server_url": "http://h/a=b#c",
		"empty":      "",
	}, values)
}

func TestLoad_YAML(t *testing.T) {
	keyring.MockInit()
	path := writeConfig(t, "davpush.yaml", `
server_url: https://dav.example.com/dav
username: bob
password: hunter2
remote_directory_path: Backup
local_directory_path: /home/bob/docs
concurrency: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestLoad_MissingWritesTemplate(t *testing.T) {
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Path)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "server_url = ")
	assert.Contains(t, string(data), "local_directory_path = ")

	// the template itself is not a usable config
	_, err = Load(path)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestLoad_MissingKeys(t *testing.T) {
	keyring.MockInit()
	path := writeConfig(t, DefaultConfigFile, "server_url = https://dav.example.com\nusername = alice\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "password")
	assert.Contains(t, err.Error(), "remote_directory_path")
	assert.Contains(t, err.Error(), "local_directory_path")
}

func TestLoad_EnvOverrides(t *testing.T) {
	keyring.MockInit()
	t.Setenv("DAVPUSH_PASSWORD", "from-env")
	t.Setenv("DAVPUSH_CONCURRENCY", "16")
	path := writeConfig(t, DefaultConfigFile, validProperties)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, 16, cfg.Concurrency)
}

func TestLoad_DotEnv(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	// registered so the value loaded from .env is removed afterwards
	t.Setenv("DAVPUSH_LOG_LEVEL", "")
	os.Unsetenv("DAVPUSH_LOG_LEVEL")

	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("DAVPUSH_LOG_LEVEL=warn\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(validProperties), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_PasswordFromKeyring(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, SetPassword("alice", "from-keyring"))

	content := strings.Replace(validProperties, "password = s3cret", "password =", 1)
	path := writeConfig(t, DefaultConfigFile, content)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.Password)

	require.NoError(t, DeletePassword("alice"))
	_, err = Load(path)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, "davpush.yaml", "server_url: [unclosed\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestLoadFromString(t *testing.T) {
	keyring.MockInit()
	cfg, err := LoadFromString(`{
		"server_url": "http://localhost:8080/dav",
		"username": "u",
		"password": "p",
		"remote_directory_path": "/",
		"local_directory_path": "/tmp/src"
	}`, "json")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/dav", cfg.ServerURL)

	_, err = LoadFromString("not json", "json")
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ServerURL:           "https://dav.example.com/dav",
			Username:            "alice",
			Password:            "s3cret",
			RemoteDirectoryPath: "Backup",
			LocalDirectoryPath:  "/data",
			Concurrency:         4,
			RequestTimeout:      time.Minute,
			UploadTimeout:       time.Hour,
			LogLevel:            "info",
			LogFormat:           "text",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"ftp scheme", func(c *Config) { c.ServerURL = "ftp://dav.example.com" }, true},
		{"no host", func(c *Config) { c.ServerURL = "https:///dav" }, true},
		{"credentials in url", func(c *Config) { c.ServerURL = "https://a:b@dav.example.com" }, true},
		{"blank username", func(c *Config) { c.Username = "  " }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero upload timeout", func(c *Config) { c.UploadTimeout = 0 }, true},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"warning level", func(c *Config) { c.LogLevel = "WARNING" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfigInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEndpointAndLoggerConfig(t *testing.T) {
	cfg := Config{
		ServerURL:           "https://dav.example.com/dav",
		Username:            "alice",
		Password:            "s3cret",
		RemoteDirectoryPath: "Backup",
		LogLevel:            "debug",
		LogFormat:           "json",
		LogFile:             "/tmp/davpush.log",
	}

	ep := cfg.Endpoint()
	assert.Equal(t, domain.RemoteEndpoint{
		ServerURL: "https://dav.example.com/dav",
		Username:  "alice",
		Password:  "s3cret",
		RootPath:  "Backup",
	}, ep)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logger.LevelDebug, lc.Level)
	assert.Equal(t, logger.FormatJSON, lc.Format)
	assert.True(t, lc.File.Enabled)
	assert.Equal(t, "/tmp/davpush.log", lc.File.Path)
}

func TestWriteTemplate(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "nested", DefaultConfigFile)
	require.NoError(t, WriteTemplate(path, false))

	err := WriteTemplate(path, false)
	assert.ErrorIs(t, err, os.ErrExist)
	assert.NoError(t, WriteTemplate(path, true))

	yamlPath := filepath.Join(dir, "davpush.yml")
	require.NoError(t, WriteTemplate(yamlPath, false))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server_url: ")

	assert.Error(t, WriteTemplate(filepath.Join(dir, "davpush.toml"), false))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "photos"), ExpandPath("~/photos"))
	assert.Equal(t, "", ExpandPath(""))

	t.Setenv("DAVPUSH_TEST_DIR", "/srv/data")
	assert.Equal(t, filepath.Clean("/srv/data/x"), ExpandPath("$DAVPUSH_TEST_DIR/x"))
}
