package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
)

// Defaults for optional keys
const (
	DefaultConcurrency    = 4
	DefaultRequestTimeout = 60 * time.Second
	DefaultUploadTimeout  = 30 * time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config represents the complete configuration for davpush
type Config struct {
	// Remote endpoint
	ServerURL           string `mapstructure:"server_url"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	RemoteDirectoryPath string `mapstructure:"remote_directory_path"`

	// Local tree to push
	LocalDirectoryPath string `mapstructure:"local_directory_path"`

	// Tuning
	Concurrency        int           `mapstructure:"concurrency"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	UploadTimeout      time.Duration `mapstructure:"upload_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// StateDir holds the run lock and run history
	StateDir string `mapstructure:"state_dir"`

	// Path is the file the configuration was read from
	Path string `mapstructure:"-"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"server_url", c.ServerURL},
		{"username", c.Username},
		{"password", c.Password},
		{"remote_directory_path", c.RemoteDirectoryPath},
		{"local_directory_path", c.LocalDirectoryPath},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfigInvalid, strings.Join(missing, ", "))
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: server_url: %v", domain.ErrConfigInvalid, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: server_url must be http or https, got %q", domain.ErrConfigInvalid, c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server_url has no host: %q", domain.ErrConfigInvalid, c.ServerURL)
	}
	if u.User != nil {
		return fmt.Errorf("%w: server_url must not embed credentials, use username and password", domain.ErrConfigInvalid)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", domain.ErrConfigInvalid, c.Concurrency)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive, got %v", domain.ErrConfigInvalid, c.RequestTimeout)
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("%w: upload_timeout must be positive, got %v", domain.ErrConfigInvalid, c.UploadTimeout)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", domain.ErrConfigInvalid, c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: invalid log_level %q", domain.ErrConfigInvalid, c.LogLevel)
	}

	return nil
}

// Endpoint returns the remote endpoint the run talks to
func (c *Config) Endpoint() domain.RemoteEndpoint {
	return domain.RemoteEndpoint{
		ServerURL: c.ServerURL,
		Username:  c.Username,
		Password:  c.Password,
		RootPath:  c.RemoteDirectoryPath,
	}
}

// LoggerConfig builds the logger configuration for this run.
// Logs go to stderr so stdout stays free for reports.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:   logger.ParseLevel(c.LogLevel),
		Format:  logger.ParseFormat(c.LogFormat),
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr}},
		File:    logger.DefaultFileConfig(c.LogFile),
	}
}

// DefaultStateDir returns the per-user directory for lock and history
func DefaultStateDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "davpush")
	}
	return ".davpush"
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
