package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
)

const (
	// DefaultConfigFile is read from the working directory when no path is given
	DefaultConfigFile = "davpush.config"

	// EnvPrefix prefixes environment overrides, e.g. DAVPUSH_PASSWORD
	EnvPrefix = "DAVPUSH"

	// DotEnvFile is loaded into the environment before reading the config
	DotEnvFile = ".env"
)

// Load reads and validates a configuration file.
// If path is empty, DefaultConfigFile is used. A missing file is replaced
// by a template and reported as a *domain.ConfigurationError wrapping
// domain.ErrConfigNotFound.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	path = ExpandPath(path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if werr := WriteTemplate(path, false); werr != nil {
			return nil, &domain.ConfigurationError{Path: path, Err: fmt.Errorf("%w (writing template: %v)", domain.ErrConfigNotFound, werr)}
		}
		return nil, &domain.ConfigurationError{
			Path: path,
			Err:  fmt.Errorf("%w: a template was written, fill it in and run again", domain.ErrConfigNotFound),
		}
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, &domain.ConfigurationError{Path: DotEnvFile, Err: fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)}
	}

	v := newViper()
	if err := readFile(v, path); err != nil {
		return nil, &domain.ConfigurationError{Path: path, Err: fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, &domain.ConfigurationError{Path: path, Err: err}
	}
	cfg.Path = path

	return cfg, nil
}

// LoadFromString parses configuration from a string of the given type
// ("properties", "yaml", "json" or "toml"). Environment overrides and the
// keyring still apply.
func LoadFromString(content, configType string) (*Config, error) {
	v := newViper()

	var err error
	if configType == propertiesType {
		err = readProperties(v, strings.NewReader(content))
	} else {
		v.SetConfigType(configType)
		err = v.ReadConfig(strings.NewReader(content))
	}
	if err != nil {
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, &domain.ConfigurationError{Err: err}
	}
	return cfg, nil
}

// readFile reads path into v with the codec its extension selects
func readFile(v *viper.Viper, path string) error {
	kind := configType(path)
	if kind != propertiesType {
		v.SetConfigFile(path)
		v.SetConfigType(kind)
		return v.ReadInConfig()
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return readProperties(v, f)
}

func newViper() *viper.Viper {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can override it
	v.SetDefault("server_url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("remote_directory_path", "")
	v.SetDefault("local_directory_path", "")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("upload_timeout", DefaultUploadTimeout)
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("log_file", "")
	v.SetDefault("state_dir", "")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.ServerURL = strings.TrimSpace(cfg.ServerURL)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.LocalDirectoryPath = ExpandPath(strings.TrimSpace(cfg.LocalDirectoryPath))
	cfg.LogFile = ExpandPath(cfg.LogFile)
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	cfg.StateDir = ExpandPath(cfg.StateDir)

	if cfg.Password == "" && cfg.Username != "" {
		cfg.Password = lookupPassword(cfg.Username)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// lookupPassword consults the OS keyring. An unavailable keyring is
// treated like a missing entry and left for validation to report.
func lookupPassword(username string) string {
	password, err := keyring.Get(KeyringService, username)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			logger.Get().Debug("keyring lookup failed", "username", username, "error", err)
		}
		return ""
	}
	return password
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// Existing environment variables win over .env entries
	return godotenv.Load(path)
}

// configType picks the codec from the file extension.
// Anything else is read as key = value lines.
func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return propertiesType
	}
}
