package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const propertiesTemplate = `# davpush configuration
# Full URL of your WebDAV server
server_url = https://your-server/remote.php/dav/files/your-username

# Your WebDAV user name
username = your-username

# Your password. Leave empty to read it from the OS keyring
# (davpush keyring set) or from DAVPUSH_PASSWORD
password =

# Remote root directory, relative to server_url
remote_directory_path = /path/on/server

# Local directory whose contents are pushed
local_directory_path = /path/to/local/directory

# Optional settings
# concurrency = 4
# request_timeout = 60s
# upload_timeout = 30m
# insecure_skip_verify = false
# log_level = info
# log_format = text
# log_file = ~/.davpush/davpush.log
# state_dir = ~/.config/davpush
`

const yamlTemplate = `# davpush configuration
server_url: https://your-server/remote.php/dav/files/your-username
username: your-username
# leave empty to use the OS keyring or DAVPUSH_PASSWORD
password: ""
remote_directory_path: /path/on/server
local_directory_path: /path/to/local/directory

# concurrency: 4
# request_timeout: 60s
# upload_timeout: 30m
# log_level: info
# log_format: text
`

// Template returns the template for the format implied by path
func Template(path string) (string, error) {
	switch configType(path) {
	case propertiesType:
		return propertiesTemplate, nil
	case "yaml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("no template for %s files", filepath.Ext(path))
	}
}

// WriteTemplate writes a configuration template to path.
// An existing file is only replaced when force is set.
func WriteTemplate(path string, force bool) error {
	content, err := Template(path)
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists: %w", path, os.ErrExist)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// The file may end up holding a password
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}
