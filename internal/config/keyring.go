package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service passwords are stored under
const KeyringService = "davpush"

// SetPassword stores the password for username in the OS keyring
func SetPassword(username, password string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if err := keyring.Set(KeyringService, username, password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// DeletePassword removes the stored password for username
func DeletePassword(username string) error {
	if err := keyring.Delete(KeyringService, username); err != nil {
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}
