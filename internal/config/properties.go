package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
)

// propertiesType names the key = value format of davpush.config
const propertiesType = "properties"

// parseProperties reads key = value lines. Blank lines and lines starting
// with # are skipped; everything after the first = is the value, so a
// value may itself contain # or =.
func parseProperties(r io.Reader) (map[string]any, error) {
	values := make(map[string]any)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: expected key = value", lineNo)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", lineNo)
		}
		values[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

// readProperties merges key = value content into v.
// Empty values are skipped so defaults, env and keyring still apply.
func readProperties(v *viper.Viper, r io.Reader) error {
	values, err := parseProperties(r)
	if err != nil {
		return err
	}
	for k, val := range values {
		if val == "" {
			delete(values, k)
		}
	}
	return v.MergeConfigMap(values)
}
