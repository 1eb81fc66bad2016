package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// CreateTestFile creates a test file with the given content,
// creating parent directories as needed
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// BuildTree creates a tree under dir. Entries ending in "/" become
// directories, all others become files holding the mapped content.
func BuildTree(t *testing.T, dir string, entries map[string]string) {
	t.Helper()

	for name, content := range entries {
		if strings.HasSuffix(name, "/") {
			path := filepath.Join(dir, filepath.FromSlash(strings.TrimSuffix(name, "/")))
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatalf("failed to create dir %s: %v", name, err)
			}
			continue
		}
		CreateTestFile(t, dir, name, []byte(content))
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}
