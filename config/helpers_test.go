// ABOUTME: Test helpers for config tests
// ABOUTME: Provides utilities for environment variable management

package config

import (
	"os"
	"strings"
	"testing"
)

// withCleanOSEnv clears the environment, sets required OpenStack env vars to
// test values, and returns a cleanup function that restores the original env.
// Use with t.Cleanup().
func withCleanOSEnv(t *testing.T) func() {
	t.Helper()
	return withCleanOSEnvAndExtra(t, nil)
}

// withCleanOSEnvAndExtra clears the environment, sets required OpenStack env
// vars plus additional vars, and returns a cleanup function that restores the
// original env. Use with t.Cleanup().
func withCleanOSEnvAndExtra(t *testing.T, extra map[string]string) func() {
	t.Helper()

	// Save entire environment
	originalEnv := os.Environ()

	// Clear environment for clean slate
	os.Clearenv()

	// Set required OpenStack test values
	os.Setenv("OS_AUTH_URL", "https://keystone.test.com/v3")
	os.Setenv("OS_USERNAME", "exporter")
	os.Setenv("OS_PASSWORD", "secret")
	os.Setenv("OS_PROJECT_NAME", "monitoring")

	for key, value := range extra {
		os.Setenv(key, value)
	}

	return func() {
		os.Clearenv()
		for _, kv := range originalEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}
}
