// Package env reads raw environment variables for the few knobs that are
// needed before pkg/config is loaded (log format, injected PORT).
package env

import "os"

// Get returns the variable's value, or fallback when unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
