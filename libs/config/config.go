// Package config reads service settings from the environment. Unset and blank variables
// both mean "use the default"; malformed optional values fall back as well, while required
// ones fail loudly at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func String(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

func RequiredString(key string) (string, error) {
	v, ok := lookup(key)
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// Port validates a TCP port number and returns it as the string net/http expects.
func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	if n, err := strconv.Atoi(v); err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Int returns fallback when the variable is unset or not a non-negative integer.
func Int(key string, fallback int) int {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return fallback
}

func Bool(key string, fallback bool) bool {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	return IsTruthy(v)
}

// Duration accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// List splits a comma separated variable, dropping blanks.
func List(key string, fallback string) []string {
	var out []string
	for _, item := range strings.Split(String(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}
