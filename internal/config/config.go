// Package config loads Stroma's single startup configuration record
// (spec.md §6): every credential and tunable comes from the environment,
// following the teacher's requireEnv/getEnvOrDefault idiom — no
// fallback defaults for security-sensitive values, explicit defaults
// everywhere else.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Config is the process-wide startup record, constructed once in
// cmd/stromad and threaded explicitly to every component that needs it —
// no package-level global state.
type Config struct {
	DatabaseURL      string
	GroupName        string
	IdentitySecret   []byte
	HTTPAddr         string
	HealthPollSecs   int
	RateLimitEnabled bool
}

// Load reads Config from the environment, failing fast on any missing
// required variable.
func Load() (Config, error) {
	secretHex := requireEnv("STROMA_IDENTITY_SECRET")
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: STROMA_IDENTITY_SECRET")
	}

	pollSecs, err := strconv.Atoi(getEnvOrDefault("STROMA_HEALTH_POLL_SECS", "30"))
	if err != nil {
		return Config{}, errors.Wrap(err, "config: STROMA_HEALTH_POLL_SECS")
	}

	return Config{
		DatabaseURL:      requireEnv("DATABASE_URL"),
		GroupName:        requireEnv("STROMA_GROUP_NAME"),
		IdentitySecret:   secret,
		HTTPAddr:         getEnvOrDefault("STROMA_HTTP_ADDR", ":8080"),
		HealthPollSecs:   pollSecs,
		RateLimitEnabled: getEnvOrDefault("STROMA_RATE_LIMIT_ENABLED", "true") == "true",
	}, nil
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("config: required environment variable %s is not set", key))
	}
	return v
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
