package envutil

import (
	"os"
)

// GetPort returns the port number to bind to from the PORT environment variable,
// or fallback if it has not been set.
func GetPort(fallback string) string {
	return GetEnvOrFallback("PORT", fallback)
}

// GetEnvOrFallback gets the environment variable for the specified key, but if
// it doesn't find a value, it'll instead return fallback.
func GetEnvOrFallback(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	return value
}

// Environment returns the name of the deployment environment, development by
// default.
func Environment() string {
	return GetEnvOrFallback("SENTRY_ENVIRONMENT", "development")
}
