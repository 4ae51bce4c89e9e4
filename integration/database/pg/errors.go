package pg

import "errors"

// Domain-specific Postgres errors for consistent error handling.
// Use errors.Is() to check error types for retry logic.
var (
	ErrEmptyConnectionString   = errors.New("empty postgres connection string")
	ErrFailedToParseConnString = errors.New("failed to parse postgres connection string")
	ErrPostgresNotReady        = errors.New("postgres did not become ready within the given time period")
	ErrHealthcheckFailed       = errors.New("postgres healthcheck failed")
)
