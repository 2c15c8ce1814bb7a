package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrInvalidWorkers is returned when the worker pool size is not positive.
	ErrInvalidWorkers = errors.New("invalid pool workers: must be positive")

	// ErrInvalidQueueSize is returned when the admission queue bound is not positive.
	ErrInvalidQueueSize = errors.New("invalid pool queue size: must be positive")

	// ErrInvalidMaxConcurrency is returned when the per-stage fan-out bound is not positive.
	ErrInvalidMaxConcurrency = errors.New("invalid max concurrency: must be positive")

	// ErrInvalidRunTimeout is returned when the run timeout is not positive.
	ErrInvalidRunTimeout = errors.New("invalid run timeout: must be positive")

	// ErrInvalidToolTimeout is returned when the tool timeout is not positive.
	ErrInvalidToolTimeout = errors.New("invalid tool timeout: must be positive")

	// ErrInvalidBatchSize is returned when the findings batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid findings batch size: must be positive")

	// ErrUnsupportedDriver is returned for a database driver other than sqlite or postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver: use sqlite, postgres or memory")

	// ErrMissingDatabaseDir is returned when the sqlite driver has no directory.
	ErrMissingDatabaseDir = errors.New("database directory is required for the sqlite driver")

	// ErrMissingDatabaseURL is returned when the postgres driver has no URL.
	ErrMissingDatabaseURL = errors.New("database url is required for the postgres driver")

	// ErrMissingToolBinary is returned when a tool has no executable configured.
	ErrMissingToolBinary = errors.New("tool binary is required")

	// ErrMissingBucket is returned when object storage is enabled without a bucket.
	ErrMissingBucket = errors.New("storage bucket is required when storage endpoint is set")

	// ErrMissingSecretKey is returned when an encrypted value is found but no
	// passphrase is available to decrypt it.
	ErrMissingSecretKey = errors.New("encrypted configuration value found but " + SecretKeyEnv + " is not set")

	// ErrInvalidSecret is returned when an encrypted value cannot be decoded or opened.
	ErrInvalidSecret = errors.New("invalid encrypted configuration value")
)
