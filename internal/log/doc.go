// Package log builds the slog loggers used by the scan service.
//
// Two handlers are stacked on top of the standard text or JSON handler:
//   - SecureHandler masks credentials (repository tokens, storage keys,
//     database passwords and connection strings) by key name or value shape
//   - ContextHandler adds the request_id attribute stored in the context by
//     WithRequestID, so every line of a pipeline run is correlated
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	ctx = log.WithRequestID(ctx, requestID.String())
//	logger.InfoContext(ctx, "stage started", "stage", name)
package log
