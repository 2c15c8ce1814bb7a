// Package postgres stores scan status, detail rows and findings in
// PostgreSQL through a pgx connection pool. The schema is managed by goose
// migrations embedded in the binary and applied on Connect.
package postgres
