// Package database provides the storage behind the status tracker and the
// findings loader.
//
// StatusDB is the default, a single SQLite file (modernc.org/sqlite, no
// CGO) holding three tables:
//   - scan_status: one row per request id, updated in place
//   - scan_status_detail: per-artifact rows, deleted with their parent
//   - scan_data: findings loaded from analyzer reports
//
// Status upserts are single INSERT ... ON CONFLICT statements, so a stage's
// own terminal write and the completion handler cannot lose each other's
// updates. OpenStore selects between SQLite, the postgres package and the
// in-memory MemoryDB.
package database
