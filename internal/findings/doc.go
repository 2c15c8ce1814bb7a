// Package findings ingests analysis tool output into durable storage.
//
// Parse reads the CSV export of the analyzer (Rule Id, Category, Title,
// Description, File Path, Line, Story points, ...) row by row, and
// BatchWriter inserts rows in fixed size batches.
package findings
