// Package storage archives analyzer reports in object storage.
package storage
