package strata

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Chunk and ingestion-task identifiers come from here; the timestamp
// prefix keeps store indexes append-friendly and sorts task listings
// chronologically.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns current time as Unix seconds, used for document
// ingestion timestamps.
func NowUnix() int64 {
	return time.Now().Unix()
}
