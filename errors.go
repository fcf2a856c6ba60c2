package tendergraph

import "errors"

var (
	// ErrChunkNotFound is returned when a chunk id does not exist in the store.
	ErrChunkNotFound = errors.New("tendergraph: chunk not found")

	// ErrNoRecords is returned when a source yields no records.
	ErrNoRecords = errors.New("tendergraph: no records found")

	// ErrOracleUnavailable is returned when the extraction service is unreachable.
	ErrOracleUnavailable = errors.New("tendergraph: extraction oracle unavailable")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("tendergraph: invalid configuration")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("tendergraph: store is closed")
)
