package eventstore

import "context"

// Adapter is the interface storage backends must implement.
// It provides the low-level operations for persisting and retrieving events.
type Adapter interface {
	// Append stores events to the specified stream with optimistic concurrency
	// control. expectedVersion is one of:
	//   - AnyVersion (-1): skip version check
	//   - NoStream (0): stream must not exist
	//   - StreamExists (-2): stream must exist
	//   - any positive number: stream must be at this exact version
	// Returns the stored events with their assigned positions.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load retrieves events from a stream, ascending by version, starting
	// after fromVersion. Use fromVersion=0 to load the whole stream.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetStreamInfo returns metadata about a stream.
	// Returns ErrStreamNotFound if the stream does not exist.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// LoadFromPosition loads events across all streams starting after a
	// global position, in global order. Used by the read-model rebuilder.
	LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]StoredEvent, error)

	// GetLastPosition returns the global position of the last stored event.
	GetLastPosition(ctx context.Context) (uint64, error)

	// Initialize sets up the required storage schema.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// HealthChecker is implemented by adapters that support liveness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
