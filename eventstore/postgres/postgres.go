// Package postgres provides a PostgreSQL implementation of the event store
// adapter, using the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tessera-id/portal/eventstore"
)

// Ensure Adapter implements the required interfaces.
var (
	_ eventstore.Adapter       = (*Adapter)(nil)
	_ eventstore.HealthChecker = (*Adapter)(nil)
)

// Adapter is a PostgreSQL implementation of eventstore.Adapter.
type Adapter struct {
	db     *sql.DB
	schema string
	closed bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *Adapter) {
		a.schema = schema
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *Adapter) {
		a.db.SetMaxOpenConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *Adapter) {
		a.db.SetConnMaxLifetime(d)
	}
}

// NewAdapter creates a new PostgreSQL event store adapter.
func NewAdapter(connStr string, opts ...Option) (*Adapter, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to open database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		schema: "portal",
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter, nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *Adapter {
	adapter := &Adapter{
		db:     db,
		schema: "portal",
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Initialize creates the required database schema and tables.
func (a *Adapter) Initialize(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, a.schema))
	if err != nil {
		return fmt.Errorf("eventstore/postgres: failed to create schema: %w", err)
	}

	streamsSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.streams (
			id              BIGSERIAL PRIMARY KEY,
			stream_id       VARCHAR(500) NOT NULL UNIQUE,
			category        VARCHAR(250) NOT NULL,
			version         BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, a.schema)

	if _, err = a.db.ExecContext(ctx, streamsSQL); err != nil {
		return fmt.Errorf("eventstore/postgres: failed to create streams table: %w", err)
	}

	eventsSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.events (
			global_position BIGSERIAL PRIMARY KEY,
			stream_id       VARCHAR(500) NOT NULL,
			version         BIGINT NOT NULL,
			event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
			event_type      VARCHAR(500) NOT NULL,
			data            JSONB NOT NULL,
			metadata        JSONB,
			occurred_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(stream_id, version)
		)`, a.schema)

	if _, err = a.db.ExecContext(ctx, eventsSQL); err != nil {
		return fmt.Errorf("eventstore/postgres: failed to create events table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_category ON %s.streams(category)`, a.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_stream ON %s.events(stream_id, version)`, a.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_type ON %s.events(event_type)`, a.schema),
	}
	for _, idx := range indexes {
		if _, err = a.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("eventstore/postgres: failed to create index: %w", err)
		}
	}

	return nil
}

// Append stores events to the specified stream with optimistic concurrency
// control. The version check and the inserts run in one transaction; the
// per-stream version row is locked FOR UPDATE so concurrent writers serialize
// and the loser fails the version check.
func (a *Adapter) Append(ctx context.Context, streamID string, events []eventstore.EventRecord, expectedVersion int64) ([]eventstore.StoredEvent, error) {
	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, eventstore.ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	var streamExists bool

	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT version FROM %s.streams
		WHERE stream_id = $1
		FOR UPDATE`, a.schema), streamID).Scan(&currentVersion)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		streamExists = false
	case err != nil:
		return nil, fmt.Errorf("eventstore/postgres: failed to get stream version: %w", err)
	default:
		streamExists = true
	}

	if err := eventstore.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	if !streamExists {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.streams (stream_id, category, version)
			VALUES ($1, $2, 0)`, a.schema), streamID, eventstore.ExtractCategory(streamID))
		if err != nil {
			return nil, fmt.Errorf("eventstore/postgres: failed to create stream: %w", err)
		}
	}

	stored := make([]eventstore.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("eventstore/postgres: failed to marshal metadata: %w", err)
		}

		var globalPosition uint64
		var eventID string
		var occurredAt time.Time

		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.events (stream_id, version, event_type, data, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING global_position, event_id, occurred_at`, a.schema),
			streamID, currentVersion, event.Type, event.Data, metadataJSON,
		).Scan(&globalPosition, &eventID, &occurredAt)
		if err != nil {
			return nil, fmt.Errorf("eventstore/postgres: failed to insert event: %w", err)
		}

		stored[i] = eventstore.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: globalPosition,
			OccurredAt:     occurredAt,
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s.streams
		SET version = $1, updated_at = NOW()
		WHERE stream_id = $2`, a.schema), currentVersion, streamID)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to commit transaction: %w", err)
	}

	return stored, nil
}

// Load retrieves events from a stream in version order, starting after fromVersion.
func (a *Adapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]eventstore.StoredEvent, error) {
	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, occurred_at
		FROM %s.events
		WHERE stream_id = $1 AND version > $2
		ORDER BY version`, a.schema), streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadFromPosition loads events across all streams starting after a global position.
func (a *Adapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]eventstore.StoredEvent, error) {
	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, occurred_at
		FROM %s.events
		WHERE global_position > $1
		ORDER BY global_position
		LIMIT $2`, a.schema), fromPosition, limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetStreamInfo returns metadata about a stream.
func (a *Adapter) GetStreamInfo(ctx context.Context, streamID string) (*eventstore.StreamInfo, error) {
	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}

	var info eventstore.StreamInfo
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, category, version, created_at, updated_at
		FROM %s.streams
		WHERE stream_id = $1`, a.schema), streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventstore.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: failed to get stream info: %w", err)
	}

	info.EventCount = info.Version
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *Adapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed {
		return 0, eventstore.ErrAdapterClosed
	}

	var pos sql.NullInt64
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MAX(global_position) FROM %s.events`, a.schema)).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("eventstore/postgres: failed to get last position: %w", err)
	}
	if pos.Valid {
		return uint64(pos.Int64), nil
	}
	return 0, nil
}

// Ping checks database connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.closed {
		return eventstore.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close releases the database connection.
func (a *Adapter) Close() error {
	a.closed = true
	return a.db.Close()
}

// DB returns the underlying database connection.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *Adapter) Schema() string {
	return a.schema
}

func scanEvents(rows *sql.Rows) ([]eventstore.StoredEvent, error) {
	events := make([]eventstore.StoredEvent, 0)
	for rows.Next() {
		var event eventstore.StoredEvent
		var metadataJSON []byte

		err := rows.Scan(
			&event.GlobalPosition,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("eventstore/postgres: failed to scan event: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("eventstore/postgres: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore/postgres: error iterating events: %w", err)
	}
	return events, nil
}
