package cqrs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// IdempotencyRecord remembers the outcome of a processed command.
type IdempotencyRecord struct {
	Key         string
	CommandType string
	AggregateID string
	Version     int64
	ProcessedAt time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the record has outlived its TTL.
func (r *IdempotencyRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IdempotencyStore tracks processed commands.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Store(ctx context.Context, record *IdempotencyRecord) error
}

// MemoryIdempotencyStore is an in-memory IdempotencyStore.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*IdempotencyRecord
}

// NewMemoryIdempotencyStore creates an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{records: make(map[string]*IdempotencyRecord)}
}

// Get returns the record for a key, or nil.
func (s *MemoryIdempotencyStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	c := *record
	return &c, nil
}

// Store saves a record, replacing any existing one for the key.
func (s *MemoryIdempotencyStore) Store(ctx context.Context, record *IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *record
	s.records[record.Key] = &c
	return nil
}

// IdempotencyKeyFor returns the deduplication key for a command: the
// command's own key when it implements IdempotentCommand, a content hash
// otherwise. The hash runs over the masked JSON form, so two commands
// differing only in a Secret field collide; explicit keys avoid that.
func IdempotencyKeyFor(cmd Command) string {
	if ic, ok := cmd.(IdempotentCommand); ok && ic.IdempotencyKey() != "" {
		return cmd.CommandType() + ":" + ic.IdempotencyKey()
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		sum := sha256.Sum256([]byte(cmd.CommandType()))
		return cmd.CommandType() + ":type-only:" + hex.EncodeToString(sum[:16])
	}
	sum := sha256.Sum256(data)
	return cmd.CommandType() + ":" + hex.EncodeToString(sum[:16])
}

// IdempotencyConfig configures IdempotencyMiddleware.
type IdempotencyConfig struct {
	Store IdempotencyStore

	// TTL bounds how long outcomes are remembered. Defaults to 24h.
	TTL time.Duration

	// KeyGenerator overrides IdempotencyKeyFor.
	KeyGenerator func(Command) string
}

// IdempotencyMiddleware short-circuits redelivered commands, returning the
// remembered outcome instead of re-executing. Only successful outcomes are
// stored; failures may be retried.
func IdempotencyMiddleware(config IdempotencyConfig) Middleware {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = IdempotencyKeyFor
	}

	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			key := config.KeyGenerator(cmd)

			record, err := config.Store.Get(ctx, key)
			if err == nil && record != nil && !record.IsExpired() {
				return NewResult(record.AggregateID, record.Version), nil
			}

			result, cmdErr := next(ctx, cmd)
			if cmdErr == nil && result.IsSuccess() {
				now := time.Now()
				_ = config.Store.Store(ctx, &IdempotencyRecord{
					Key:         key,
					CommandType: cmd.CommandType(),
					AggregateID: result.AggregateID,
					Version:     result.Version,
					ProcessedAt: now,
					ExpiresAt:   now.Add(config.TTL),
				})
			}
			return result, cmdErr
		}
	}
}
