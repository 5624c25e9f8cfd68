package eventstore

// Aggregate defines the interface for event-sourced aggregates.
// An aggregate is a consistency boundary whose state is derived from a
// sequence of events.
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() string

	// AggregateType returns the category of this aggregate (e.g., "Realm").
	AggregateType() string

	// Version returns the current version of the aggregate: the number of
	// committed events that have been applied.
	Version() int64

	// ApplyEvent applies an event to update the aggregate's state during
	// replay. Implementations dispatch on the event's concrete type and
	// must be deterministic.
	ApplyEvent(event any) error

	// UncommittedEvents returns events raised but not yet persisted.
	// Aggregates that coalesce property changes into a pending update event
	// flush it into the returned slice here.
	UncommittedEvents() []any

	// ClearUncommittedEvents removes all uncommitted events after successful
	// persistence.
	ClearUncommittedEvents()
}

// VersionSetter is implemented by aggregates whose version can be set by the
// runtime after load and save. AggregateBase implements it.
type VersionSetter interface {
	SetVersion(v int64)
}

// AggregateBase provides a default partial implementation of Aggregate.
// Embed this struct in aggregate types to get default behavior.
type AggregateBase struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []any
}

// NewAggregateBase creates a new AggregateBase with the given ID and type.
func NewAggregateBase(id, aggregateType string) AggregateBase {
	return AggregateBase{
		id:            id,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// SetID sets the aggregate's ID.
func (a *AggregateBase) SetID(id string) {
	a.id = id
}

// AggregateType returns the aggregate type.
func (a *AggregateBase) AggregateType() string {
	return a.aggregateType
}

// Version returns the current version of the aggregate.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// SetVersion sets the aggregate version.
func (a *AggregateBase) SetVersion(v int64) {
	a.version = v
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []any {
	return a.uncommittedEvents
}

// ClearUncommittedEvents removes all uncommitted events.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommittedEvents = nil
}

// Raise records an event as uncommitted. The aggregate must also update its
// in-memory state to match; replay goes through ApplyEvent instead.
func (a *AggregateBase) Raise(event any) {
	a.uncommittedEvents = append(a.uncommittedEvents, event)
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommittedEvents) > 0
}

// StreamID returns the stream ID for this aggregate.
func (a *AggregateBase) StreamID() StreamID {
	return NewStreamID(a.aggregateType, a.id)
}
