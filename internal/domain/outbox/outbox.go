package outbox

import (
	"time"

	"github.com/google/uuid"
)

const (
	AggregateAccount = "account"

	EventAccountCreated = "account.created"
)

// DefaultMaxRetries bounds how often the relay retries an entry before giving up.
const DefaultMaxRetries = 5

type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}
}

// Exhausted reports whether the entry has used up its retries.
func (e *Entry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}
