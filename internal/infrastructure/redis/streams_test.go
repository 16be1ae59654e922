package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	msg := redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]any{
			"aggregate_id": "acc-1",
			"event_type":   "account.created",
			"payload":      `{"user_id":"u-1","is_default":true}`,
			"timestamp":    "1700000000",
		},
	}

	ev, err := ParseEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", ev.ID)
	assert.Equal(t, "acc-1", ev.AggregateID)
	assert.Equal(t, "account.created", ev.EventType)
	assert.Equal(t, "u-1", ev.Payload["user_id"])
	assert.Equal(t, true, ev.Payload["is_default"])
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Timestamp)
}

func TestParseEvent_MissingFields(t *testing.T) {
	_, err := ParseEvent(redis.XMessage{ID: "1-0", Values: map[string]any{"event_type": "account.created"}})
	assert.Error(t, err)
}

func TestParseEvent_BadPayload(t *testing.T) {
	_, err := ParseEvent(redis.XMessage{ID: "1-0", Values: map[string]any{
		"aggregate_id": "a",
		"event_type":   "account.created",
		"payload":      "{not json",
	}})
	assert.ErrorContains(t, err, "decode payload")
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("4f1c1c8e-8f7a-4b59-9d0e-0f8a1d3c2b10")
	assert.Equal(t, "view:/dashboard:4f1c1c8e-8f7a-4b59-9d0e-0f8a1d3c2b10", ViewKey("/dashboard", id))
	assert.Equal(t, "lock:cleanup", LockKey("cleanup"))
}
