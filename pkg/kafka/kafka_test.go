package kafka

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rebuild struct {
	Collection string `json:"collection"`
	Clear      bool   `json:"clear"`
}

func TestEncodeEventCarriesRequestID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-7")
	msg, err := encodeEvent(ctx, Event{Key: "song", Value: rebuild{Collection: "song", Clear: true}})
	require.NoError(t, err)

	assert.Equal(t, "song", string(msg.Key))
	assert.Equal(t, "req-7", headerValue(msg.Headers, requestIDHeader))

	decoded, err := DecodeJSON[rebuild](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, rebuild{Collection: "song", Clear: true}, decoded)
}

func TestEncodeEventWithoutRequestID(t *testing.T) {
	msg, err := encodeEvent(context.Background(), Event{Key: "artist", Value: map[string]int{"n": 1}})
	require.NoError(t, err)
	assert.Empty(t, msg.Headers)
}

func TestDecodeJSONInvalid(t *testing.T) {
	_, err := DecodeJSON[rebuild]([]byte("{not json"))
	assert.Error(t, err)
}
