package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

func startBus(t *testing.T, bus *Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
	})
	select {
	case <-bus.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
}

func TestBusDeliversDecodedPayload(t *testing.T) {
	bus, err := NewBus(Config{BufferSize: 8}, nil, nil)
	require.NoError(t, err)

	received := make(chan models.FetchMatchMessage, 1)
	bus.Handle("fetch-match", TopicFetchMatch, func(msg *message.Message) error {
		var payload models.FetchMatchMessage
		if err := Decode(msg, &payload); err != nil {
			return err
		}
		received <- payload
		return nil
	})
	startBus(t, bus)

	meta := models.MessageMeta{CorrelationID: "corr-1", Priority: models.PriorityHigh}
	require.NoError(t, bus.Publish(context.Background(), TopicFetchMatch, meta, models.FetchMatchMessage{OsuMatchID: 111}))

	select {
	case got := <-received:
		assert.Equal(t, int64(111), got.OsuMatchID)
		assert.Equal(t, "corr-1", got.CorrelationID)
		assert.Equal(t, models.PriorityHigh, got.Priority)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBusRoutesExhaustedMessagesToPoisonTopic(t *testing.T) {
	bus, err := NewBus(Config{BufferSize: 8, MaxRetries: 1, RetryInterval: time.Millisecond}, nil, nil)
	require.NoError(t, err)

	attempts := make(chan struct{}, 8)
	bus.Handle("always-fails", TopicFetchBeatmap, func(msg *message.Message) error {
		attempts <- struct{}{}
		return errors.New("upstream unavailable")
	})

	poisoned, err := bus.Subscribe(context.Background(), TopicPoison)
	require.NoError(t, err)
	startBus(t, bus)

	meta := models.MessageMeta{CorrelationID: "corr-2"}
	require.NoError(t, bus.Publish(context.Background(), TopicFetchBeatmap, meta, models.FetchBeatmapMessage{OsuBeatmapID: 9}))

	select {
	case msg := <-poisoned:
		msg.Ack()
		assert.Equal(t, "corr-2", middleware.MessageCorrelationID(msg))
		assert.Equal(t, TopicFetchBeatmap, msg.Metadata.Get(middleware.PoisonedTopicKey))
	case <-time.After(5 * time.Second):
		t.Fatal("message never reached the poison topic")
	}
	assert.Len(t, attempts, 2, "one delivery plus one retry")
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	msg := message.NewMessage("id-1", []byte("{not json"))
	var payload models.FetchPlayerMessage
	assert.Error(t, Decode(msg, &payload))
}
