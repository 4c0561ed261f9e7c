package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/internal/event"
	"hookgate/internal/logger"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

type fakeProducer struct {
	mu        sync.Mutex
	published []models.AlertEnvelope
	failUntil int
	calls     int
	closed    bool
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, envelope models.AlertEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, envelope)
	return nil
}

func (f *fakeProducer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		MaxElapsedTime:  time.Second,
	}
}

var outcomeCompleted = &event.Outcome{
	Success: true,
	State:   event.ClaimNew,
	Result:  map[string]interface{}{"received": true},
}

func TestEventProcessedPublishes(t *testing.T) {
	producer := &fakeProducer{}
	n := NewNotifier(producer, "alerts.test", 2, testPolicy(), logger.NopLogger())
	require.NotNil(t, n)

	n.EventProcessed(context.Background(), event.Identity{
		Provider:  "stripe",
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
	}, outcomeCompleted)

	require.NoError(t, n.Close())

	require.Len(t, producer.published, 1)
	env := producer.published[0]
	assert.Equal(t, "stripe", env.Provider)
	assert.Equal(t, "evt_1", env.EventID)
	// A fresh successful outcome reports the ledger's terminal status, not the
	// claim state.
	assert.Equal(t, "completed", env.Status)
	assert.NotEmpty(t, env.ID)
	assert.True(t, producer.closed)
}

func TestEventProcessedDuplicateKeepsClaimState(t *testing.T) {
	producer := &fakeProducer{}
	n := NewNotifier(producer, "alerts.test", 2, testPolicy(), logger.NopLogger())

	n.EventProcessed(context.Background(), event.Identity{Provider: "stripe", EventID: "evt_dup"}, &event.Outcome{
		Success:   true,
		State:     event.ClaimAlreadyProcessed,
		Duplicate: true,
	})

	require.NoError(t, n.Close())

	require.Len(t, producer.published, 1)
	assert.Equal(t, "already_processed", producer.published[0].Status)
	assert.True(t, producer.published[0].Metadata.Duplicate)
}

func TestEventProcessedFailedOutcome(t *testing.T) {
	producer := &fakeProducer{}
	n := NewNotifier(producer, "alerts.test", 2, testPolicy(), logger.NopLogger())

	n.EventProcessed(context.Background(), event.Identity{Provider: "stripe", EventID: "evt_2"}, &event.Outcome{
		Success: false,
		State:   event.ClaimNew,
		Error:   "downstream unavailable",
	})

	require.NoError(t, n.Close())

	require.Len(t, producer.published, 1)
	assert.Equal(t, "failed", producer.published[0].Status)
	assert.Equal(t, "downstream unavailable", producer.published[0].Metadata.ErrorMessage)
}

func TestEventProcessedRetriesTransientFailure(t *testing.T) {
	producer := &fakeProducer{failUntil: 2}
	n := NewNotifier(producer, "alerts.test", 2, testPolicy(), logger.NopLogger())

	n.EventProcessed(context.Background(), event.Identity{Provider: "stripe", EventID: "evt_3"}, outcomeCompleted)

	require.NoError(t, n.Close())

	assert.Equal(t, 3, producer.calls)
	require.Len(t, producer.published, 1)
}

func TestEventProcessedSurvivesCanceledRequestContext(t *testing.T) {
	producer := &fakeProducer{}
	n := NewNotifier(producer, "alerts.test", 2, testPolicy(), logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.EventProcessed(ctx, event.Identity{Provider: "stripe", EventID: "evt_4"}, outcomeCompleted)

	require.NoError(t, n.Close())
	require.Len(t, producer.published, 1)
}

func TestEventProcessedPublishFailureNeverSurfaces(t *testing.T) {
	producer := &fakeProducer{failUntil: 100}
	n := NewNotifier(producer, "alerts.test", 2, testPolicy(), logger.NopLogger())

	n.EventProcessed(context.Background(), event.Identity{Provider: "stripe", EventID: "evt_5"}, outcomeCompleted)

	// Close reports no error even when every publish attempt failed.
	require.NoError(t, n.Close())
	assert.Empty(t, producer.published)
}

type blockingProducer struct {
	fakeProducer
	started chan struct{}
	release chan struct{}
}

func (b *blockingProducer) Publish(ctx context.Context, topic string, envelope models.AlertEnvelope) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return b.fakeProducer.Publish(ctx, topic, envelope)
}

func TestEventProcessedDropsWhenWorkersSaturated(t *testing.T) {
	producer := &blockingProducer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	n := NewNotifier(producer, "alerts.test", 1, testPolicy(), logger.NopLogger())

	n.EventProcessed(context.Background(), event.Identity{Provider: "stripe", EventID: "evt_6"}, outcomeCompleted)
	// The single worker is now parked inside Publish.
	<-producer.started

	done := make(chan struct{})
	go func() {
		n.EventProcessed(context.Background(), event.Identity{Provider: "stripe", EventID: "evt_7"}, outcomeCompleted)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EventProcessed blocked the caller while publish workers were saturated")
	}

	close(producer.release)
	require.NoError(t, n.Close())

	// The saturated-worker alert was dropped, not queued behind the stall.
	require.Len(t, producer.published, 1)
	assert.Equal(t, "evt_6", producer.published[0].EventID)
}

func TestNilNotifierIsInert(t *testing.T) {
	var n *Notifier
	n.EventProcessed(context.Background(), event.Identity{}, outcomeCompleted)
	assert.NoError(t, n.Close())
}

func TestNewNotifierNilProducer(t *testing.T) {
	assert.Nil(t, NewNotifier(nil, "alerts.test", 2, testPolicy(), logger.NopLogger()))
}
