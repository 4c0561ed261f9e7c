package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
)

type fakeLedger struct {
	claim       Claim
	claimErr    error
	claims      int
	completed   map[string]json.RawMessage
	completeErr error
	failed      map[string]string
	failErr     error
}

func newFakeLedger(claim Claim) *fakeLedger {
	return &fakeLedger{
		claim:     claim,
		completed: make(map[string]json.RawMessage),
		failed:    make(map[string]string),
	}
}

func (f *fakeLedger) Claim(ctx context.Context, identity Identity, payload json.RawMessage) (*Claim, error) {
	f.claims++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	c := f.claim
	return &c, nil
}

func (f *fakeLedger) Complete(ctx context.Context, eventID string, result json.RawMessage) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[eventID] = result
	return nil
}

func (f *fakeLedger) Fail(ctx context.Context, eventID, errorMessage string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.failed[eventID] = errorMessage
	return nil
}

func (f *fakeLedger) Get(ctx context.Context, provider, providerEventID string) (*Record, error) {
	return nil, errors.New("not implemented")
}

type fakeCache struct {
	values map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]byte)}
}

func (f *fakeCache) GetResult(ctx context.Context, provider, providerEventID string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[provider+":"+providerEventID]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f *fakeCache) SetResult(ctx context.Context, provider, providerEventID string, result []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	f.values[provider+":"+providerEventID] = result
	return nil
}

var testIdentity = Identity{
	Provider:  "stripe",
	EventID:   "evt_123",
	EventType: "checkout.session.completed",
}

func TestProcessEventNewClaim(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	cache := newFakeCache()
	p := NewProcessor(ledger, cache, time.Hour, logger.NopLogger())

	calls := 0
	outcome, err := p.ProcessEvent(context.Background(), testIdentity, map[string]interface{}{"id": "evt_123"}, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			calls++
			assert.Equal(t, "row-1", eventID)
			return map[string]interface{}{"received": true}, nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, ClaimNew, outcome.State)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, map[string]interface{}{"received": true}, outcome.Result)
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `{"received":true}`, string(ledger.completed["row-1"]))
	assert.Equal(t, 1, cache.sets)
}

func TestProcessEventAlreadyProcessed(t *testing.T) {
	ledger := newFakeLedger(Claim{
		State:   ClaimAlreadyProcessed,
		EventID: "row-1",
		Result:  json.RawMessage(`{"received":true,"handled":true}`),
	})
	cache := newFakeCache()
	p := NewProcessor(ledger, cache, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			t.Fatal("handler must not run for a completed event")
			return nil, nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, ClaimAlreadyProcessed, outcome.State)
	assert.Equal(t, map[string]interface{}{"received": true, "handled": true}, outcome.Result)
	// Stored result gets backfilled into the cache.
	assert.Equal(t, 1, cache.sets)
}

func TestProcessEventInProgress(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimInProgress, EventID: "row-1"})
	p := NewProcessor(ledger, nil, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			t.Fatal("handler must not run while another delivery holds the claim")
			return nil, nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, ClaimInProgress, outcome.State)
	assert.Nil(t, outcome.Result)
}

func TestProcessEventHandlerError(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	cache := newFakeCache()
	p := NewProcessor(ledger, cache, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			return nil, errors.New("downstream unavailable")
		})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "downstream unavailable", outcome.Error)
	assert.Equal(t, "downstream unavailable", ledger.failed["row-1"])
	assert.Empty(t, ledger.completed)
	assert.Zero(t, cache.sets)
}

func TestProcessEventHandlerPanic(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	p := NewProcessor(ledger, nil, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			panic("boom")
		})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Error)
	assert.Contains(t, ledger.failed["row-1"], "boom")
}

func TestProcessEventClaimError(t *testing.T) {
	ledger := newFakeLedger(Claim{})
	ledger.claimErr = errors.New("connection refused")
	p := NewProcessor(ledger, nil, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			t.Fatal("handler must not run when the claim fails")
			return nil, nil
		})

	require.Error(t, err)
	assert.Nil(t, outcome)
}

func TestProcessEventCompleteFailureStillSucceeds(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	ledger.completeErr = errors.New("connection reset")
	cache := newFakeCache()
	p := NewProcessor(ledger, cache, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			return map[string]interface{}{"received": true}, nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	// The cache must not claim the event completed when the ledger write failed.
	assert.Zero(t, cache.sets)
}

func TestProcessEventCompleteFailureCountedSeparately(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	ledger.completeErr = errors.New("connection reset")
	p := NewProcessor(ledger, nil, time.Hour, logger.NopLogger())

	completedBefore := testutil.ToFloat64(metrics.EventsProcessedTotal.WithLabelValues("stripe", "completed"))
	writeFailedBefore := testutil.ToFloat64(metrics.EventsProcessedTotal.WithLabelValues("stripe", "complete_write_failed"))

	_, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			return map[string]interface{}{"received": true}, nil
		})
	require.NoError(t, err)

	// The row is still claimed and will be reprocessed on redelivery, so it
	// must not count as a completion.
	assert.Equal(t, completedBefore,
		testutil.ToFloat64(metrics.EventsProcessedTotal.WithLabelValues("stripe", "completed")))
	assert.Equal(t, writeFailedBefore+1,
		testutil.ToFloat64(metrics.EventsProcessedTotal.WithLabelValues("stripe", "complete_write_failed")))
}

func TestProcessEventCacheHitSkipsLedger(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	cache := newFakeCache()
	cache.values["stripe:evt_123"] = json.RawMessage(`{"received":true}`)
	p := NewProcessor(ledger, cache, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			t.Fatal("handler must not run on a cache hit")
			return nil, nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, map[string]interface{}{"received": true}, outcome.Result)
	assert.Zero(t, ledger.claims)
}

func TestProcessEventCacheErrorFallsThrough(t *testing.T) {
	ledger := newFakeLedger(Claim{State: ClaimNew, EventID: "row-1"})
	cache := newFakeCache()
	cache.getErr = errors.New("circuit open")
	p := NewProcessor(ledger, cache, time.Hour, logger.NopLogger())

	outcome, err := p.ProcessEvent(context.Background(), testIdentity, nil, json.RawMessage(`{}`),
		func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
			return map[string]interface{}{"received": true}, nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, ledger.claims)
}
