package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumenlms/federation-gateway/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func newTestPublisher(w MessageWriter) *Publisher {
	return newPublisher(w, "admission-audit", observability.NewTestMetrics(), nil)
}

func TestPublisher_FlushesOnInterval(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)
	p.flushInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Publish(Event{Key: "acme\x1f203.0.113.9", Decision: DecisionRejected, Code: "RATE_LIMITED"})
	p.Publish(Event{Key: "acme\x1f203.0.113.9", Decision: DecisionAdmitted})

	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var got Event
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
	assert.Equal(t, DecisionRejected, got.Decision)
	assert.Equal(t, "RATE_LIMITED", got.Code)
	assert.NotEmpty(t, got.ID, "IDs are assigned on publish")
	assert.False(t, got.Time.IsZero())
	assert.Equal(t, "acme\x1f203.0.113.9", string(w.messages[0].Key))
}

func TestPublisher_FlushesFinalBatchOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)
	p.flushInterval = time.Hour // only the shutdown path may flush

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Publish(Event{Key: "k", Decision: DecisionAdmitted})
	// Let Run move the event from the queue into its batch.
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 1, w.count())
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	// No Run loop draining: fill the buffer and overflow it.
	p := newTestPublisher(&fakeWriter{})
	for i := 0; i < cap(p.queue)+10; i++ {
		p.Publish(Event{Key: "k", Decision: DecisionAdmitted})
	}
	assert.Len(t, p.queue, cap(p.queue), "overflow must not block or grow the buffer")
}

func TestPublisher_WriteFailureDoesNotStopRun(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := newTestPublisher(w)
	p.flushInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Publish(Event{Key: "k", Decision: DecisionRejected})
	time.Sleep(25 * time.Millisecond)

	// Broker recovers; subsequent events flow.
	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	p.Publish(Event{Key: "k2", Decision: DecisionAdmitted})

	require.Eventually(t, func() bool { return w.count() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
