// Package audit publishes admission decisions to Kafka for security review.
// Publishing is best-effort: the hot path never blocks on the broker, and
// events are dropped (and counted) when the buffer is full.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lumenlms/federation-gateway/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Decision values recorded on events.
const (
	DecisionAdmitted = "admitted"
	DecisionRejected = "rejected"
)

// Event is one admission decision.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	TenantID  string    `json:"tenantId,omitempty"`
	Key       string    `json:"key"`
	Decision  string    `json:"decision"`
	Code      string    `json:"code,omitempty"`
	Operation string    `json:"operation,omitempty"`
}

// MessageWriter abstracts the kafka writer for testability.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher buffers admission events and writes them to Kafka in batches.
type Publisher struct {
	writer        MessageWriter
	topic         string
	queue         chan Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewPublisher creates a publisher against the given brokers and topic.
func NewPublisher(brokers []string, topic string, m *observability.Metrics, logger *slog.Logger) *Publisher {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return newPublisher(writer, topic, m, logger)
}

func newPublisher(w MessageWriter, topic string, m *observability.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		writer:        w,
		topic:         topic,
		queue:         make(chan Event, 1024),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        logger,
		metrics:       m,
	}
}

// Publish enqueues an event without blocking. A full buffer drops the
// event — admission latency is worth more than a complete audit trail.
func (p *Publisher) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case p.queue <- e:
	default:
		p.metrics.AuditEventsDropped.Inc()
	}
}

// Run drains the buffer until the context is cancelled, flushing whenever a
// batch fills or the flush interval elapses.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("audit publisher started", "topic", p.topic)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, p.batchSize)
	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background(), batch)
			return nil
		case e := <-p.queue:
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// flush writes one batch. Failed batches are logged and dropped rather
// than retried: audit events age out of usefulness quickly and retries
// would back up the queue.
func (p *Publisher) flush(ctx context.Context, batch []Event) {
	if len(batch) == 0 {
		return
	}

	msgs := make([]kafkago.Message, 0, len(batch))
	for _, e := range batch {
		value, err := json.Marshal(e)
		if err != nil {
			p.logger.Error("marshal audit event", "error", err, "id", e.ID)
			continue
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(e.Key), Value: value})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.metrics.AuditEventsDropped.Add(float64(len(msgs)))
		p.logger.Error("write audit events", "error", err, "count", len(msgs))
		return
	}
	p.metrics.AuditEventsPublished.Add(float64(len(msgs)))
}

// Close shuts down the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
