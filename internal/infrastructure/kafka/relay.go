package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"
)

// Envelope is the record value written for every relayed event.
type Envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type keyed interface {
	AggregateID() string
}

type Relay struct {
	writer  MessageWriter
	service string
	logger  observability.Logger
	calls   observability.Counter
	dur     observability.Histogram
}

func NewRelay(writer MessageWriter, service string, tel observability.Observability) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Relay{
		writer:  writer,
		service: service,
		logger:  tel.Logger(),
		calls:   tel.Metrics().Counter(observability.MExternalRequests),
		dur:     tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Handle is an outbox handler; subscribe it to the bus for every event name
// that should leave the process.
func (r *Relay) Handle(ctx context.Context, e domoutbox.Event) error {
	key := e.EventName()
	if k, ok := e.(keyed); ok && k.AggregateID() != "" {
		key = k.AggregateID()
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Name:       e.EventName(),
		Key:        key,
		Source:     r.service,
		OccurredAt: time.Now().UTC(),
		Data:       e,
	}

	start := time.Now()
	err := PublishJSON(ctx, r.writer, key, env)
	outcome := "success"
	if err != nil {
		outcome = "error"
		r.logger.Warn("event_relay_failed",
			observability.F("event", env.Name),
			observability.F("key", key),
			observability.Err(err),
		)
	}
	r.calls.Add(1,
		observability.L("peer", "kafka"),
		observability.L("endpoint", env.Name),
		observability.L("outcome", outcome),
	)
	r.dur.Observe(time.Since(start).Seconds(),
		observability.L("peer", "kafka"),
		observability.L("endpoint", env.Name),
	)
	if err != nil {
		return fmt.Errorf("relay %s: %w", env.Name, err)
	}
	return nil
}

func (r *Relay) Close() error { return r.writer.Close() }

var _ MessageWriter = (*kafka.Writer)(nil)
