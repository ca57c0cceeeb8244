package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/models"
)

const EventStatusUpdated = "appointment.status_updated"

// AppointmentEvent is the JSON payload written to the broker.
type AppointmentEvent struct {
	Type        string              `json:"type"`
	Appointment *models.Appointment `json:"appointment"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer that keys partitions by appointment id, so
// events for one appointment stay ordered.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}
}

type KafkaOption func(*KafkaPublisher)

func WithPublishTimeout(d time.Duration) KafkaOption {
	return func(p *KafkaPublisher) { p.timeout = d }
}

func WithKafkaLogger(l *zap.Logger) KafkaOption {
	return func(p *KafkaPublisher) { p.log = l }
}

// WithBreakerSettings replaces the default circuit breaker settings. The
// OnStateChange callback is kept if the given settings leave it nil.
func WithBreakerSettings(s gobreaker.Settings) KafkaOption {
	return func(p *KafkaPublisher) { p.settings = s }
}

func withClock(now func() time.Time) KafkaOption {
	return func(p *KafkaPublisher) { p.now = now }
}

// KafkaPublisher is a Hook that publishes status events. Writes pass
// through a circuit breaker: after five consecutive failures it fails fast
// for 30 seconds instead of waiting on an unreachable broker.
type KafkaPublisher struct {
	w        MessageWriter
	cb       *gobreaker.CircuitBreaker[struct{}]
	settings gobreaker.Settings
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewKafkaPublisher(w MessageWriter, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		w:       w,
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
		settings: gobreaker.Settings{
			Name:        "kafka-publisher",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.settings.OnStateChange == nil {
		p.settings.OnStateChange = func(name string, from, to gobreaker.State) {
			p.log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	p.cb = gobreaker.NewCircuitBreaker[struct{}](p.settings)
	return p
}

func (p *KafkaPublisher) AppointmentUpdated(ctx context.Context, appt *models.Appointment) error {
	payload, err := json.Marshal(AppointmentEvent{
		Type:        EventStatusUpdated,
		Appointment: appt,
		OccurredAt:  p.now(),
	})
	if err != nil {
		return fmt.Errorf("notify/kafka: encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(appt.ID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventStatusUpdated)},
		},
	}

	_, err = p.cb.Execute(func() (struct{}, error) {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.w.WriteMessages(wctx, msg)
	})
	if err != nil {
		return fmt.Errorf("notify/kafka: publish appointment %d: %w", appt.ID, err)
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (p *KafkaPublisher) State() gobreaker.State { return p.cb.State() }

func (p *KafkaPublisher) Close() error { return p.w.Close() }

var _ Hook = (*KafkaPublisher)(nil)
