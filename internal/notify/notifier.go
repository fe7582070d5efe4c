package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/nurpe/foundry-rfq/internal/metrics"
)

// Envelope is the JSON body published per notification.
type Envelope struct {
	EventID   uuid.UUID              `json:"event_id"`
	EventType string                 `json:"event_type"`
	UserID    uuid.UUID              `json:"user_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	EmittedAt time.Time              `json:"emitted_at"`
}

// NATSNotifier publishes notification events to JetStream. Delivery is
// best-effort: failures are logged and counted, never returned, so a dead
// broker cannot roll back an RFQ state transition.
type NATSNotifier struct {
	js            nats.JetStreamContext
	subjectPrefix string
	log           zerolog.Logger
}

func NewNATSNotifier(nc *nats.Conn, subjectPrefix string, log zerolog.Logger) (*NATSNotifier, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{js: js, subjectPrefix: subjectPrefix, log: log}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) {
	env := Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		UserID:    userID,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		n.log.Error().Err(err).Str("event_type", eventType).Msg("notify marshal failed")
		metrics.NotifyPublishErrors.WithLabelValues(eventType).Inc()
		return
	}

	subject := n.subjectPrefix + "." + eventType
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type": []string{eventType},
			"event_id":   []string{env.EventID.String()},
			"user_id":    []string{userID.String()},
		},
	}

	if _, err := n.js.PublishMsg(msg); err != nil {
		n.log.Warn().Err(err).
			Str("subject", subject).
			Str("event_type", eventType).
			Msg("notify publish failed")
		metrics.NotifyPublishErrors.WithLabelValues(eventType).Inc()
		return
	}

	n.log.Debug().
		Str("subject", subject).
		Str("user_id", userID.String()).
		Msg("notification published")
}

// LogNotifier writes notifications to the log only. Used in development when
// no broker is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) {
	n.log.Info().
		Str("event_type", eventType).
		Str("user_id", userID.String()).
		Interface("payload", payload).
		Msg("notification (log only)")
}
