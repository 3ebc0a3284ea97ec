package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

// Structure de l'event de notification (contract implicite avec le
// Notification-Service).
type EngagementNotifiedEvent struct {
	AuthorID  string    `json:"author_id"`
	ActorID   string    `json:"actor_id"`
	ItemID    string    `json:"item_id"`
	Field     string    `json:"field"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Structure du delta de compteur (contract avec les autres instances de ce
// service, qui le fusionnent dans leurs sessions).
type CountDeltaEvent struct {
	ItemID     string `json:"item_id"`
	Field      string `json:"field"`
	Kind       string `json:"kind,omitempty"`
	CountDelta int    `json:"count_delta"`
	ActorID    string `json:"actor_id"`
}

// PublishEngagement prévient l'auteur qu'on a réagi à (ou relayé) son item.
func (p *NatsPublisher) PublishEngagement(ctx context.Context, authorID, actorID, itemID string, field domain.EngagementField, kind domain.ReactionKind) error {
	event := EngagementNotifiedEvent{
		AuthorID:  authorID,
		ActorID:   actorID,
		ItemID:    itemID,
		Field:     string(field),
		Kind:      string(kind),
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: fmt.Sprintf("interaction.notify.%s", field),
		Data:    data,
		Header:  nats.Header{},
	}
	// Injection du trace ID dans les headers NATS : le Notification-Service
	// raccroche son span à la trace du toggle.
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	slog.Info("📢 Publishing notification event", "topic", msg.Subject, "item_id", itemID, "author_id", authorID)

	return p.nc.PublishMsg(msg)
}

// PublishCountDelta diffuse un delta confirmé sur le flux temps réel.
func (p *NatsPublisher) PublishCountDelta(ctx context.Context, itemID string, field domain.EngagementField, kind domain.ReactionKind, delta int, actorID string) error {
	event := CountDeltaEvent{
		ItemID:     itemID,
		Field:      string(field),
		Kind:       string(kind),
		CountDelta: delta,
		ActorID:    actorID,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: fmt.Sprintf("interaction.counts.%s", field),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	return p.nc.PublishMsg(msg)
}
