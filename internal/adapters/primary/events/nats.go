package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/services"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// EventHandler consomme le flux temps réel des deltas d'engagement et les
// distribue aux sessions vivantes. Best-effort par conception : un delta
// perdu est rattrapé par le rafraîchissement périodique.
type EventHandler struct {
	manager *services.SessionManager
}

func NewEventHandler(manager *services.SessionManager) *EventHandler {
	return &EventHandler{manager: manager}
}

// Subscribe attache le handler à tous les sujets de compteurs
// (interaction.counts.reaction, .relay, .comment).
func (h *EventHandler) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe("interaction.counts.>", h.HandleCountDelta)
}

func (h *EventHandler) HandleCountDelta(msg *nats.Msg) {
	// Extraction du contexte de trace depuis les headers NATS.
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

	tracer := otel.Tracer("interaction-service")
	_, span := tracer.Start(ctx, "process_count_delta", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	type countDeltaEvent struct {
		ItemID     string `json:"item_id"`
		Field      string `json:"field"`
		Kind       string `json:"kind,omitempty"`
		CountDelta int    `json:"count_delta"`
		ActorID    string `json:"actor_id"`
	}

	var event countDeltaEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		span.RecordError(err)
		slog.Error("❌ Invalid count delta format", "error", err)
		return
	}

	field := domain.EngagementField(event.Field)
	if field != domain.FieldReaction && field != domain.FieldRelay && field != domain.FieldComment {
		// Les saves sont privés et n'ont pas de compteur diffusé ; tout autre
		// champ est du bruit.
		slog.Debug("🔇 Ignored count delta", "field", event.Field)
		return
	}

	kind := domain.ReactionKind(event.Kind)
	if field == domain.FieldReaction && !kind.IsValid() {
		slog.Warn("⚠️  Count delta with unknown reaction kind", "kind", event.Kind, "item_id", event.ItemID)
		return
	}

	// L'acteur est exclu du fan-out : son delta local est déjà compté.
	h.manager.DispatchRemote(event.ItemID, field, kind, event.CountDelta, event.ActorID)
}
