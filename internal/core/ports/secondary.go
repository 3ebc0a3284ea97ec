package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
)

// --- PERSISTANCE (DB) ---

// RelationshipRepository charge la photo des relations d'un viewer.
// Lecture seule : les mutations de blocage/follow passent par leurs services
// dédiés, ce module ne fait que refléter l'action du viewer en mémoire.
type RelationshipRepository interface {
	LoadSnapshot(ctx context.Context, viewerID string) (*domain.RelationshipSnapshot, error)
}

// ContentRepository lit les items. L'écriture est hors périmètre.
type ContentRepository interface {
	// FindByID renvoie domain.ErrContentNotFound si l'item n'existe pas.
	FindByID(ctx context.Context, itemID string) (*domain.ContentItem, error)
}

// EngagementRepository persiste les interactions d'UN viewer sur UN item.
// Chaque opération est idempotente : le coordinateur peut re-tenter sur
// échec ambigu sans créer de doublon.
type EngagementRepository interface {
	UpsertReaction(ctx context.Context, itemID, viewerID string, kind domain.ReactionKind) error
	DeleteReaction(ctx context.Context, itemID, viewerID string) error
	SetSave(ctx context.Context, itemID, viewerID string, saved bool) error
	SetRelay(ctx context.Context, itemID, viewerID string, relayed bool) error

	// LoadState hydrate l'état au premier rendu d'un item.
	LoadState(ctx context.Context, itemID, viewerID string) (*domain.EngagementState, error)

	// AuthoritativeCounts renvoie les compteurs de référence, utilisés par le
	// rafraîchissement périodique qui corrige les deltas temps réel manqués.
	AuthoritativeCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, error)
}

// --- CACHE ---

// CountCache est le snapshot Redis des compteurs, lu avant de retomber sur
// Postgres pendant le rafraîchissement périodique.
type CountCache interface {
	GetCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, bool, error)
	SetCounts(ctx context.Context, itemID string, reactions domain.ReactionCounts, relays, comments int) error
}

// --- MESSAGERIE (BROKER) ---

// NotificationPublisher prévient l'auteur après une action réussie qui le
// concerne. Fire-and-forget : un échec ici n'annule JAMAIS la mutation.
type NotificationPublisher interface {
	PublishEngagement(ctx context.Context, authorID, actorID, itemID string, field domain.EngagementField, kind domain.ReactionKind) error
}

// CountDeltaPublisher diffuse les deltas CONFIRMÉS (persistés) aux autres
// instances du service, qui les fusionnent dans leurs sessions via le flux
// temps réel. Best-effort également.
type CountDeltaPublisher interface {
	PublishCountDelta(ctx context.Context, itemID string, field domain.EngagementField, kind domain.ReactionKind, delta int, actorID string) error
}
