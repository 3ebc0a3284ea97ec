package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
)

// --- INPUTS (Command Pattern) ---

// ToggleCmd décrit une action interactive optimiste sur un item.
// Pour FieldReaction : Kind = la réaction tapée (retaper le même kind = off).
// Pour FieldSave / FieldRelay : Active = la nouvelle valeur voulue.
type ToggleCmd struct {
	ItemID   string
	AuthorID string // nécessaire pour la notification auteur
	Field    domain.EngagementField
	Kind     domain.ReactionKind
	Active   bool
}

// --- OUTPUTS ---

// Listener reçoit les événements d'engagement d'un item. Appelé de façon
// SYNCHRONE dans le tick de la mutation : toutes les vues montées du même
// item convergent sans aller-retour réseau.
type Listener func(evt domain.EngagementEvent)

// UnsubscribeFunc détache le listener. Idempotent.
type UnsubscribeFunc func()

// --- PORT PRIMAIRE (Driving) ---

// ViewerSession est l'API que les surfaces de rendu consomment (vue post,
// vue take, feed). Une instance par session de navigation.
type ViewerSession interface {
	// ViewerID renvoie l'identité de la session ("" = anonyme).
	ViewerID() string

	// ResolveVisibility décide si l'item peut être montré au viewer.
	// Pure côté appelant : aucun effet de bord, appelable spéculativement.
	ResolveVisibility(ctx context.Context, item *domain.ContentItem) (domain.VisibilityDecision, error)

	// ViewContent charge un item par id et applique ResolveVisibility.
	// Un id inexistant et un auteur bloqué produisent exactement la même
	// réponse (DecisionHiddenNotFound, domain.ErrContentNotFound).
	ViewContent(ctx context.Context, itemID string) (*domain.ContentItem, domain.VisibilityDecision, error)

	// GetEngagement renvoie un snapshot de l'état interactif de l'item,
	// créé au premier rendu si besoin.
	GetEngagement(ctx context.Context, itemID string) (*domain.EngagementState, error)

	// Toggle applique la mutation localement (synchronement), la publie aux
	// vues abonnées, puis persiste en arrière-plan. Un échec de persistance
	// est annulé localement et remonté via le hook d'erreur de la session.
	Toggle(ctx context.Context, cmd ToggleCmd) error

	// Subscribe attache une vue montée à l'item.
	Subscribe(itemID string, l Listener) UnsubscribeFunc

	// Hooks de mutation du cache de relations : reflètent immédiatement les
	// actions du viewer lui-même, sans refetch.
	RecordBlock(accountID string)
	RecordUnblock(accountID string)
	RecordFollow(accountID string, status domain.FollowStatus)
	RecordUnfollow(accountID string)

	// Close libère la session (index de relations et états d'engagement
	// compris). Aucune persistance.
	Close()
}

// RemoteEventHandler consomme le flux temps réel des actions des AUTRES
// viewers. Best-effort : ni ordonné, ni complet.
type RemoteEventHandler interface {
	OnRemoteEvent(itemID string, field domain.EngagementField, kind domain.ReactionKind, countDelta int)
}
