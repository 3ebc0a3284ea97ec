package services

import (
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
)

// EvaluateVisibility est une fonction PURE : décision totale et déterministe
// de (viewer, item, snapshot), sans effet de bord ni dépendance temporelle.
// Appelable autant de fois qu'on veut, y compris spéculativement.
//
// Ordre des règles (la première qui matche gagne, du plus restrictif) :
//  1. le viewer est l'auteur            -> Visible
//  2. blocage dans un sens ou l'autre   -> HiddenNotFound
//  3. anonyme + item non public         -> HiddenAuthRequired
//  4. visibilité de l'item              -> HiddenPrivate / HiddenFollowersOnly
//  5. compte auteur privé (override)    -> HiddenAccountPrivate
//     (même un item "public" d'un compte privé reste gated)
func EvaluateVisibility(viewerID string, item *domain.ContentItem, snapshot *domain.RelationshipSnapshot) domain.VisibilityDecision {
	if item == nil {
		return domain.DecisionHiddenNotFound
	}

	// 1. Court-circuit propriétaire : l'auteur voit toujours son item,
	// quelles que soient les règles suivantes.
	if viewerID != "" && viewerID == item.AuthorID {
		return domain.DecisionVisible
	}

	anonymous := viewerID == ""

	// 3 (avancée car sans dépendance au snapshot) : anonyme + non public.
	if anonymous && item.Visibility != domain.VisibilityPublic {
		return domain.DecisionHiddenAuthRequired
	}

	// Snapshot manquant : fail closed. On ne devine jamais Visible quand on
	// ne connaît pas les relations (même le set des comptes privés en vient).
	if snapshot == nil {
		return domain.DecisionHiddenNotFound
	}

	// 2. Blocage. Évalué avant les règles de visibilité, et le résultat est
	// indistinguable d'un item inexistant.
	if !anonymous && snapshot.IsBlockedEitherWay(item.AuthorID) {
		return domain.DecisionHiddenNotFound
	}

	// 4. Visibilité au niveau de l'item.
	switch item.Visibility {
	case domain.VisibilityPrivate:
		return domain.DecisionHiddenPrivate
	case domain.VisibilityFollowers:
		if !snapshot.IsFollowingAccepted(item.AuthorID) {
			return domain.DecisionHiddenFollowersOnly
		}
	}

	// 5. Override compte privé, indépendant du résultat de l'étape 4.
	if snapshot.IsPrivateAccount(item.AuthorID) {
		if anonymous || !snapshot.IsFollowingAccepted(item.AuthorID) {
			return domain.DecisionHiddenAccountPrivate
		}
	}

	return domain.DecisionVisible
}
