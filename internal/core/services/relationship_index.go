package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

// RelationshipIndex est le cache de relations d'une session de navigation.
// Construit paresseusement au premier fetch de contenu, réutilisé sur toutes
// les pages suivantes (un seul aller-retour DB pour toute la pagination).
// Pas d'invalidation automatique, pas de TTL : une nouvelle session recharge.
type RelationshipIndex struct {
	mu       sync.RWMutex
	viewerID string
	repo     ports.RelationshipRepository
	snapshot *domain.RelationshipSnapshot // nil tant que non chargé
}

func NewRelationshipIndex(viewerID string, repo ports.RelationshipRepository) *RelationshipIndex {
	return &RelationshipIndex{
		viewerID: viewerID,
		repo:     repo,
	}
}

// Snapshot renvoie la photo des relations, en la chargeant au premier appel.
// Un échec de chargement n'est PAS mis en cache : le prochain appel retente.
func (idx *RelationshipIndex) Snapshot(ctx context.Context) (*domain.RelationshipSnapshot, error) {
	idx.mu.RLock()
	if idx.snapshot != nil {
		snap := idx.snapshot
		idx.mu.RUnlock()
		return snap, nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Re-check : un autre lecteur a pu charger entre les deux locks.
	if idx.snapshot != nil {
		return idx.snapshot, nil
	}

	snap, err := idx.repo.LoadSnapshot(ctx, idx.viewerID)
	if err != nil {
		slog.Error("❌ Relationship snapshot load failed", "viewer_id", idx.viewerID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrRelationshipLoad, err)
	}
	if snap == nil {
		snap = domain.NewRelationshipSnapshot()
	}
	idx.snapshot = snap
	return snap, nil
}

// --- HOOKS DE MUTATION ---
// Reflètent immédiatement l'action que le viewer vient de prendre, pour que
// les évaluations suivantes soient justes sans refetch. Si l'index n'est pas
// encore chargé il n'y a rien à corriger : le prochain load lira l'état frais.

func (idx *RelationshipIndex) RecordBlock(accountID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snapshot == nil {
		return
	}
	idx.snapshot.Blocked[accountID] = struct{}{}
	// Bloquer coupe aussi les follows dans les deux sens (comportement du
	// service social) : le follow accepté du viewer saute avec.
	delete(idx.snapshot.FollowingAccepted, accountID)
}

func (idx *RelationshipIndex) RecordUnblock(accountID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snapshot == nil {
		return
	}
	delete(idx.snapshot.Blocked, accountID)
}

func (idx *RelationshipIndex) RecordFollow(accountID string, status domain.FollowStatus) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snapshot == nil {
		return
	}
	if status == domain.FollowAccepted {
		idx.snapshot.FollowingAccepted[accountID] = struct{}{}
	} else {
		// pending (ou rétrogradé vers pending) : ne compte pas.
		delete(idx.snapshot.FollowingAccepted, accountID)
	}
}

func (idx *RelationshipIndex) RecordUnfollow(accountID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snapshot == nil {
		return
	}
	delete(idx.snapshot.FollowingAccepted, accountID)
}
