package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

// Reconciler garde les compteurs d'une session alignés sur le reste de la
// plateforme. Deux sources, deux garanties différentes :
//   - le flux temps réel (deltas des autres viewers), best-effort, fusionné
//     immédiatement via le store qui gère lui-même le conflit avec une
//     mutation locale en vol ;
//   - le rafraîchissement périodique (compteurs de référence), qui corrige
//     les deltas manqués. Redis d'abord, Postgres en repli.
type Reconciler struct {
	store    *EngagementStore
	bus      *Broadcaster
	repo     ports.EngagementRepository
	cache    ports.CountCache
	interval time.Duration
}

func NewReconciler(store *EngagementStore, bus *Broadcaster, repo ports.EngagementRepository, cache ports.CountCache, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 45 * time.Second
	}
	return &Reconciler{
		store:    store,
		bus:      bus,
		repo:     repo,
		cache:    cache,
		interval: interval,
	}
}

// OnRemoteEvent implémente ports.RemoteEventHandler : un delta venu d'un
// autre viewer est fusionné tout de suite (ou mis en file par le store si le
// champ a une mutation locale en vol).
func (r *Reconciler) OnRemoteEvent(itemID string, field domain.EngagementField, kind domain.ReactionKind, countDelta int) {
	r.store.ApplyRemote(itemID, field, kind, countDelta)
}

// Run boucle jusqu'à annulation du contexte. À lancer dans sa propre
// goroutine par la session.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh recharge les compteurs de référence de chaque item encore rendu.
// Lecture non critique : un échec se logue et on attend le tick suivant.
func (r *Reconciler) refresh(ctx context.Context) {
	for _, itemID := range r.bus.ActiveItems() {
		reactions, relays, comments, ok := r.fetchCounts(ctx, itemID)
		if !ok {
			continue
		}
		r.store.ReplaceCounts(itemID, reactions, relays, comments)
	}
}

func (r *Reconciler) fetchCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, bool) {
	if r.cache != nil {
		reactions, relays, comments, found, err := r.cache.GetCounts(ctx, itemID)
		if err != nil {
			slog.Warn("⚠️  Count cache read failed, falling back to DB", "item_id", itemID, "error", err)
		} else if found {
			return reactions, relays, comments, true
		}
	}

	reactions, relays, comments, err := r.repo.AuthoritativeCounts(ctx, itemID)
	if err != nil {
		slog.Warn("⚠️  Authoritative count refresh failed", "item_id", itemID, "error", err)
		return nil, 0, 0, false
	}

	if r.cache != nil {
		if err := r.cache.SetCounts(ctx, itemID, reactions, relays, comments); err != nil {
			slog.Warn("⚠️  Count cache write failed", "item_id", itemID, "error", err)
		}
	}
	return reactions, relays, comments, true
}
