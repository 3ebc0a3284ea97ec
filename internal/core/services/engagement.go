package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

// fieldKey identifie la machine à états d'UN champ d'UN item.
type fieldKey struct {
	itemID string
	field  domain.EngagementField
}

// remoteDelta est un delta distant mis en file pendant qu'une mutation locale
// du même champ est en vol.
type remoteDelta struct {
	kind  domain.ReactionKind
	delta int
}

// mutation capture ce qu'il faut pour annuler exactement un toggle optimiste.
type mutation struct {
	field        domain.EngagementField
	prevReaction domain.ReactionKind
	newReaction  domain.ReactionKind
	prevActive   bool
	newActive    bool
	relayDelta   int
}

// EngagementStore tient l'état interactif par item pour UN viewer, et
// coordonne les mutations optimistes : application locale immédiate,
// persistance asynchrone, supersession par numéro de séquence, rollback.
//
// Machine à états par (item, champ) : Idle -> Pending -> Idle, avec le
// chemin d'erreur Pending -> Idle(rolled back). Pas de verrou distribué :
// l'intention la plus récente gagne via la séquence monotone, quel que soit
// l'ordre d'arrivée des réponses réseau.
type EngagementStore struct {
	mu       sync.Mutex
	viewerID string
	repo     ports.EngagementRepository
	notifier ports.NotificationPublisher
	deltas   ports.CountDeltaPublisher
	bus      *Broadcaster
	onError  func(itemID string, err error)

	states  map[string]*domain.EngagementState
	seqs    map[fieldKey]uint64
	pending map[fieldKey]bool
	queued  map[fieldKey][]remoteDelta
}

func NewEngagementStore(
	viewerID string,
	repo ports.EngagementRepository,
	notifier ports.NotificationPublisher,
	deltas ports.CountDeltaPublisher,
	bus *Broadcaster,
	onError func(itemID string, err error),
) *EngagementStore {
	if onError == nil {
		onError = func(itemID string, err error) {
			slog.Warn("⚠️  Engagement toggle error", "item_id", itemID, "error", err)
		}
	}
	return &EngagementStore{
		viewerID: viewerID,
		repo:     repo,
		notifier: notifier,
		deltas:   deltas,
		bus:      bus,
		onError:  onError,
		states:   make(map[string]*domain.EngagementState),
		seqs:     make(map[fieldKey]uint64),
		pending:  make(map[fieldKey]bool),
		queued:   make(map[fieldKey][]remoteDelta),
	}
}

// Get renvoie un snapshot de l'état de l'item, en l'hydratant depuis la
// persistance au premier rendu. L'hydratation est une lecture non critique
// pour la sécurité : si elle échoue on démarre vide (et on le logue), on ne
// bloque pas le rendu.
func (s *EngagementStore) Get(ctx context.Context, itemID string) *domain.EngagementState {
	s.mu.Lock()
	if st, ok := s.states[itemID]; ok {
		snap := st.Clone()
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	var loaded *domain.EngagementState
	if s.viewerID != "" {
		st, err := s.repo.LoadState(ctx, itemID, s.viewerID)
		if err != nil {
			slog.Warn("⚠️  Engagement hydration failed, starting empty", "item_id", itemID, "error", err)
		} else {
			loaded = st
		}
	} else if s.repo != nil {
		// Viewer anonyme : compteurs publics seulement.
		counts, relays, comments, err := s.repo.AuthoritativeCounts(ctx, itemID)
		if err == nil {
			loaded = domain.NewEngagementState(itemID)
			loaded.Reactions = counts
			loaded.RelayCount = relays
			loaded.CommentCount = comments
		}
	}
	if loaded == nil {
		loaded = domain.NewEngagementState(itemID)
	}
	loaded.ItemID = itemID

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check : une autre vue a pu hydrater pendant notre lecture.
	if st, ok := s.states[itemID]; ok {
		return st.Clone()
	}
	s.states[itemID] = loaded
	return loaded.Clone()
}

// Toggle applique la mutation optimiste. Retour synchrone : l'état local et
// toutes les vues abonnées sont déjà à jour quand la fonction rend la main.
// La persistance part en arrière-plan, détachée de l'annulation de la vue
// appelante (une vue démontée ne doit pas annuler l'écriture).
func (s *EngagementStore) Toggle(ctx context.Context, cmd ports.ToggleCmd) error {
	if s.viewerID == "" {
		return domain.ErrAnonymousToggle
	}
	if !cmd.Field.IsValid() {
		return domain.ErrInvalidField
	}
	if cmd.Field == domain.FieldReaction && !cmd.Kind.IsValid() {
		return domain.ErrInvalidReaction
	}
	if cmd.Field == domain.FieldRelay && cmd.AuthorID == s.viewerID {
		return domain.ErrSelfRelay
	}

	key := fieldKey{itemID: cmd.ItemID, field: cmd.Field}

	s.mu.Lock()
	st, ok := s.states[cmd.ItemID]
	if !ok {
		st = domain.NewEngagementState(cmd.ItemID)
		s.states[cmd.ItemID] = st
	}

	var (
		mut mutation
		evt domain.EngagementEvent
	)

	switch cmd.Field {
	case domain.FieldReaction:
		prev := st.UserReaction
		if prev == cmd.Kind {
			// Re-taper le même kind = retirer.
			st.UserReaction = domain.ReactionNone
			st.Reactions.Apply(prev, -1)
			mut = mutation{field: cmd.Field, prevReaction: prev, newReaction: domain.ReactionNone}
			evt = domain.EngagementEvent{
				ItemID: cmd.ItemID, Field: cmd.Field,
				IsActive: false, CountDelta: -1, Kind: prev,
			}
		} else {
			// Poser ou changer : UNE transition atomique (ancien kind -1,
			// nouveau +1, réaction remplacée), jamais deux toggles séparés.
			delta := 1
			if prev != domain.ReactionNone {
				st.Reactions.Apply(prev, -1)
				delta = 0 // changer de kind ne bouge pas le total
			}
			st.Reactions.Apply(cmd.Kind, 1)
			st.UserReaction = cmd.Kind
			mut = mutation{field: cmd.Field, prevReaction: prev, newReaction: cmd.Kind}
			evt = domain.EngagementEvent{
				ItemID: cmd.ItemID, Field: cmd.Field,
				IsActive: true, CountDelta: delta, Kind: cmd.Kind,
			}
		}

	case domain.FieldSave:
		if st.Saved == cmd.Active {
			s.mu.Unlock()
			return nil // déjà dans l'état voulu
		}
		mut = mutation{field: cmd.Field, prevActive: st.Saved, newActive: cmd.Active}
		st.Saved = cmd.Active
		evt = domain.EngagementEvent{
			ItemID: cmd.ItemID, Field: cmd.Field, IsActive: cmd.Active,
		}

	case domain.FieldRelay:
		if st.Relayed == cmd.Active {
			s.mu.Unlock()
			return nil
		}
		delta := 1
		if !cmd.Active {
			delta = -1
		}
		mut = mutation{field: cmd.Field, prevActive: st.Relayed, newActive: cmd.Active, relayDelta: delta}
		st.Relayed = cmd.Active
		st.ApplyRelayDelta(delta)
		evt = domain.EngagementEvent{
			ItemID: cmd.ItemID, Field: cmd.Field, IsActive: cmd.Active, CountDelta: delta,
		}
	}

	s.seqs[key]++
	seq := s.seqs[key]
	s.pending[key] = true
	s.mu.Unlock()

	// Publication synchrone : les autres vues du même item convergent dans
	// ce tick.
	s.bus.Publish(cmd.ItemID, evt)

	go s.persist(context.WithoutCancel(ctx), cmd, key, seq, mut)

	return nil
}

// persist pousse la mutation vers la persistance puis résout la machine à
// états. Les opérations du repo sont idempotentes : un retry sur échec
// ambigu ne crée pas de doublon.
func (s *EngagementStore) persist(ctx context.Context, cmd ports.ToggleCmd, key fieldKey, seq uint64, mut mutation) {
	var err error
	switch cmd.Field {
	case domain.FieldReaction:
		if mut.newReaction == domain.ReactionNone {
			err = s.repo.DeleteReaction(ctx, cmd.ItemID, s.viewerID)
		} else {
			err = s.repo.UpsertReaction(ctx, cmd.ItemID, s.viewerID, mut.newReaction)
		}
	case domain.FieldSave:
		err = s.repo.SetSave(ctx, cmd.ItemID, s.viewerID, mut.newActive)
	case domain.FieldRelay:
		err = s.repo.SetRelay(ctx, cmd.ItemID, s.viewerID, mut.newActive)
	}

	s.resolve(cmd, key, seq, mut, err)
}

// resolve applique la règle de supersession : seule la réponse de la
// DERNIÈRE intention émise pour ce (item, champ) compte. Les réponses
// périmées sont ignorées en silence : last-writer-wins par intention, pas
// par ordre d'arrivée.
func (s *EngagementStore) resolve(cmd ports.ToggleCmd, key fieldKey, seq uint64, mut mutation, persistErr error) {
	s.mu.Lock()

	if s.seqs[key] != seq {
		// Une intention plus récente a supplanté celle-ci ; sa propre
		// résolution fera foi.
		s.mu.Unlock()
		return
	}
	s.pending[key] = false

	st := s.states[cmd.ItemID]
	var events []domain.EngagementEvent

	if persistErr != nil && st != nil {
		events = append(events, s.rollbackLocked(st, cmd.ItemID, mut))
	}

	// Dans tous les cas (succès, rollback, item libéré) on draine les deltas
	// distants mis en file pendant le vol.
	events = append(events, s.drainQueueLocked(st, key)...)
	s.mu.Unlock()

	for _, evt := range events {
		s.bus.Publish(cmd.ItemID, evt)
	}

	if persistErr != nil {
		slog.Warn("⚠️  Engagement persistence failed, rolled back",
			"item_id", cmd.ItemID, "field", cmd.Field, "error", persistErr)
		s.onError(cmd.ItemID, fmt.Errorf("%w: %v", domain.ErrToggleFailed, persistErr))
		return
	}

	s.publishConfirmedDeltas(cmd, mut)
	s.maybeNotify(cmd, mut)
}

// publishConfirmedDeltas pousse les deltas persistés vers les autres
// instances. Best-effort, hors du chemin critique.
func (s *EngagementStore) publishConfirmedDeltas(cmd ports.ToggleCmd, mut mutation) {
	if s.deltas == nil {
		return
	}

	type wireDelta struct {
		field domain.EngagementField
		kind  domain.ReactionKind
		delta int
	}
	var out []wireDelta

	switch cmd.Field {
	case domain.FieldReaction:
		if mut.prevReaction != domain.ReactionNone {
			out = append(out, wireDelta{field: cmd.Field, kind: mut.prevReaction, delta: -1})
		}
		if mut.newReaction != domain.ReactionNone {
			out = append(out, wireDelta{field: cmd.Field, kind: mut.newReaction, delta: 1})
		}
	case domain.FieldRelay:
		out = append(out, wireDelta{field: cmd.Field, delta: mut.relayDelta})
	default:
		// Les saves sont privés : pas de compteur public à diffuser.
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, d := range out {
			_ = s.deltas.PublishCountDelta(ctx, cmd.ItemID, d.field, d.kind, d.delta, s.viewerID)
		}
	}()
}

// rollbackLocked restaure exactement la valeur capturée avant le toggle.
// Appelé sous lock ; renvoie l'événement de rollback à publier.
func (s *EngagementStore) rollbackLocked(st *domain.EngagementState, itemID string, mut mutation) domain.EngagementEvent {
	switch mut.field {
	case domain.FieldReaction:
		// Inverse exact de la transition appliquée.
		if mut.newReaction != domain.ReactionNone {
			st.Reactions.Apply(mut.newReaction, -1)
		}
		if mut.prevReaction != domain.ReactionNone {
			st.Reactions.Apply(mut.prevReaction, 1)
		}
		st.UserReaction = mut.prevReaction
		delta := 0
		switch {
		case mut.newReaction == domain.ReactionNone:
			delta = 1 // le retrait est annulé
		case mut.prevReaction == domain.ReactionNone:
			delta = -1 // l'ajout est annulé
		}
		return domain.EngagementEvent{
			ItemID: itemID, Field: mut.field,
			IsActive: mut.prevReaction != domain.ReactionNone,
			Kind:     mut.prevReaction, CountDelta: delta, Rollback: true,
		}

	case domain.FieldRelay:
		st.Relayed = mut.prevActive
		st.ApplyRelayDelta(-mut.relayDelta)
		return domain.EngagementEvent{
			ItemID: itemID, Field: mut.field,
			IsActive: mut.prevActive, CountDelta: -mut.relayDelta, Rollback: true,
		}

	default: // save
		st.Saved = mut.prevActive
		return domain.EngagementEvent{
			ItemID: itemID, Field: mut.field, IsActive: mut.prevActive, Rollback: true,
		}
	}
}

// drainQueueLocked applique les deltas distants différés. Appelé sous lock.
func (s *EngagementStore) drainQueueLocked(st *domain.EngagementState, key fieldKey) []domain.EngagementEvent {
	queue := s.queued[key]
	if len(queue) == 0 {
		return nil
	}
	delete(s.queued, key)
	if st == nil {
		return nil // item libéré entre-temps, plus personne à prévenir
	}

	events := make([]domain.EngagementEvent, 0, len(queue))
	for _, rd := range queue {
		events = append(events, s.applyRemoteLocked(st, key.field, rd.kind, rd.delta))
	}
	return events
}

// ApplyRemote fusionne un delta venu d'un AUTRE viewer. Si une mutation
// locale du même champ est en vol, le delta est mis en file et appliqué à la
// résolution. L'update distante ne se bat pas visuellement avec le tap non
// confirmé du viewer.
func (s *EngagementStore) ApplyRemote(itemID string, field domain.EngagementField, kind domain.ReactionKind, delta int) {
	key := fieldKey{itemID: itemID, field: field}

	s.mu.Lock()
	st, ok := s.states[itemID]
	if !ok {
		// Aucune vue montée sur cet item : rien à fusionner.
		s.mu.Unlock()
		return
	}
	if s.pending[key] {
		s.queued[key] = append(s.queued[key], remoteDelta{kind: kind, delta: delta})
		s.mu.Unlock()
		return
	}
	evt := s.applyRemoteLocked(st, field, kind, delta)
	s.mu.Unlock()

	s.bus.Publish(itemID, evt)
}

func (s *EngagementStore) applyRemoteLocked(st *domain.EngagementState, field domain.EngagementField, kind domain.ReactionKind, delta int) domain.EngagementEvent {
	isActive := false
	switch field {
	case domain.FieldReaction:
		st.Reactions.Apply(kind, delta)
		isActive = st.UserReaction != domain.ReactionNone
	case domain.FieldRelay:
		st.ApplyRelayDelta(delta)
		isActive = st.Relayed
	case domain.FieldComment:
		st.ApplyCommentDelta(delta)
	}
	return domain.EngagementEvent{
		ItemID: st.ItemID, Field: field, Kind: kind,
		IsActive: isActive, CountDelta: delta, Remote: true,
	}
}

// ReplaceCounts écrase les compteurs locaux avec les valeurs de référence
// (rafraîchissement périodique). Les champs avec une mutation en vol sont
// laissés tels quels : la résolution locale prime.
func (s *EngagementStore) ReplaceCounts(itemID string, reactions domain.ReactionCounts, relayCount, commentCount int) {
	s.mu.Lock()
	st, ok := s.states[itemID]
	if !ok {
		s.mu.Unlock()
		return
	}

	var events []domain.EngagementEvent

	if !s.pending[fieldKey{itemID: itemID, field: domain.FieldReaction}] {
		oldTotal := st.Reactions.Total()
		st.Reactions = reactions.Clone()
		if newTotal := st.Reactions.Total(); newTotal != oldTotal {
			events = append(events, domain.EngagementEvent{
				ItemID: itemID, Field: domain.FieldReaction,
				IsActive: st.UserReaction != domain.ReactionNone,
				Kind:     st.UserReaction,
				CountDelta: newTotal - oldTotal, Remote: true,
			})
		}
	}

	if !s.pending[fieldKey{itemID: itemID, field: domain.FieldRelay}] && relayCount >= 0 && relayCount != st.RelayCount {
		delta := relayCount - st.RelayCount
		st.RelayCount = relayCount
		events = append(events, domain.EngagementEvent{
			ItemID: itemID, Field: domain.FieldRelay,
			IsActive: st.Relayed, CountDelta: delta, Remote: true,
		})
	}

	if commentCount >= 0 && commentCount != st.CommentCount {
		delta := commentCount - st.CommentCount
		st.CommentCount = commentCount
		events = append(events, domain.EngagementEvent{
			ItemID: itemID, Field: domain.FieldComment,
			CountDelta: delta, Remote: true,
		})
	}
	s.mu.Unlock()

	for _, evt := range events {
		s.bus.Publish(itemID, evt)
	}
}

// Release lâche l'état d'un item que plus aucune vue ne référence. Les
// séquences sont conservées : une réponse encore en vol doit toujours
// pouvoir être reconnue comme périmée.
func (s *EngagementStore) Release(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, itemID)
	for _, f := range []domain.EngagementField{domain.FieldReaction, domain.FieldSave, domain.FieldRelay} {
		delete(s.queued, fieldKey{itemID: itemID, field: f})
	}
}

// maybeNotify prévient l'auteur après une action réussie qui le concerne
// (réaction posée/changée, relay posé ; jamais un retrait, jamais soi-même).
// Fire-and-forget : l'échec se logue, il n'annule rien.
func (s *EngagementStore) maybeNotify(cmd ports.ToggleCmd, mut mutation) {
	if s.notifier == nil || cmd.AuthorID == "" || cmd.AuthorID == s.viewerID {
		return
	}

	alerting := false
	switch cmd.Field {
	case domain.FieldReaction:
		alerting = mut.newReaction != domain.ReactionNone
	case domain.FieldRelay:
		alerting = mut.newActive
	}
	if !alerting {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.PublishEngagement(ctx, cmd.AuthorID, s.viewerID, cmd.ItemID, cmd.Field, mut.newReaction); err != nil {
			slog.Warn("⚠️  Notification publish failed", "item_id", cmd.ItemID, "author_id", cmd.AuthorID, "error", err)
		}
	}()
}
