package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

// SessionDeps regroupe les ports pilotés dont chaque session a besoin.
type SessionDeps struct {
	Relationships ports.RelationshipRepository
	Content       ports.ContentRepository
	Engagement    ports.EngagementRepository
	Cache         ports.CountCache
	Notifier      ports.NotificationPublisher
	Deltas        ports.CountDeltaPublisher

	// RefreshInterval pilote le rafraîchissement périodique des compteurs
	// (45s par défaut).
	RefreshInterval time.Duration

	// OnToggleError remonte les échecs de persistance asynchrones (déjà
	// rollbackés localement) vers la surface appelante. Optionnel.
	OnToggleError func(itemID string, err error)
}

// Session est l'implémentation de ports.ViewerSession : une instance par
// session de navigation, qui compose l'index de relations, le store
// d'engagement, le bus inter-vues et le réconciliateur temps réel.
type Session struct {
	viewerID   string
	index      *RelationshipIndex
	store      *EngagementStore
	bus        *Broadcaster
	reconciler *Reconciler
	content    ports.ContentRepository
	cancel     context.CancelFunc
}

var _ ports.ViewerSession = (*Session)(nil)

// NewSession construit et démarre la session (la boucle de rafraîchissement
// tourne jusqu'à Close).
func NewSession(viewerID string, deps SessionDeps) *Session {
	bus := NewBroadcaster()
	store := NewEngagementStore(viewerID, deps.Engagement, deps.Notifier, deps.Deltas, bus, deps.OnToggleError)
	// Dernière vue détachée = état de l'item lâché.
	bus.OnRoomEmpty(store.Release)

	rec := NewReconciler(store, bus, deps.Engagement, deps.Cache, deps.RefreshInterval)

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)

	return &Session{
		viewerID:   viewerID,
		index:      NewRelationshipIndex(viewerID, deps.Relationships),
		store:      store,
		bus:        bus,
		reconciler: rec,
		content:    deps.Content,
		cancel:     cancel,
	}
}

func (s *Session) ViewerID() string { return s.viewerID }

// ResolveVisibility charge (paresseusement) l'index de relations puis évalue
// la politique. Échec de chargement = fail closed : on ne montre jamais un
// item dont on ne connaît pas les relations.
func (s *Session) ResolveVisibility(ctx context.Context, item *domain.ContentItem) (domain.VisibilityDecision, error) {
	snapshot, err := s.index.Snapshot(ctx)
	if err != nil {
		return domain.DecisionHiddenNotFound, err
	}
	return EvaluateVisibility(s.viewerID, item, snapshot), nil
}

// ViewContent charge l'item puis applique la politique. Un auteur bloqué et
// un id inexistant produisent EXACTEMENT la même réponse, indistinguable par
// l'appelant.
func (s *Session) ViewContent(ctx context.Context, itemID string) (*domain.ContentItem, domain.VisibilityDecision, error) {
	item, err := s.content.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			return nil, domain.DecisionHiddenNotFound, domain.ErrContentNotFound
		}
		return nil, domain.DecisionHiddenNotFound, err
	}

	decision, err := s.ResolveVisibility(ctx, item)
	if err != nil {
		return nil, decision, err
	}

	switch decision {
	case domain.DecisionVisible:
		return item, decision, nil
	case domain.DecisionHiddenNotFound:
		// Blocage : même réponse qu'un item qui n'existe pas.
		return nil, decision, domain.ErrContentNotFound
	default:
		// Gated : l'appelant rend l'écran d'accès restreint correspondant à
		// la décision, sans voir le contenu.
		return nil, decision, nil
	}
}

func (s *Session) GetEngagement(ctx context.Context, itemID string) (*domain.EngagementState, error) {
	return s.store.Get(ctx, itemID), nil
}

func (s *Session) Toggle(ctx context.Context, cmd ports.ToggleCmd) error {
	return s.store.Toggle(ctx, cmd)
}

func (s *Session) Subscribe(itemID string, l ports.Listener) ports.UnsubscribeFunc {
	return s.bus.Subscribe(itemID, l)
}

func (s *Session) RecordBlock(accountID string)   { s.index.RecordBlock(accountID) }
func (s *Session) RecordUnblock(accountID string) { s.index.RecordUnblock(accountID) }
func (s *Session) RecordFollow(accountID string, status domain.FollowStatus) {
	s.index.RecordFollow(accountID, status)
}
func (s *Session) RecordUnfollow(accountID string) { s.index.RecordUnfollow(accountID) }

// Close arrête le rafraîchissement. Volontairement sans persistance : tout
// ce qui devait être écrit est déjà parti (ou en vol, détaché de ce
// contexte).
func (s *Session) Close() {
	s.cancel()
}

// --- MANAGER ---

// SessionManager tient les sessions vivantes et leur distribue le flux
// temps réel.
type SessionManager struct {
	mu       sync.RWMutex
	deps     SessionDeps
	sessions map[string]*Session
}

func NewSessionManager(deps SessionDeps) *SessionManager {
	return &SessionManager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate renvoie la session du viewer, en la créant au premier accès.
// viewerID vide = session anonyme (lecture seule).
func (m *SessionManager) GetOrCreate(viewerID string) *Session {
	m.mu.RLock()
	if s, ok := m.sessions[viewerID]; ok {
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[viewerID]; ok {
		return s
	}
	s := NewSession(viewerID, m.deps)
	m.sessions[viewerID] = s
	slog.Info("🎫 Session created", "viewer_id", viewerID)
	return s
}

// Drop ferme et retire la session du viewer.
func (m *SessionManager) Drop(viewerID string) {
	m.mu.Lock()
	s, ok := m.sessions[viewerID]
	if ok {
		delete(m.sessions, viewerID)
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		slog.Info("👋 Session dropped", "viewer_id", viewerID)
	}
}

// DispatchRemote fan-out un delta temps réel à toutes les sessions, sauf
// celle de l'acteur lui-même (son delta local est déjà appliqué ; le
// recompter le doublerait).
func (m *SessionManager) DispatchRemote(itemID string, field domain.EngagementField, kind domain.ReactionKind, countDelta int, actorID string) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if id == actorID && actorID != "" {
			continue
		}
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		s.reconciler.OnRemoteEvent(itemID, field, kind, countDelta)
	}
}

// CloseAll ferme toutes les sessions (arrêt du service).
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
