package services

import (
	"context"
	"sync"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
)

// --- Fakes des ports pilotés, partagés par les tests du package ---

type fakeRelationshipRepo struct {
	mu    sync.Mutex
	snap  *domain.RelationshipSnapshot
	err   error
	calls int
}

func (f *fakeRelationshipRepo) LoadSnapshot(ctx context.Context, viewerID string) (*domain.RelationshipSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.snap == nil {
		return domain.NewRelationshipSnapshot(), nil
	}
	return f.snap, nil
}

func (f *fakeRelationshipRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeContentRepo struct {
	items map[string]*domain.ContentItem
}

func (f *fakeContentRepo) FindByID(ctx context.Context, itemID string) (*domain.ContentItem, error) {
	if item, ok := f.items[itemID]; ok {
		return item, nil
	}
	return nil, domain.ErrContentNotFound
}

// fakeEngagementRepo enregistre les écritures et permet de contrôler le
// timing : gate non-nil bloque chaque écriture jusqu'à sa fermeture, failErr
// fait échouer les écritures, failKind ne fait échouer QUE l'upsert de ce
// kind (pour tester les réponses périmées de façon déterministe).
type fakeEngagementRepo struct {
	mu          sync.Mutex
	gate        chan struct{}
	failErr     error
	failKind    domain.ReactionKind
	failKindErr error

	upserts []domain.ReactionKind
	deletes int
	saves   []bool
	relays  []bool

	counts   domain.ReactionCounts
	relayN   int
	commentN int
	loadErr  error
}

func (f *fakeEngagementRepo) write(err error, record func()) error {
	f.mu.Lock()
	gate := f.gate
	if err == nil {
		err = f.failErr
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	record()
	f.mu.Unlock()
	return nil
}

func (f *fakeEngagementRepo) UpsertReaction(ctx context.Context, itemID, viewerID string, kind domain.ReactionKind) error {
	f.mu.Lock()
	var err error
	if f.failKind != "" && kind == f.failKind {
		err = f.failKindErr
	}
	f.mu.Unlock()
	return f.write(err, func() { f.upserts = append(f.upserts, kind) })
}

func (f *fakeEngagementRepo) DeleteReaction(ctx context.Context, itemID, viewerID string) error {
	return f.write(nil, func() { f.deletes++ })
}

func (f *fakeEngagementRepo) SetSave(ctx context.Context, itemID, viewerID string, saved bool) error {
	return f.write(nil, func() { f.saves = append(f.saves, saved) })
}

func (f *fakeEngagementRepo) SetRelay(ctx context.Context, itemID, viewerID string, relayed bool) error {
	return f.write(nil, func() { f.relays = append(f.relays, relayed) })
}

func (f *fakeEngagementRepo) LoadState(ctx context.Context, itemID, viewerID string) (*domain.EngagementState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	st := domain.NewEngagementState(itemID)
	if f.counts != nil {
		st.Reactions = f.counts.Clone()
	}
	st.RelayCount = f.relayN
	st.CommentCount = f.commentN
	return st, nil
}

func (f *fakeEngagementRepo) AuthoritativeCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, 0, 0, f.loadErr
	}
	counts := f.counts
	if counts == nil {
		counts = make(domain.ReactionCounts)
	}
	return counts.Clone(), f.relayN, f.commentN, nil
}

func (f *fakeEngagementRepo) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeEngagementRepo) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

func (f *fakeEngagementRepo) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

type fakeCountCache struct {
	mu       sync.Mutex
	counts   domain.ReactionCounts
	relayN   int
	commentN int
	found    bool
	getErr   error
	sets     int
}

func (f *fakeCountCache) GetCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, 0, 0, false, f.getErr
	}
	if !f.found {
		return nil, 0, 0, false, nil
	}
	return f.counts.Clone(), f.relayN, f.commentN, true, nil
}

func (f *fakeCountCache) SetCounts(ctx context.Context, itemID string, reactions domain.ReactionCounts, relays, comments int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	return nil
}

func (f *fakeCountCache) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type notifyCall struct {
	authorID string
	actorID  string
	itemID   string
	field    domain.EngagementField
	kind     domain.ReactionKind
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) PublishEngagement(ctx context.Context, authorID, actorID, itemID string, field domain.EngagementField, kind domain.ReactionKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{authorID: authorID, actorID: actorID, itemID: itemID, field: field, kind: kind})
	return nil
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeNotifier) lastCall() notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// eventRecorder collecte les événements publiés, thread-safe (les
// résolutions arrivent depuis les goroutines de persistance).
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.EngagementEvent
}

func (r *eventRecorder) listener() func(domain.EngagementEvent) {
	return func(evt domain.EngagementEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, evt)
	}
}

func (r *eventRecorder) all() []domain.EngagementEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EngagementEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) hasRollback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range r.events {
		if evt.Rollback {
			return true
		}
	}
	return false
}
