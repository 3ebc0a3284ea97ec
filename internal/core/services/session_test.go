package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

func newSessionDeps(relRepo *fakeRelationshipRepo, content *fakeContentRepo) SessionDeps {
	return SessionDeps{
		Relationships: relRepo,
		Content:       content,
		Engagement:    &fakeEngagementRepo{},
		Cache:         &fakeCountCache{},
		Notifier:      &fakeNotifier{},
	}
}

func TestViewContentVisible(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityPublic)
	s := NewSession("viewer-1", newSessionDeps(
		&fakeRelationshipRepo{},
		&fakeContentRepo{items: map[string]*domain.ContentItem{item.ID: item}},
	))
	defer s.Close()

	got, decision, err := s.ViewContent(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionVisible, decision)
	assert.Equal(t, item, got)
}

// La réponse pour un item inexistant et pour un item d'auteur bloquant doit
// être IDENTIQUE champ à champ : même décision, même erreur, pas d'item.
func TestViewContentBlockedEqualsNonexistent(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityPublic)
	relRepo := &fakeRelationshipRepo{snap: snapshotWith(func(s *domain.RelationshipSnapshot) {
		s.BlockedBy["author-1"] = struct{}{}
	})}
	s := NewSession("viewer-1", newSessionDeps(
		relRepo,
		&fakeContentRepo{items: map[string]*domain.ContentItem{item.ID: item}},
	))
	defer s.Close()

	blockedItem, blockedDecision, blockedErr := s.ViewContent(context.Background(), item.ID)
	missingItem, missingDecision, missingErr := s.ViewContent(context.Background(), "no-such-item")

	assert.Equal(t, missingItem, blockedItem)
	assert.Equal(t, missingDecision, blockedDecision)
	assert.Equal(t, missingErr, blockedErr)
	assert.Nil(t, blockedItem)
	assert.ErrorIs(t, blockedErr, domain.ErrContentNotFound)
}

func TestViewContentGatedReturnsDecisionWithoutItem(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityFollowers)
	s := NewSession("viewer-1", newSessionDeps(
		&fakeRelationshipRepo{},
		&fakeContentRepo{items: map[string]*domain.ContentItem{item.ID: item}},
	))
	defer s.Close()

	got, decision, err := s.ViewContent(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHiddenFollowersOnly, decision)
	assert.Nil(t, got, "un item gated ne sort jamais de la session")
}

func TestViewContentFailsClosedOnRelationshipError(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityPublic)
	s := NewSession("viewer-1", newSessionDeps(
		&fakeRelationshipRepo{err: errors.New("db down")},
		&fakeContentRepo{items: map[string]*domain.ContentItem{item.ID: item}},
	))
	defer s.Close()

	got, decision, err := s.ViewContent(context.Background(), item.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRelationshipLoad)
	assert.Nil(t, got)
	assert.NotEqual(t, domain.DecisionVisible, decision, "jamais Visible sans relations connues")
}

// Scénario : bloquer un compte pendant la session cache immédiatement son
// contenu ; débloquer le re-montre. Sans refetch DB.
func TestBlockUnblockMidSession(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityPublic)
	relRepo := &fakeRelationshipRepo{}
	s := NewSession("viewer-1", newSessionDeps(
		relRepo,
		&fakeContentRepo{items: map[string]*domain.ContentItem{item.ID: item}},
	))
	defer s.Close()

	_, decision, err := s.ViewContent(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionVisible, decision)

	s.RecordBlock("author-1")
	_, decision, err = s.ViewContent(context.Background(), item.ID)
	assert.Equal(t, domain.DecisionHiddenNotFound, decision)
	assert.ErrorIs(t, err, domain.ErrContentNotFound)

	s.RecordUnblock("author-1")
	got, decision, err := s.ViewContent(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionVisible, decision)
	assert.Equal(t, item, got)

	assert.Equal(t, 1, relRepo.callCount(), "un seul fetch de relations pour toute la session")
}

// Scénario : le follow accepté saute (rétrogradé pending) pendant la session,
// le contenu followers-only se referme.
func TestFollowDowngradeMidSession(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityFollowers)
	relRepo := &fakeRelationshipRepo{snap: snapshotWith(func(s *domain.RelationshipSnapshot) {
		s.FollowingAccepted["author-1"] = struct{}{}
	})}
	s := NewSession("viewer-1", newSessionDeps(
		relRepo,
		&fakeContentRepo{items: map[string]*domain.ContentItem{item.ID: item}},
	))
	defer s.Close()

	_, decision, err := s.ViewContent(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionVisible, decision)

	s.RecordFollow("author-1", domain.FollowPending)

	_, decision, err = s.ViewContent(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHiddenFollowersOnly, decision)
}

func TestSessionToggleRoundTrip(t *testing.T) {
	s := NewSession("viewer-1", newSessionDeps(&fakeRelationshipRepo{}, &fakeContentRepo{}))
	defer s.Close()

	rec := &eventRecorder{}
	unsub := s.Subscribe(testItem, rec.listener())
	defer unsub()

	require.NoError(t, s.Toggle(context.Background(), ports.ToggleCmd{
		ItemID: testItem, AuthorID: "author-1", Field: domain.FieldReaction, Kind: domain.ReactionAdmire,
	}))

	st, err := s.GetEngagement(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionAdmire, st.UserReaction)
	assert.Equal(t, 1, rec.count())
}

func TestManagerReturnsSameSession(t *testing.T) {
	m := NewSessionManager(newSessionDeps(&fakeRelationshipRepo{}, &fakeContentRepo{}))
	defer m.CloseAll()

	a := m.GetOrCreate("viewer-1")
	b := m.GetOrCreate("viewer-1")
	other := m.GetOrCreate("viewer-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}

func TestDispatchRemoteSkipsActor(t *testing.T) {
	m := NewSessionManager(newSessionDeps(&fakeRelationshipRepo{}, &fakeContentRepo{}))
	defer m.CloseAll()

	actor := m.GetOrCreate("viewer-1")
	other := m.GetOrCreate("viewer-2")

	// Les deux sessions ont l'item rendu.
	_, _ = actor.GetEngagement(context.Background(), testItem)
	_, _ = other.GetEngagement(context.Background(), testItem)

	m.DispatchRemote(testItem, domain.FieldReaction, domain.ReactionSnap, 1, "viewer-1")

	// L'acteur est exclu (son delta local est déjà compté), l'autre reçoit.
	actorState, _ := actor.GetEngagement(context.Background(), testItem)
	otherState, _ := other.GetEngagement(context.Background(), testItem)
	assert.Equal(t, 0, actorState.Reactions[domain.ReactionSnap])
	assert.Equal(t, 1, otherState.Reactions[domain.ReactionSnap])
}

func TestDropClosesSession(t *testing.T) {
	m := NewSessionManager(newSessionDeps(&fakeRelationshipRepo{}, &fakeContentRepo{}))

	s := m.GetOrCreate("viewer-1")
	m.Drop("viewer-1")

	// Une nouvelle demande recrée une session fraîche.
	fresh := m.GetOrCreate("viewer-1")
	defer m.CloseAll()
	assert.NotSame(t, s, fresh)

	// Laisser le temps à la boucle de rafraîchissement de s'arrêter sans
	// paniquer (smoke check).
	time.Sleep(10 * time.Millisecond)
}
