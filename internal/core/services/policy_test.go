package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
)

func makeItem(authorID string, vis domain.Visibility) *domain.ContentItem {
	return &domain.ContentItem{
		ID:         "item-1",
		AuthorID:   authorID,
		Type:       domain.TypePost,
		Visibility: vis,
		CreatedAt:  time.Now(),
	}
}

func snapshotWith(mutate func(*domain.RelationshipSnapshot)) *domain.RelationshipSnapshot {
	snap := domain.NewRelationshipSnapshot()
	if mutate != nil {
		mutate(snap)
	}
	return snap
}

func TestEvaluateVisibility(t *testing.T) {
	const viewer = "viewer-1"
	const author = "author-1"

	tests := []struct {
		name     string
		viewerID string
		item     *domain.ContentItem
		snapshot *domain.RelationshipSnapshot
		want     domain.VisibilityDecision
	}{
		{
			name:     "nil item is not found",
			viewerID: viewer,
			item:     nil,
			snapshot: snapshotWith(nil),
			want:     domain.DecisionHiddenNotFound,
		},
		{
			name:     "owner sees own private item",
			viewerID: author,
			item:     makeItem(author, domain.VisibilityPrivate),
			snapshot: snapshotWith(nil),
			want:     domain.DecisionVisible,
		},
		{
			name:     "owner sees own item even when flagged private account",
			viewerID: author,
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.PrivateAccounts[author] = struct{}{}
			}),
			want: domain.DecisionVisible,
		},
		{
			name:     "viewer blocked the author",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.Blocked[author] = struct{}{}
			}),
			want: domain.DecisionHiddenNotFound,
		},
		{
			name:     "author blocked the viewer",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.BlockedBy[author] = struct{}{}
			}),
			want: domain.DecisionHiddenNotFound,
		},
		{
			name:     "anonymous sees public item",
			viewerID: "",
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(nil),
			want:     domain.DecisionVisible,
		},
		{
			name:     "anonymous needs auth for followers item",
			viewerID: "",
			item:     makeItem(author, domain.VisibilityFollowers),
			snapshot: snapshotWith(nil),
			want:     domain.DecisionHiddenAuthRequired,
		},
		{
			name:     "anonymous needs auth for private item",
			viewerID: "",
			item:     makeItem(author, domain.VisibilityPrivate),
			snapshot: snapshotWith(nil),
			want:     domain.DecisionHiddenAuthRequired,
		},
		{
			name:     "anonymous gated by private account even on public item",
			viewerID: "",
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.PrivateAccounts[author] = struct{}{}
			}),
			want: domain.DecisionHiddenAccountPrivate,
		},
		{
			name:     "missing snapshot fails closed",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: nil,
			want:     domain.DecisionHiddenNotFound,
		},
		{
			name:     "private item hidden even from accepted follower",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityPrivate),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.FollowingAccepted[author] = struct{}{}
			}),
			want: domain.DecisionHiddenPrivate,
		},
		{
			name:     "followers item hidden from non follower",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityFollowers),
			snapshot: snapshotWith(nil),
			want:     domain.DecisionHiddenFollowersOnly,
		},
		{
			name:     "followers item visible to accepted follower",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityFollowers),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.FollowingAccepted[author] = struct{}{}
			}),
			want: domain.DecisionVisible,
		},
		{
			name:     "public item of private account hidden from non follower",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.PrivateAccounts[author] = struct{}{}
			}),
			want: domain.DecisionHiddenAccountPrivate,
		},
		{
			name:     "public item of private account visible to accepted follower",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityPublic),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.PrivateAccounts[author] = struct{}{}
				s.FollowingAccepted[author] = struct{}{}
			}),
			want: domain.DecisionVisible,
		},
		{
			name:     "followers rule fires before private account rule",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityFollowers),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.PrivateAccounts[author] = struct{}{}
			}),
			want: domain.DecisionHiddenFollowersOnly,
		},
		{
			name:     "block beats follow",
			viewerID: viewer,
			item:     makeItem(author, domain.VisibilityFollowers),
			snapshot: snapshotWith(func(s *domain.RelationshipSnapshot) {
				s.FollowingAccepted[author] = struct{}{}
				s.BlockedBy[author] = struct{}{}
			}),
			want: domain.DecisionHiddenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateVisibility(tt.viewerID, tt.item, tt.snapshot)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Un item inexistant et un item dont l'auteur a bloqué le viewer doivent
// produire une décision STRICTEMENT identique : toute différence observable
// révélerait le blocage.
func TestBlockedIsIndistinguishableFromNonexistent(t *testing.T) {
	snap := snapshotWith(func(s *domain.RelationshipSnapshot) {
		s.BlockedBy["author-1"] = struct{}{}
	})

	nonexistent := EvaluateVisibility("viewer-1", nil, snap)
	blocked := EvaluateVisibility("viewer-1", makeItem("author-1", domain.VisibilityPublic), snap)

	assert.Equal(t, nonexistent, blocked)
	assert.Equal(t, domain.DecisionHiddenNotFound, blocked)
}

// Même entrée, même sortie : la décision est pure et stable, appelable
// spéculativement autant de fois qu'on veut.
func TestEvaluateVisibilityIsDeterministic(t *testing.T) {
	item := makeItem("author-1", domain.VisibilityFollowers)
	snap := snapshotWith(func(s *domain.RelationshipSnapshot) {
		s.FollowingAccepted["author-1"] = struct{}{}
	})

	first := EvaluateVisibility("viewer-1", item, snap)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, EvaluateVisibility("viewer-1", item, snap))
	}
}
