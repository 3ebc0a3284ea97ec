package domain

import "time"

type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
)

type EdgeType string

const (
	EdgeBlock  EdgeType = "block"
	EdgeFollow EdgeType = "follow"
)

// RelationshipEdge est un lien dirigé entre deux comptes.
// Seuls les follows "accepted" comptent pour la visibilité.
type RelationshipEdge struct {
	ActorID   string
	TargetID  string
	Type      EdgeType
	Status    FollowStatus // uniquement pour les follows
	CreatedAt time.Time
}

// RelationshipSnapshot est la photo des relations du viewer, chargée une fois
// par session. Les sets permettent des lookups O(1) pendant la pagination.
type RelationshipSnapshot struct {
	BlockedBy         map[string]struct{} // comptes qui ont bloqué le viewer
	Blocked           map[string]struct{} // comptes bloqués par le viewer
	FollowingAccepted map[string]struct{} // follows acceptés du viewer
	PrivateAccounts   map[string]struct{} // comptes flaggés privés
}

func NewRelationshipSnapshot() *RelationshipSnapshot {
	return &RelationshipSnapshot{
		BlockedBy:         make(map[string]struct{}),
		Blocked:           make(map[string]struct{}),
		FollowingAccepted: make(map[string]struct{}),
		PrivateAccounts:   make(map[string]struct{}),
	}
}

func (s *RelationshipSnapshot) IsBlockedEitherWay(accountID string) bool {
	if _, ok := s.BlockedBy[accountID]; ok {
		return true
	}
	_, ok := s.Blocked[accountID]
	return ok
}

func (s *RelationshipSnapshot) IsFollowingAccepted(accountID string) bool {
	_, ok := s.FollowingAccepted[accountID]
	return ok
}

func (s *RelationshipSnapshot) IsPrivateAccount(accountID string) bool {
	_, ok := s.PrivateAccounts[accountID]
	return ok
}
