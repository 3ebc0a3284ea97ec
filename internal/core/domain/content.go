package domain

import "time"

type ContentType string

const (
	TypePost ContentType = "post"
	TypeTake ContentType = "take" // Vidéo courte
)

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// JournalMeta est la métadonnée optionnelle des posts "journal".
// Structure taguée validée à la frontière, pas un map[string]any :
// l'évaluateur et le store n'ont jamais à faire de nil-checks dessus.
type JournalMeta struct {
	Weather     string
	Temperature string
	Mood        string
}

// ContentItem est immuable pour ce service (l'édition est hors périmètre).
type ContentItem struct {
	ID             string
	AuthorID       string
	Type           ContentType
	Visibility     Visibility
	ContentWarning string // vide = pas d'avertissement
	Journal        *JournalMeta
	CreatedAt      time.Time
}

func (c *ContentItem) HasContentWarning() bool {
	return c.ContentWarning != ""
}

// VisibilityDecision classifie si (et pourquoi) un item est montré à un viewer.
type VisibilityDecision int

const (
	DecisionVisible VisibilityDecision = iota

	// DecisionHiddenNotFound couvre à la fois l'item inexistant ET le blocage
	// (dans les deux sens). Les deux cas doivent rester structurellement
	// identiques : répondre différemment révélerait le blocage au bloqué.
	DecisionHiddenNotFound

	DecisionHiddenPrivate
	DecisionHiddenFollowersOnly
	DecisionHiddenAccountPrivate
	DecisionHiddenAuthRequired
)

func (d VisibilityDecision) String() string {
	switch d {
	case DecisionVisible:
		return "visible"
	case DecisionHiddenNotFound:
		return "hidden_not_found"
	case DecisionHiddenPrivate:
		return "hidden_private"
	case DecisionHiddenFollowersOnly:
		return "hidden_followers_only"
	case DecisionHiddenAccountPrivate:
		return "hidden_account_private"
	case DecisionHiddenAuthRequired:
		return "hidden_auth_required"
	default:
		return "unknown"
	}
}

// IsVisible évite aux appelants de comparer l'enum partout.
func (d VisibilityDecision) IsVisible() bool {
	return d == DecisionVisible
}
