package domain

// ReactionKind est un ensemble fermé. Toute valeur hors de cet ensemble est
// rejetée à la frontière (voir IsValid), jamais stockée.
type ReactionKind string

const (
	ReactionAdmire   ReactionKind = "admire"
	ReactionSnap     ReactionKind = "snap"
	ReactionOvation  ReactionKind = "ovation"
	ReactionSupport  ReactionKind = "support"
	ReactionInspired ReactionKind = "inspired"
	ReactionApplaud  ReactionKind = "applaud"

	// ReactionNone = aucune réaction (valeur "off" d'un toggle).
	ReactionNone ReactionKind = ""
)

var reactionKinds = map[ReactionKind]struct{}{
	ReactionAdmire:   {},
	ReactionSnap:     {},
	ReactionOvation:  {},
	ReactionSupport:  {},
	ReactionInspired: {},
	ReactionApplaud:  {},
}

func (k ReactionKind) IsValid() bool {
	_, ok := reactionKinds[k]
	return ok
}

// EngagementField identifie le champ interactif visé par un toggle.
type EngagementField string

const (
	FieldReaction EngagementField = "reaction"
	FieldSave     EngagementField = "save"
	FieldRelay    EngagementField = "relay"

	// FieldComment n'existe que dans le flux temps réel (compteur affiché) :
	// ce n'est pas une cible de toggle, IsValid le rejette.
	FieldComment EngagementField = "comment"
)

// IsValid dit si le champ est une cible de toggle légitime.
func (f EngagementField) IsValid() bool {
	return f == FieldReaction || f == FieldSave || f == FieldRelay
}

// ReactionCounts tient un compteur par kind. Invariant : jamais négatif.
type ReactionCounts map[ReactionKind]int

// Apply ajoute delta au compteur du kind, borné à zéro. La borne vit ICI,
// une seule fois, pas répétée défensivement à chaque site d'appel.
func (c ReactionCounts) Apply(kind ReactionKind, delta int) {
	if kind == ReactionNone {
		return
	}
	n := c[kind] + delta
	if n < 0 {
		n = 0
	}
	c[kind] = n
}

func (c ReactionCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

func (c ReactionCounts) Clone() ReactionCounts {
	out := make(ReactionCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// EngagementState est l'état interactif d'un item pour le viewer courant.
// Invariants : compteurs >= 0 ; au plus une réaction active ; UserReaction,
// si présente, appartient à l'ensemble fermé des kinds.
type EngagementState struct {
	ItemID       string
	UserReaction ReactionKind // ReactionNone = pas de réaction
	Reactions    ReactionCounts
	Saved        bool
	Relayed      bool
	RelayCount   int
	CommentCount int
}

func NewEngagementState(itemID string) *EngagementState {
	return &EngagementState{
		ItemID:    itemID,
		Reactions: make(ReactionCounts),
	}
}

// Clone renvoie une copie profonde : les vues lisent des snapshots, jamais
// l'état interne du store.
func (s *EngagementState) Clone() *EngagementState {
	cp := *s
	cp.Reactions = s.Reactions.Clone()
	return &cp
}

// ApplyRelayDelta borne le compteur de relays à zéro, même règle que les
// réactions.
func (s *EngagementState) ApplyRelayDelta(delta int) {
	s.RelayCount += delta
	if s.RelayCount < 0 {
		s.RelayCount = 0
	}
}

// ApplyCommentDelta : idem pour les commentaires (alimenté uniquement par le
// flux temps réel, les threads eux-mêmes sont hors périmètre).
func (s *EngagementState) ApplyCommentDelta(delta int) {
	s.CommentCount += delta
	if s.CommentCount < 0 {
		s.CommentCount = 0
	}
}

// EngagementEvent est l'événement diffusé à chaque vue montée d'un item.
type EngagementEvent struct {
	ItemID     string
	Field      EngagementField
	IsActive   bool         // état du viewer après application
	CountDelta int          // delta net sur le compteur concerné
	Kind       ReactionKind // kind concerné (réactions), sinon ReactionNone
	Rollback   bool         // vrai si l'événement annule un optimisme raté
	Remote     bool         // vrai si l'origine est un autre viewer
}
