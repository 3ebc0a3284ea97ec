package domain

import "errors"

var (
	// ErrContentNotFound est renvoyée pour un item inexistant ET pour un item
	// dont l'auteur est bloqué / a bloqué le viewer. Une seule erreur pour les
	// deux cas : la distinction fuiterait l'état de blocage.
	ErrContentNotFound = errors.New("content not found")

	// ErrToggleFailed : la persistance d'un toggle a échoué, l'état local a
	// été restauré. Transitoire, l'appelant peut réessayer.
	ErrToggleFailed = errors.New("engagement toggle failed, state rolled back")

	ErrInvalidReaction = errors.New("unknown reaction kind")
	ErrInvalidField    = errors.New("unknown engagement field")
	ErrSelfRelay       = errors.New("cannot relay your own content")
	ErrAnonymousToggle = errors.New("sign-in required to interact")

	// ErrRelationshipLoad : le chargement des relations a échoué. Les checks
	// de visibilité échouent alors FERMÉ (jamais Visible).
	ErrRelationshipLoad = errors.New("relationship snapshot load failed")
)
