package services

import (
	"sync"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

// Broadcaster est le bus in-process qui fait converger toutes les vues
// montées d'un même item (carte de feed + vue détail ouverte, etc.).
// Émetteur explicite instancié une fois par session et passé par référence :
// pas d'état global caché, testable isolément.
//
// La livraison est SYNCHRONE : publier depuis un toggle fait converger les
// autres vues dans le même tick, sans aller-retour réseau.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID uint64
	// itemID -> id d'abonnement -> listener
	rooms map[string]map[uint64]ports.Listener

	// onRoomEmpty est appelé (hors lock) quand la dernière vue d'un item se
	// détache ; la session s'en sert pour lâcher l'état d'engagement.
	onRoomEmpty func(itemID string)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{rooms: make(map[string]map[uint64]ports.Listener)}
}

// OnRoomEmpty enregistre le hook de libération. À appeler avant les premiers
// Subscribe.
func (b *Broadcaster) OnRoomEmpty(fn func(itemID string)) {
	b.onRoomEmpty = fn
}

// Subscribe attache un listener à l'item et renvoie la fonction de
// détachement. Le détachement est idempotent.
func (b *Broadcaster) Subscribe(itemID string, l ports.Listener) ports.UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.rooms[itemID] == nil {
		b.rooms[itemID] = make(map[uint64]ports.Listener)
	}
	b.rooms[itemID][id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			empty := false
			if listeners, ok := b.rooms[itemID]; ok {
				delete(listeners, id)
				if len(listeners) == 0 {
					delete(b.rooms, itemID)
					empty = true
				}
			}
			b.mu.Unlock()

			if empty && b.onRoomEmpty != nil {
				b.onRoomEmpty(itemID)
			}
		})
	}
}

// Publish fan-out l'événement à chaque abonné courant de l'item.
// Zéro abonné = no-op, pas une erreur : couvre la vue démontée pendant
// qu'une persistance était en vol.
func (b *Broadcaster) Publish(itemID string, evt domain.EngagementEvent) {
	b.mu.RLock()
	listeners := make([]ports.Listener, 0, len(b.rooms[itemID]))
	for _, l := range b.rooms[itemID] {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	// Appel hors lock : un listener peut se désabonner (ou relire le store)
	// pendant la livraison sans s'auto-deadlocker.
	for _, l := range listeners {
		l(evt)
	}
}

// SubscriberCount sert au refresher (on ne rafraîchit que les items vivants).
func (b *Broadcaster) SubscriberCount(itemID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[itemID])
}

// ActiveItems liste les items ayant au moins une vue montée.
func (b *Broadcaster) ActiveItems() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	items := make([]string, 0, len(b.rooms))
	for id := range b.rooms {
		items = append(items, id)
	}
	return items
}
