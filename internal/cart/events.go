package cart

import "sync"

// Event nomeia uma notificação emitida pelo Manager
type Event string

const (
	EventItemAdded       Event = "itemAdded"
	EventItemRemoved     Event = "itemRemoved"
	EventQuantityUpdated Event = "quantityUpdated"
	EventCartCleared     Event = "cartCleared"
	EventCartChanged     Event = "cartChanged"
	EventCartLoaded      Event = "cartLoaded"
	EventCartSynced      Event = "cartSynced"
)

// Notification é entregue aos listeners depois que a mutação foi aplicada
type Notification struct {
	Event     Event
	SessionID string
	Key       LineKey
	Line      *Line
	Totals    Totals
}

// Listener recebe notificações do carrinho
type Listener func(Notification)

type listeners struct {
	mu     sync.RWMutex
	nextID int
	byType map[Event]map[int]Listener
}

func (l *listeners) add(event Event, fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byType == nil {
		l.byType = make(map[Event]map[int]Listener)
	}
	if l.byType[event] == nil {
		l.byType[event] = make(map[int]Listener)
	}
	id := l.nextID
	l.nextID++
	l.byType[event][id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.byType[event], id)
	}
}

func (l *listeners) dispatch(notes []Notification) {
	for _, n := range notes {
		l.mu.RLock()
		fns := make([]Listener, 0, len(l.byType[n.Event]))
		for _, fn := range l.byType[n.Event] {
			fns = append(fns, fn)
		}
		l.mu.RUnlock()

		for _, fn := range fns {
			fn(n)
		}
	}
}
