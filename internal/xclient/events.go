package xclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Li-Victor/Twittter/internal/model"
)

type EventType string

const (
	EventLoggedIn  EventType = "logged_in"
	EventLoggedOut EventType = "logged_out"
)

// Event is a session notification. User is set for EventLoggedIn; Err is
// set there when the credential could not be saved.
type Event struct {
	ID   string
	Type EventType
	At   time.Time
	User *model.User
	Err  error
}

// hub fans events out to subscribers. A subscriber that is not keeping up
// misses events rather than blocking the publisher.
type hub struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	id := uuid.NewString()
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[string]chan Event)
	}
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
