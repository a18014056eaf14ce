package engine

import (
	"sync"

	"github.com/google/uuid"
)

// AdminEvent is one line the admin live tail streams: either a script
// error as it's recorded, or an end-of-tick summary.
type AdminEvent struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`

	Script string `json:"script,omitempty"`
	Error  string `json:"error,omitempty"`

	SeqStart     uint64  `json:"seq_start,omitempty"`
	SeqEnd       uint64  `json:"seq_end,omitempty"`
	CommandCount int     `json:"command_count,omitempty"`
	DurationMS   float64 `json:"duration_ms,omitempty"`
}

const (
	AdminEventScriptError = "script_error"
	AdminEventTick        = "tick"
)

// adminFeed fans AdminEvents out to every live subscriber (normally one,
// the admin websocket's single live-tail connection, but nothing stops
// more than one operator from watching at once). A slow subscriber drops
// events rather than backing up the tick loop.
type adminFeed struct {
	mu   sync.Mutex
	subs map[int]chan AdminEvent
	next int
}

func newAdminFeed() *adminFeed {
	return &adminFeed{subs: make(map[int]chan AdminEvent)}
}

func (f *adminFeed) subscribe() (<-chan AdminEvent, func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	ch := make(chan AdminEvent, 64)
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if ch, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (f *adminFeed) publish(ev AdminEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscribeAdminEvents opens a live-tail feed; the returned cancel func
// must be called once the subscriber disconnects.
func (e *Engine) SubscribeAdminEvents() (<-chan AdminEvent, func()) {
	return e.adminFeed.subscribe()
}
