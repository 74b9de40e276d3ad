package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/retuner/internal/source"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	ItemStarted EventKind = iota
	ItemCompleted
	ItemFailed
	ItemSkipped
	BatchCompleted
	BatchCancelled
	BatchFatal
)

func (k EventKind) String() string {
	switch k {
	case ItemStarted:
		return "item-started"
	case ItemCompleted:
		return "item-completed"
	case ItemFailed:
		return "item-failed"
	case ItemSkipped:
		return "item-skipped"
	case BatchCompleted:
		return "batch-completed"
	case BatchCancelled:
		return "batch-cancelled"
	case BatchFatal:
		return "batch-fatal"
	}
	return "unknown"
}

// Terminal reports whether k ends a batch.
func (k EventKind) Terminal() bool { return k >= BatchCompleted }

// Event is one notification from a batch run. Source is nil for batch
// events.
type Event struct {
	Seq     uint64
	Time    time.Time
	BatchID uuid.UUID
	Kind    EventKind
	Source  *source.AudioSource
	Detail  string
	Err     error
}

// DefaultHistory is the number of events an EventBus keeps for Since.
const DefaultHistory = 1024

// EventBus numbers events, keeps a bounded history and fans them out to
// subscribers. Subscribers run without any bus lock held, one event at a
// time and in sequence order, so they may Subscribe, unsubscribe or read
// the history from inside the callback. A subscriber that Publishes from
// its callback deadlocks.
type EventBus struct {
	mu      sync.Mutex
	seq     uint64
	limit   int
	history []Event
	subs    map[int]func(Event)
	nextID  int
	now     func() time.Time

	// delivered is the last sequence number handed to every subscriber.
	deliverMu sync.Mutex
	delivered uint64
	turn      *sync.Cond
}

// NewEventBus returns a bus keeping the last limit events (DefaultHistory
// if limit < 1).
func NewEventBus(limit int) *EventBus {
	if limit < 1 {
		limit = DefaultHistory
	}
	b := &EventBus{limit: limit, subs: make(map[int]func(Event)), now: time.Now}
	b.turn = sync.NewCond(&b.deliverMu)
	return b
}

// Publish stamps e with the next sequence number and the current time,
// records it and delivers it to the subscribers registered at that moment.
// It returns once every subscriber has seen e. The stamped event is
// returned.
func (b *EventBus) Publish(e Event) Event {
	b.mu.Lock()
	b.seq++
	e.Seq = b.seq
	e.Time = b.now()
	if len(b.history) == b.limit {
		copy(b.history, b.history[1:])
		b.history = b.history[:b.limit-1]
	}
	b.history = append(b.history, e)
	subs := make([]func(Event), 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.Unlock()

	b.deliverMu.Lock()
	for b.delivered != e.Seq-1 {
		b.turn.Wait()
	}
	b.deliverMu.Unlock()

	for _, fn := range subs {
		fn(e)
	}

	b.deliverMu.Lock()
	b.delivered = e.Seq
	b.turn.Broadcast()
	b.deliverMu.Unlock()
	return e
}

// Subscribe registers fn for every future event. The returned function
// removes it and is safe to call more than once.
func (b *EventBus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Since returns the retained events with a sequence number above seq, in
// order. Since(0) returns the whole retained history.
func (b *EventBus) Since(seq uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, e := range b.history {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the sequence number of the most recent event.
func (b *EventBus) Last() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
