package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to subscribers. A subscriber whose buffer is full
// misses the event; the bus never blocks the emitter.
type Bus struct {
	buffer int

	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription

	dropped atomic.Uint64
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{buffer: buffer, subs: map[int]*Subscription{}}
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	filter func(Event) bool
	bus    *Bus
	id     int
	once   sync.Once
}

// Subscribe registers a subscriber. A nil filter accepts every event.
func (b *Bus) Subscribe(filter func(Event) bool) *Subscription {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{C: ch, ch: ch, filter: filter, bus: b, id: b.nextID}
	b.subs[s.id] = s
	return s
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts events lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ForEmpireFilter accepts events addressed to one empire of one game, plus
// game-wide events of that game.
func ForEmpireFilter(game, empire string) func(Event) bool {
	return func(ev Event) bool {
		return ev.Game == game && (ev.Empire == "" || ev.Empire == empire)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
