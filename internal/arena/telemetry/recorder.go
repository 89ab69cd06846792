package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// Recorder keeps one bounded debug log per agent. The tick loop writes;
// any goroutine may read.
type Recorder struct {
	mu        sync.RWMutex
	rings     map[string]*Ring[Event]
	capacity  int
	readLimit int
	now       func() time.Time
}

func NewRecorder(capacity, readLimit int) *Recorder {
	return &Recorder{
		rings:     make(map[string]*Ring[Event]),
		capacity:  capacity,
		readLimit: readLimit,
		now:       time.Now,
	}
}

func (r *Recorder) ring(agent string) *Ring[Event] {
	r.mu.RLock()
	ring, ok := r.rings[agent]
	r.mu.RUnlock()
	if ok {
		return ring
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ring, ok = r.rings[agent]; !ok {
		ring = NewRing[Event](r.capacity)
		r.rings[agent] = ring
	}
	return ring
}

// Record appends an event to the agent's log.
func (r *Recorder) Record(agent string, tick uint64, kind Kind, data map[string]any) {
	r.ring(agent).Push(Event{Time: r.now(), Tick: tick, Kind: kind, Data: data})
}

// Events returns the newest events of one agent, oldest first. Unknown
// agents yield an empty slice.
func (r *Recorder) Events(agent string) []Event {
	r.mu.RLock()
	ring, ok := r.rings[agent]
	r.mu.RUnlock()
	if !ok {
		return []Event{}
	}
	return ring.Last(r.readLimit)
}

// Forget drops an agent's log entirely.
func (r *Recorder) Forget(agent string) {
	r.mu.Lock()
	delete(r.rings, agent)
	r.mu.Unlock()
}

// Reset clears every log but keeps the agents known.
func (r *Recorder) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ring := range r.rings {
		ring.Reset()
	}
}

// Journal is the match-wide battle log.
type Journal struct {
	ring      *Ring[LogEntry]
	readLimit int
	now       func() time.Time
}

func NewJournal(capacity, readLimit int) *Journal {
	return &Journal{
		ring:      NewRing[LogEntry](capacity),
		readLimit: readLimit,
		now:       time.Now,
	}
}

func (j *Journal) Logf(format string, args ...any) {
	j.ring.Push(LogEntry{Time: j.now(), Message: fmt.Sprintf(format, args...)})
}

// Entries returns the newest readable entries, oldest first.
func (j *Journal) Entries() []LogEntry {
	return j.ring.Last(j.readLimit)
}

func (j *Journal) Reset() {
	j.ring.Reset()
}
