package match

import (
	"sync"
	"time"

	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/sandbox"
	"github.com/zeusync/arena/internal/core/events/bus"
	"github.com/zeusync/arena/internal/core/observability/log"
)

// Event types published on the controller's bus.
const (
	EventMatchStarted   = "match.started"
	EventRoundEnded     = "round.ended"
	EventMatchFinished  = "match.finished"
	EventStateBroadcast = "state.broadcast"
	EventAgentFailed    = "agent.failed"
)

const eventSource = "arena.match"

// Payloads, carried in Event.Data. EventStateBroadcast carries the
// *snapshot.Snapshot itself, shared and read-only.
type (
	MatchStarted struct {
		MatchID   string
		MaxRounds int
		Agents    []string
	}

	RoundEnded struct {
		MatchID string
		Result  entity.RoundResult
	}

	MatchFinished struct {
		MatchID string
		Scores  map[string]int
	}

	AgentFailed struct {
		MatchID string
		Tick    uint64
		Failure *sandbox.Failure
	}
)

// publish queues an event for the dispatcher. It never blocks, so the tick
// loop and commands can publish while holding their locks.
func (c *Controller) publish(matchID, eventType string, data any) {
	meta := map[string]any{"match_id": matchID}
	c.events.post(bus.NewEvent(eventType, eventSource, data, meta))
}

// dispatcher delivers queued events on its own goroutine, in the order they
// were posted. Handlers run outside every controller lock and may call back
// into the controller, Close excepted.
type dispatcher struct {
	bus bus.EventBus

	mu     sync.Mutex
	queue  []bus.Event
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newDispatcher(eventBus bus.EventBus) *dispatcher {
	d := &dispatcher{
		bus:  eventBus,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) post(e bus.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.drain()
		select {
		case <-d.wake:
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			// handler errors reach the bus observers
			_ = d.bus.Publish(e)
		}
	}
}

// close delivers what is already queued, then stops. Later posts are dropped.
func (d *dispatcher) close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
	})
	<-d.done
}

// busMonitor observes the controller's bus: failed handlers are logged at
// Warn, slow deliveries at Debug. Registering it also turns on the bus
// metrics served by the HTTP layer.
type busMonitor struct {
	logger log.Log
	slow   time.Duration
}

func (m *busMonitor) OnPublish(string, bus.Event) {}

func (m *busMonitor) OnDelivered(eventType string, handlers int, err error, d time.Duration) {
	if err != nil {
		m.logger.Warn("Event handler failed", log.String("event", eventType), log.Int("handlers", handlers), log.Error(err))
	}
	if d > m.slow {
		m.logger.Debug("Slow event delivery", log.String("event", eventType), log.Duration("took", d))
	}
}
