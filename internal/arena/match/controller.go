package match

import (
	"context"
	"fmt"
	"maps"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/arena/internal/arena/config"
	"github.com/zeusync/arena/internal/arena/engine"
	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/sandbox"
	"github.com/zeusync/arena/internal/arena/snapshot"
	"github.com/zeusync/arena/internal/arena/telemetry"
	"github.com/zeusync/arena/internal/core/events/bus"
	"github.com/zeusync/arena/internal/core/observability/log"
	"github.com/zeusync/arena/internal/core/physics"
)

// Options override match settings for one Start. Zero fields keep the
// controller's configured value.
type Options struct {
	MaxRounds     int
	RoundDuration time.Duration
	ThinkTimeout  time.Duration
}

// Controller owns one match: its agents, its world and the goroutine that
// ticks it. All methods are safe for concurrent use. Reads (Snapshot,
// DebugLog, Logs) never wait for a tick.
type Controller struct {
	cfg     config.MatchConfig
	bus     bus.EventBus
	events  *dispatcher
	monitor *busMonitor
	logger  log.Log

	recorder *telemetry.Recorder
	journal  *telemetry.Journal

	// ctl serializes commands. mu guards the world and is shared with the
	// tick loop; ctl is always taken before mu.
	ctl     sync.Mutex
	mu      sync.Mutex
	world   *engine.World
	matchID string
	rng     *rand.Rand
	paused  atomic.Bool

	snap atomic.Pointer[snapshot.Snapshot]
	// sources changes only with the roster, so readers skip mu.
	sources atomic.Pointer[map[string]string]

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle controller. A zero seed is replaced by a time-based one.
func New(cfg config.MatchConfig, eventBus bus.EventBus, logger log.Log) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if eventBus == nil {
		eventBus = bus.New()
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Controller{
		cfg:      cfg,
		bus:      eventBus,
		logger:   logger.With(log.String("component", "match")),
		recorder: telemetry.NewRecorder(cfg.DebugLogLimit, cfg.DebugReadLimit),
		journal:  telemetry.NewJournal(cfg.DebugLogLimit, cfg.DebugReadLimit),
		matchID:  uuid.NewString(),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
	c.world = engine.New(cfg, c.executor(cfg), c.recorder, c.journal, logger)
	c.monitor = &busMonitor{logger: c.logger, slow: cfg.TickDuration()}
	eventBus.AddObserver(c.monitor)
	c.events = newDispatcher(eventBus)
	c.commitLocked()
	c.commitSourcesLocked()
	return c, nil
}

func (c *Controller) executor(cfg config.MatchConfig) *sandbox.Executor {
	return sandbox.NewExecutor(sandbox.Options{Timeout: cfg.ThinkTimeout}, c.logger)
}

// Bus is the event bus lifecycle events are published on. Events arrive on
// a dispatcher goroutine in publish order, after the tick that produced them
// is committed. Handlers may call any controller method except Close.
func (c *Controller) Bus() bus.EventBus { return c.bus }

// Register adds an agent. An empty name gets the next free phonetic name and
// an empty color a random one. It returns the name actually used.
func (c *Controller) Register(ctx context.Context, name, color, code string) (string, error) {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return "", ErrMatchNotIdle
	}
	name = strings.TrimSpace(name)
	taken := func(n string) bool { return c.world.Tank(n) != nil }
	if name == "" {
		name = nextPhoneticName(taken)
	} else if taken(name) {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if color = strings.TrimSpace(color); color == "" {
		color = randomColor(c.rng)
	}

	c.world.Add(ctx, name, color, code)
	c.logger.Info("Agent registered", log.Agent(name), log.Bool("has_code", strings.TrimSpace(code) != ""))
	c.commitLocked()
	c.commitSourcesLocked()
	return name, nil
}

// Remove drops an agent and its debug log.
func (c *Controller) Remove(name string) error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return ErrMatchNotIdle
	}
	if !c.world.Remove(name) {
		return fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	c.logger.Info("Agent removed", log.Agent(name))
	c.commitLocked()
	c.commitSourcesLocked()
	return nil
}

// Start validates the options and starts ticking. The loop outlives ctx's
// cancellation; only Stop and Reset end it.
func (c *Controller) Start(ctx context.Context, opts Options) error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.world.Phase() != entity.PhaseIdle || c.loopRunning() {
		return ErrMatchNotIdle
	}
	if n := len(c.world.Tanks()); n < 2 {
		return fmt.Errorf("%w: have %d", ErrInsufficientAgents, n)
	}

	cfg := c.cfg
	if opts.MaxRounds != 0 {
		cfg.MaxRounds = opts.MaxRounds
	}
	if opts.RoundDuration != 0 {
		cfg.RoundDuration = opts.RoundDuration
	}
	if opts.ThinkTimeout != 0 {
		cfg.ThinkTimeout = opts.ThinkTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.world.Configure(cfg, c.executor(cfg))
	c.world.Begin()
	c.paused.Store(false)
	c.commitLocked()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})

	names := make([]string, 0, len(c.world.Tanks()))
	for _, t := range c.world.Tanks() {
		names = append(names, t.Name)
	}
	c.logger.Info("Match started",
		log.String("match_id", c.matchID),
		log.Int("max_rounds", cfg.MaxRounds),
		log.Duration("round_duration", cfg.RoundDuration),
		log.Duration("think_timeout", cfg.ThinkTimeout),
		log.Int("agents", len(names)),
	)
	c.publish(c.matchID, EventMatchStarted, MatchStarted{MatchID: c.matchID, MaxRounds: cfg.MaxRounds, Agents: names})

	go c.loop(loopCtx, c.done, c.matchID, cfg)
	return nil
}

// Pause freezes ticking. Agents are not called while paused.
func (c *Controller) Pause() error {
	return c.setPaused(true)
}

func (c *Controller) Resume() error {
	return c.setPaused(false)
}

func (c *Controller) setPaused(paused bool) error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	if !c.loopRunning() {
		return ErrMatchNotRunning
	}
	c.paused.Store(paused)

	c.mu.Lock()
	c.commitLocked()
	c.mu.Unlock()
	c.logger.Info("Match pause toggled", log.Bool("paused", paused))
	return nil
}

// Stop ends the match. In-flight agent calls are interrupted and their
// results dropped; the match is Finished with its current scores.
func (c *Controller) Stop() error {
	c.ctl.Lock()
	defer c.ctl.Unlock()

	c.mu.Lock()
	phase := c.world.Phase()
	c.mu.Unlock()
	if phase != entity.PhaseRunning && phase != entity.PhaseRoundEnd {
		return ErrMatchNotRunning
	}

	c.stopLoopLocked()

	c.mu.Lock()
	c.world.Finish()
	c.paused.Store(false)
	c.commitLocked()
	snap := c.snap.Load()
	c.mu.Unlock()

	c.logger.Info("Match stopped", log.String("match_id", snap.MatchID), log.Uint64("tick", snap.Tick))
	c.publish(snap.MatchID, EventMatchFinished, MatchFinished{MatchID: snap.MatchID, Scores: snap.Scores})
	return nil
}

// Reset stops any running match and returns to Idle with the same agents,
// zeroed scores, cleared logs and a new match id.
func (c *Controller) Reset(ctx context.Context) {
	c.ctl.Lock()
	defer c.ctl.Unlock()

	c.stopLoopLocked()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.world.Configure(c.cfg, c.executor(c.cfg))
	c.world.Clear(ctx)
	c.recorder.Reset()
	c.journal.Reset()
	c.matchID = uuid.NewString()
	c.paused.Store(false)
	c.commitLocked()
	c.logger.Info("Match reset", log.String("match_id", c.matchID))
}

// Restore replaces the idle match with the state carried by s. sources maps
// tank names to decision code; tanks without an entry idle. A snapshot of a
// match in progress resumes on the next Start.
func (c *Controller) Restore(ctx context.Context, s *snapshot.Snapshot, sources map[string]string) error {
	if s == nil {
		return fmt.Errorf("%w: nil", ErrInvalidSnapshot)
	}
	if s.Version != snapshot.Version {
		return fmt.Errorf("%w: %d", snapshot.ErrUnsupportedVersion, s.Version)
	}
	bounds := physics.Bounds{Width: s.ArenaWidth, Height: s.ArenaHeight}
	if bounds.Width <= 0 || bounds.Height <= 0 {
		bounds = physics.Bounds{Width: c.cfg.ArenaWidth, Height: c.cfg.ArenaHeight}
	}
	seen := make(map[string]struct{}, len(s.Tanks))
	for _, t := range s.Tanks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: tank without a name", ErrInvalidSnapshot)
		}
		if !bounds.FitsCircle(physics.Vec2{Xv: t.X, Yv: t.Y}, entity.TankRadius) {
			return fmt.Errorf("%w: tank %q outside the arena", ErrInvalidSnapshot, t.Name)
		}
		if t.Health < 0 || t.Health > entity.MaxHealth {
			return fmt.Errorf("%w: tank %q health %d", ErrInvalidSnapshot, t.Name, t.Health)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return ErrMatchNotIdle
	}

	cfg := c.cfg
	if s.MaxRounds > 0 {
		cfg.MaxRounds = s.MaxRounds
	}
	if s.RoundTime > 0 {
		cfg.RoundDuration = time.Duration(s.RoundTime * float64(time.Second))
	}
	if s.ThinkTimeout > 0 {
		cfg.ThinkTimeout = time.Duration(s.ThinkTimeout * float64(time.Second))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	c.world.Configure(cfg, c.executor(cfg))
	c.world.Restore(ctx, s, sources)
	c.recorder.Reset()
	if s.MatchID != "" {
		c.matchID = s.MatchID
	} else {
		c.matchID = uuid.NewString()
	}
	c.paused.Store(false)
	c.commitLocked()
	c.commitSourcesLocked()
	c.logger.Info("Match restored", log.String("match_id", c.matchID), log.Int("tanks", len(s.Tanks)), log.Uint64("tick", s.Tick))
	return nil
}

// Snapshot returns the last committed state. The value is shared and must
// not be modified.
func (c *Controller) Snapshot() *snapshot.Snapshot {
	return c.snap.Load()
}

// DebugLog returns the newest debug events of one agent, oldest first.
func (c *Controller) DebugLog(name string) ([]telemetry.Event, error) {
	if _, ok := c.Snapshot().Tank(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return c.recorder.Events(name), nil
}

// DebugLogs returns the readable debug window of every registered agent.
func (c *Controller) DebugLogs() map[string][]telemetry.Event {
	snap := c.Snapshot()
	out := make(map[string][]telemetry.Event, len(snap.Tanks))
	for _, t := range snap.Tanks {
		out[t.Name] = c.recorder.Events(t.Name)
	}
	return out
}

// Logs returns the newest battle log entries, oldest first.
func (c *Controller) Logs() []telemetry.LogEntry {
	return c.journal.Entries()
}

// Sources returns each agent's decision code, keyed by name, for export.
// Like Snapshot it never waits for a tick.
func (c *Controller) Sources() map[string]string {
	return maps.Clone(*c.sources.Load())
}

// Close stops the loop, delivers pending events and detaches from the bus.
// The controller stays readable afterwards.
func (c *Controller) Close() {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.stopLoopLocked()
	c.events.close()
	c.bus.RemoveObserver(c.monitor)
}

func (c *Controller) loop(ctx context.Context, done chan struct{}, matchID string, cfg config.MatchConfig) {
	defer close(done)

	ticker := time.NewTicker(cfg.TickDuration())
	defer ticker.Stop()
	every := cfg.BroadcastEvery()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.paused.Load() {
			continue
		}
		if finished := c.tick(ctx, matchID, every); finished {
			return
		}
	}
}

// tick advances the world once and publishes what happened. It reports
// whether the match is over.
func (c *Controller) tick(ctx context.Context, matchID string, every uint64) bool {
	c.mu.Lock()
	rep, err := c.world.Step(ctx)
	if err != nil {
		c.mu.Unlock()
		return false
	}
	c.commitLocked()
	snap := c.snap.Load()
	c.mu.Unlock()

	for _, f := range rep.Failures {
		c.publish(matchID, EventAgentFailed, AgentFailed{MatchID: matchID, Tick: rep.Tick, Failure: f})
	}
	if rep.RoundEnded != nil {
		c.publish(matchID, EventRoundEnded, RoundEnded{MatchID: matchID, Result: *rep.RoundEnded})
	}
	if rep.Tick%every == 0 || rep.RoundEnded != nil || rep.Finished {
		c.publish(matchID, EventStateBroadcast, snap)
	}
	if rep.Finished {
		c.logger.Info("Match finished", log.String("match_id", matchID), log.Int("rounds", snap.Round))
		c.publish(matchID, EventMatchFinished, MatchFinished{MatchID: matchID, Scores: snap.Scores})
	}
	return rep.Finished
}

func (c *Controller) commitLocked() {
	c.snap.Store(c.world.Snapshot(c.matchID, c.paused.Load()))
}

func (c *Controller) commitSourcesLocked() {
	out := make(map[string]string)
	for _, t := range c.world.Tanks() {
		out[t.Name] = t.Source
	}
	c.sources.Store(&out)
}

// activeLocked reports whether a match is in progress.
func (c *Controller) activeLocked() bool {
	p := c.world.Phase()
	return p == entity.PhaseRunning || p == entity.PhaseRoundEnd
}

func (c *Controller) loopRunning() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Controller) stopLoopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel, c.done = nil, nil
}
