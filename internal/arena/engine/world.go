package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/arena/internal/arena/config"
	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/sandbox"
	"github.com/zeusync/arena/internal/arena/snapshot"
	"github.com/zeusync/arena/internal/arena/telemetry"
	"github.com/zeusync/arena/internal/core/observability/log"
	"github.com/zeusync/arena/internal/core/physics"
)

// World is the authoritative state of one match. It is not safe for
// concurrent use: the owner serializes every call, and the tick loop is
// the only writer while a match runs.
type World struct {
	cfg      config.MatchConfig
	bounds   physics.Bounds
	exec     *sandbox.Executor
	recorder *telemetry.Recorder
	journal  *telemetry.Journal
	logger   log.Log
	rng      *rand.Rand

	tanks   []*entity.Tank
	agents  map[string]*sandbox.Agent
	bullets []*entity.Bullet
	nextID  uint64

	tick       uint64
	phase      entity.Phase
	round      int
	roundStart uint64
	roundEnd   uint64
	rounds     []entity.RoundResult

	// resume is the phase a restored, in-progress match continues in on the
	// next Begin. PhaseIdle means start over.
	resume entity.Phase
}

// New creates an empty world in the Idle phase. cfg must already be valid.
func New(cfg config.MatchConfig, exec *sandbox.Executor, recorder *telemetry.Recorder, journal *telemetry.Journal, logger log.Log) *World {
	if logger == nil {
		logger = log.NewNop()
	}
	return &World{
		cfg:      cfg,
		bounds:   physics.Bounds{Width: cfg.ArenaWidth, Height: cfg.ArenaHeight},
		exec:     exec,
		recorder: recorder,
		journal:  journal,
		logger:   logger.With(log.String("component", "engine")),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		agents:   make(map[string]*sandbox.Agent),
		phase:    entity.PhaseIdle,
	}
}

func (w *World) Config() config.MatchConfig { return w.cfg }
func (w *World) Phase() entity.Phase        { return w.phase }
func (w *World) Tick() uint64               { return w.tick }
func (w *World) Round() int                 { return w.round }

// Rounds returns the results recorded so far.
func (w *World) Rounds() []entity.RoundResult {
	return append([]entity.RoundResult(nil), w.rounds...)
}

// Tank looks a tank up by name.
func (w *World) Tank(name string) *entity.Tank {
	for _, t := range w.tanks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Tanks returns the tanks in registration order. The slice is a copy, the
// tanks are not.
func (w *World) Tanks() []*entity.Tank {
	return append([]*entity.Tank(nil), w.tanks...)
}

func (w *World) Bullets() []*entity.Bullet {
	return append([]*entity.Bullet(nil), w.bullets...)
}

// Add places a new tank at a random spot and loads its decision code. The
// caller guarantees the name is unique.
func (w *World) Add(ctx context.Context, name, color, source string) *entity.Tank {
	pos, angle := w.spawn()
	t := entity.NewTank(name, color, source, pos, angle)
	w.tanks = append(w.tanks, t)
	w.agents[name] = w.exec.Load(ctx, name, source, w.agentSeed(name))
	w.journal.Logf("Tank %s deployed.", name)
	return t
}

// Remove drops a tank, its agent and its debug log. In-flight bullets it
// fired stay in play and score for nobody.
func (w *World) Remove(name string) bool {
	for i, t := range w.tanks {
		if t.Name == name {
			w.tanks = append(w.tanks[:i:i], w.tanks[i+1:]...)
			delete(w.agents, name)
			w.recorder.Forget(name)
			return true
		}
	}
	return false
}

// Configure swaps in per-match settings before Begin. Arena size and seed
// stay as they were when the world was created.
func (w *World) Configure(cfg config.MatchConfig, exec *sandbox.Executor) {
	cfg.ArenaWidth, cfg.ArenaHeight = w.cfg.ArenaWidth, w.cfg.ArenaHeight
	cfg.Seed = w.cfg.Seed
	w.cfg = cfg
	if exec != nil {
		w.exec = exec
	}
}

// Begin starts a match: round one, fresh positions, zeroed scores. A world
// rebuilt by Restore from a running match continues where it stopped.
func (w *World) Begin() {
	if w.resume != entity.PhaseIdle {
		w.phase, w.resume = w.resume, entity.PhaseIdle
		if w.phase == entity.PhaseRoundEnd {
			w.roundEnd = w.tick
		}
		w.journal.Logf("Battle resumed at round %d.", w.round)
		return
	}

	w.round = 1
	w.rounds = nil
	w.bullets = nil
	w.roundStart = w.tick
	for _, t := range w.tanks {
		pos, angle := w.spawn()
		t.ResetScores()
		t.ResetForRound(pos, angle)
	}
	w.phase = entity.PhaseRunning
	w.journal.Logf("Battle started!")
}

// Finish freezes the match as it is.
func (w *World) Finish() {
	if w.phase == entity.PhaseFinished {
		return
	}
	w.phase = entity.PhaseFinished
	w.resume = entity.PhaseIdle
	w.journal.Logf("Battle finished!")
}

// Clear returns the world to Idle with the same tanks, zeroed scores and no
// bullets or history. Decision code is reloaded so script state starts over.
func (w *World) Clear(ctx context.Context) {
	w.phase = entity.PhaseIdle
	w.round = 0
	w.rounds = nil
	w.bullets = nil
	w.tick = 0
	w.roundStart = 0
	w.nextID = 0
	w.resume = entity.PhaseIdle
	w.rng = rand.New(rand.NewSource(w.cfg.Seed))
	for _, t := range w.tanks {
		pos, angle := w.spawn()
		t.ResetScores()
		t.ResetForRound(pos, angle)
		w.agents[t.Name] = w.exec.Load(ctx, t.Name, t.Source, w.agentSeed(t.Name))
	}
}

func (w *World) spawn() (physics.Vec2, float64) {
	x := entity.TankSize + w.rng.Float64()*(w.cfg.ArenaWidth-2*entity.TankSize)
	y := entity.TankSize + w.rng.Float64()*(w.cfg.ArenaHeight-2*entity.TankSize)
	return physics.Vec2{Xv: x, Yv: y}, w.rng.Float64() * 360
}

// agentSeed gives every agent its own Math.random stream, stable for a
// given match seed and tank name.
func (w *World) agentSeed(name string) int64 {
	return w.cfg.Seed ^ int64(xxhash.Sum64String(name))
}

func (w *World) roundTicksLeft() uint64 {
	total := w.cfg.RoundTicks()
	if w.phase == entity.PhaseIdle && w.resume == entity.PhaseIdle {
		return total
	}
	elapsed := w.tick - w.roundStart
	if elapsed >= total {
		return 0
	}
	return total - elapsed
}

// Snapshot copies the committed state.
func (w *World) Snapshot(matchID string, paused bool) *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		Version:        snapshot.Version,
		MatchID:        matchID,
		Tick:           w.tick,
		Phase:          w.phase,
		Paused:         paused,
		Round:          w.round,
		RoundStartTick: w.roundStart,
		MaxRounds:      w.cfg.MaxRounds,
		RoundTime:      w.cfg.RoundDuration.Seconds(),
		ThinkTimeout:   w.cfg.ThinkTimeout.Seconds(),
		TimeRemaining:  float64(w.roundTicksLeft()) / float64(w.cfg.TickRate),
		ArenaWidth:     w.cfg.ArenaWidth,
		ArenaHeight:    w.cfg.ArenaHeight,
		Tanks:          make([]snapshot.Tank, 0, len(w.tanks)),
		Bullets:        make([]snapshot.Bullet, 0, len(w.bullets)),
		Scores:         make(map[string]int, len(w.tanks)),
		Rounds:         w.Rounds(),
	}
	for _, t := range w.tanks {
		s.Tanks = append(s.Tanks, snapshot.Tank{
			Name:       t.Name,
			Color:      t.Color,
			X:          t.X(),
			Y:          t.Y(),
			Angle:      t.Angle,
			Health:     t.Health,
			Alive:      t.Alive,
			Score:      t.Score,
			RoundScore: t.RoundScore,
			Kills:      t.Kills,
		})
		s.Scores[t.Name] = t.Score
	}
	for _, b := range w.bullets {
		s.Bullets = append(s.Bullets, snapshot.Bullet{
			ID:        b.ID,
			X:         b.X(),
			Y:         b.Y(),
			VelocityX: b.Vel.Xv,
			VelocityY: b.Vel.Yv,
			Owner:     b.Owner,
			Age:       b.Age,
		})
	}
	return s
}

// Restore rebuilds the world from a snapshot. Tanks are recreated in
// snapshot order with the decision code found in sources (missing entries
// idle). Arena size and round settings are taken from the snapshot. The
// world ends up Idle; a restored running match resumes on the next Begin.
func (w *World) Restore(ctx context.Context, s *snapshot.Snapshot, sources map[string]string) {
	if s.ArenaWidth > 0 && s.ArenaHeight > 0 {
		w.cfg.ArenaWidth, w.cfg.ArenaHeight = s.ArenaWidth, s.ArenaHeight
		w.bounds = physics.Bounds{Width: s.ArenaWidth, Height: s.ArenaHeight}
	}
	if s.MaxRounds > 0 {
		w.cfg.MaxRounds = s.MaxRounds
	}
	if s.RoundTime > 0 {
		w.cfg.RoundDuration = secondsToDuration(s.RoundTime)
	}
	if s.ThinkTimeout > 0 {
		w.cfg.ThinkTimeout = secondsToDuration(s.ThinkTimeout)
	}

	w.tanks = w.tanks[:0]
	w.agents = make(map[string]*sandbox.Agent, len(s.Tanks))
	for _, st := range s.Tanks {
		src := sources[st.Name]
		t := entity.NewTank(st.Name, st.Color, src, physics.Vec2{}, 0)
		t.Restore(physics.Vec2{Xv: st.X, Yv: st.Y}, st.Angle, st.Health, st.Alive, st.Score, st.RoundScore, st.Kills)
		w.tanks = append(w.tanks, t)
		w.agents[st.Name] = w.exec.Load(ctx, st.Name, src, w.agentSeed(st.Name))
	}

	w.bullets = w.bullets[:0]
	w.nextID = 0
	for _, sb := range s.Bullets {
		w.bullets = append(w.bullets, &entity.Bullet{
			ID:     sb.ID,
			Owner:  sb.Owner,
			Pos:    physics.Vec2{Xv: sb.X, Yv: sb.Y},
			Vel:    physics.Vec2{Xv: sb.VelocityX, Yv: sb.VelocityY},
			Age:    sb.Age,
			Active: true,
		})
		w.nextID = max(w.nextID, sb.ID+1)
	}

	w.tick = s.Tick
	w.round = s.Round
	w.roundStart = min(s.RoundStartTick, s.Tick)
	w.rounds = append([]entity.RoundResult(nil), s.Rounds...)
	w.phase = entity.PhaseIdle
	w.resume = entity.PhaseIdle
	switch {
	case s.Phase == entity.PhaseFinished:
		w.phase = entity.PhaseFinished
	case s.Running() && s.Round > 0:
		w.resume = s.Phase
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
