package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/arena/internal/arena/config"
	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/sandbox"
	"github.com/zeusync/arena/internal/arena/telemetry"
	"github.com/zeusync/arena/internal/core/physics"
)

const (
	idleBrain    = ``
	throwBrain   = `function think(s) { throw new Error("broken brain"); }`
	circleBrain  = `function think(s) { return {move: "forward", rotate: 1}; }`
	hangBrain    = `function think(s) { while (true) {} }`
	gunnerBrain  = `function think(s) { return {move: "forward", rotate: 0, shoot: true}; }`
	spinnerBrain = `function think(s) { return {rotate: 1, shoot: true}; }`
)

func newWorld(t *testing.T, mutate func(*config.MatchConfig)) *World {
	t.Helper()
	cfg := config.DefaultMatch()
	cfg.Seed = 7
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	exec := sandbox.NewExecutor(sandbox.Options{Timeout: cfg.ThinkTimeout}, nil)
	return New(cfg, exec, telemetry.NewRecorder(cfg.DebugLogLimit, cfg.DebugReadLimit), telemetry.NewJournal(200, 100), nil)
}

func place(tank *entity.Tank, x, y, angle float64) {
	tank.Pos = physics.Vec2{Xv: x, Yv: y}
	tank.Angle = angle
}

func step(t *testing.T, w *World) Report {
	t.Helper()
	rep, err := w.Step(context.Background())
	require.NoError(t, err)
	return rep
}

func TestStep_IdleDoesNothing(t *testing.T) {
	w := newWorld(t, nil)
	w.Add(context.Background(), "Alpha", "#ff0000", circleBrain)
	before := w.Tank("Alpha").Pos

	rep := step(t, w)
	assert.Zero(t, rep.Tick)
	assert.Equal(t, before, w.Tank("Alpha").Pos)
	assert.Equal(t, entity.PhaseIdle, w.Phase())
}

func TestStep_FaultyAgentDoesNotStallOthers(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	w.Add(ctx, "Broken", "#111111", throwBrain)
	w.Add(ctx, "Mover", "#222222", circleBrain)
	w.Add(ctx, "Sitter", "#333333", idleBrain)
	w.Begin()
	place(w.Tank("Broken"), 100, 100, 0)
	place(w.Tank("Mover"), 400, 300, 0)
	place(w.Tank("Sitter"), 700, 500, 0)

	for i := 0; i < 120; i++ {
		prev := w.Tank("Mover").Pos
		rep := step(t, w)

		require.Len(t, rep.Failures, 1)
		assert.Equal(t, sandbox.FailureRuntime, rep.Failures[0].Kind)
		assert.Equal(t, "Broken", rep.Failures[0].Agent)
		assert.NotEqual(t, prev, w.Tank("Mover").Pos, "tick %d", i)
	}
	assert.Equal(t, entity.PhaseRunning, w.Phase())
	assert.Equal(t, uint64(120), w.Tick())
	assert.Equal(t, physics.Vec2{Xv: 100, Yv: 100}, w.Tank("Broken").Pos)

	events := w.recorder.Events("Broken")
	require.NotEmpty(t, events)
	assert.Equal(t, telemetry.KindRuntimeError, events[len(events)-1].Kind)
	assert.Contains(t, events[len(events)-1].Data["error"], "broken brain")
}

func TestStep_HungAgentIsPreempted(t *testing.T) {
	timeout := 20 * time.Millisecond
	w := newWorld(t, func(c *config.MatchConfig) { c.ThinkTimeout = timeout })
	ctx := context.Background()
	w.Add(ctx, "Hung", "#111111", hangBrain)
	w.Add(ctx, "Mover", "#222222", circleBrain)
	w.Begin()
	place(w.Tank("Hung"), 100, 100, 0)
	place(w.Tank("Mover"), 400, 300, 0)

	for i := 0; i < 3; i++ {
		prev := w.Tank("Mover").Pos
		start := time.Now()
		rep := step(t, w)

		assert.Less(t, time.Since(start), timeout+250*time.Millisecond)
		require.Len(t, rep.Failures, 1)
		assert.Equal(t, sandbox.FailureTimeout, rep.Failures[0].Kind)
		assert.NotEqual(t, prev, w.Tank("Mover").Pos)
	}
	assert.Equal(t, physics.Vec2{Xv: 100, Yv: 100}, w.Tank("Hung").Pos)

	var timeouts int
	for _, e := range w.journal.Entries() {
		if e.Message == "Hung timed out." {
			timeouts++
		}
	}
	assert.Equal(t, 3, timeouts)
}

func TestStep_ScoreIsHitsAndKillBonus(t *testing.T) {
	w := newWorld(t, func(c *config.MatchConfig) { c.MaxRounds = 1 })
	ctx := context.Background()
	w.Add(ctx, "Target", "#111111", idleBrain)
	w.Add(ctx, "Gunner", "#222222", gunnerBrain)
	w.Begin()
	place(w.Tank("Target"), 100, 300, 0)
	place(w.Tank("Gunner"), 300, 300, 180)

	target, gunner := w.Tank("Target"), w.Tank("Gunner")
	for i := 0; i < 600 && w.Phase() != entity.PhaseFinished; i++ {
		step(t, w)
		hits := (entity.MaxHealth - target.Health) / entity.DamagePerHit
		assert.Equal(t, entity.HitPoints*hits+entity.KillBonus*gunner.Kills, gunner.Score)
	}

	require.Equal(t, entity.PhaseFinished, w.Phase())
	assert.Equal(t, 0, target.Health)
	assert.False(t, target.Alive)
	assert.Equal(t, 1, gunner.Kills)
	assert.Equal(t, 4*entity.HitPoints+entity.KillBonus, gunner.Score)

	rounds := w.Rounds()
	require.Len(t, rounds, 1)
	assert.Equal(t, entity.RoundEndLastStanding, rounds[0].Reason)
	assert.Equal(t, []string{"Gunner"}, rounds[0].Survivors)
	assert.Equal(t, 90, rounds[0].Scores["Gunner"])
}

func TestStep_HealthMonotonicWithinRound(t *testing.T) {
	w := newWorld(t, func(c *config.MatchConfig) { c.RoundDuration = 3 * time.Second })
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C", "D"} {
		w.Add(ctx, name, "#000000", spinnerBrain)
	}
	w.Begin()
	place(w.Tank("A"), 200, 200, 0)
	place(w.Tank("B"), 260, 200, 90)
	place(w.Tank("C"), 200, 260, 180)
	place(w.Tank("D"), 260, 260, 270)

	health := map[string]int{}
	round := w.Round()
	for i := 0; i < 400 && w.Phase() != entity.PhaseFinished; i++ {
		step(t, w)
		if w.Round() != round {
			round = w.Round()
			health = map[string]int{}
		}
		for _, tank := range w.Tanks() {
			assert.GreaterOrEqual(t, tank.Health, 0)
			assert.LessOrEqual(t, tank.Health, entity.MaxHealth)
			if prev, ok := health[tank.Name]; ok {
				assert.LessOrEqual(t, tank.Health, prev, "%s gained health in round %d", tank.Name, round)
			}
			health[tank.Name] = tank.Health
		}
	}
}

func TestStep_BulletIdentity(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		w.Add(ctx, name, "#000000", spinnerBrain)
	}
	w.Begin()
	place(w.Tank("A"), 30, 300, 180)
	place(w.Tank("B"), 300, 300, 0)
	place(w.Tank("C"), 340, 300, 180)

	for i := 0; i < 300 && w.Phase() == entity.PhaseRunning; i++ {
		tanks := len(w.Tanks())
		before := map[uint64]entity.Bullet{}
		for _, b := range w.Bullets() {
			before[b.ID] = *b
		}
		nextID := w.nextID
		round := w.Round()

		step(t, w)
		require.Len(t, w.Tanks(), tanks)
		if w.Round() != round {
			assert.Empty(t, w.Bullets())
			continue
		}

		after := map[uint64]bool{}
		for _, b := range w.Bullets() {
			after[b.ID] = true
			old, existed := before[b.ID]
			if !existed {
				assert.GreaterOrEqual(t, b.ID, nextID, "unknown bullet %d appeared", b.ID)
				continue
			}
			assert.Equal(t, old.Pos.Add(old.Vel), b.Pos)
			assert.Equal(t, old.Age+1, b.Age)
		}
		for id, old := range before {
			if after[id] {
				continue
			}
			moved := old.Pos.Add(old.Vel)
			gone := !w.bounds.Contains(moved) || old.Age+1 >= entity.BulletLifetimeTicks
			for _, tank := range w.Tanks() {
				if tank.Name != old.Owner && physics.PointInCircle(moved, tank.Pos, entity.TankRadius) {
					gone = true
				}
			}
			assert.True(t, gone, "bullet %d vanished without cause", id)
		}
	}
}

func TestStep_LoneSurvivorShortCircuitsTimer(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	w.Add(ctx, "A", "#000000", idleBrain)
	w.Add(ctx, "B", "#000000", idleBrain)
	w.Begin()
	place(w.Tank("A"), 100, 100, 0)
	place(w.Tank("B"), 600, 400, 0)

	half := w.cfg.RoundTicks() / 2
	for w.Tick() < half {
		rep := step(t, w)
		require.Nil(t, rep.RoundEnded)
	}

	w.Tank("B").TakeDamage(entity.MaxHealth)
	rep := step(t, w)
	require.NotNil(t, rep.RoundEnded)
	assert.Equal(t, entity.RoundEndLastStanding, rep.RoundEnded.Reason)
	assert.Equal(t, 1, rep.RoundEnded.Round)
	assert.Equal(t, half+1, rep.RoundEnded.EndTick)

	assert.Equal(t, entity.PhaseRunning, w.Phase())
	assert.Equal(t, 2, w.Round())
	assert.True(t, w.Tank("B").Alive)
	assert.Equal(t, entity.MaxHealth, w.Tank("B").Health)
}

func TestStep_TimeLimit(t *testing.T) {
	w := newWorld(t, func(c *config.MatchConfig) {
		c.RoundDuration = time.Second
		c.MaxRounds = 2
	})
	ctx := context.Background()
	w.Add(ctx, "A", "#000000", idleBrain)
	w.Add(ctx, "B", "#000000", idleBrain)
	w.Begin()

	var ended []Report
	for i := 0; i < 200 && w.Phase() != entity.PhaseFinished; i++ {
		if rep := step(t, w); rep.RoundEnded != nil {
			ended = append(ended, rep)
		}
	}

	require.Len(t, ended, 2)
	// a round ends once elapsed ticks exceed the duration
	assert.Equal(t, uint64(61), ended[0].RoundEnded.EndTick)
	assert.Equal(t, entity.RoundEndTimeLimit, ended[0].RoundEnded.Reason)
	assert.False(t, ended[0].Finished)
	assert.Equal(t, uint64(122), ended[1].RoundEnded.EndTick)
	assert.True(t, ended[1].Finished)
	assert.Equal(t, entity.PhaseFinished, w.Phase())

	last := w.Tick()
	step(t, w)
	assert.Equal(t, last, w.Tick(), "finished match must not tick")
}

func TestStep_Intermission(t *testing.T) {
	w := newWorld(t, func(c *config.MatchConfig) {
		c.RoundDuration = time.Second
		c.Intermission = 100 * time.Millisecond
	})
	ctx := context.Background()
	w.Add(ctx, "A", "#000000", idleBrain)
	w.Add(ctx, "B", "#000000", idleBrain)
	w.Begin()

	for w.Phase() == entity.PhaseRunning {
		step(t, w)
	}
	require.Equal(t, entity.PhaseRoundEnd, w.Phase())
	assert.Equal(t, 1, w.Round())

	for i := uint64(0); i < w.cfg.IntermissionTicks()-1; i++ {
		step(t, w)
		require.Equal(t, entity.PhaseRoundEnd, w.Phase())
	}
	step(t, w)
	assert.Equal(t, entity.PhaseRunning, w.Phase())
	assert.Equal(t, 2, w.Round())
}

func TestStep_TauntAndShotCooldown(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	w.Add(ctx, "Loud", "#000000", `function think(s) { return {shoot: true, taunt: "hello"}; }`)
	w.Add(ctx, "Quiet", "#000000", idleBrain)
	w.Begin()
	place(w.Tank("Loud"), 400, 300, 90)
	place(w.Tank("Quiet"), 100, 100, 0)

	for i := 0; i < entity.ShotCooldownTicks; i++ {
		step(t, w)
	}
	assert.Len(t, w.Bullets(), 1)
	step(t, w)
	assert.Len(t, w.Bullets(), 2)

	entries := w.journal.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Loud shouts: hello", entries[len(entries)-1].Message)
}

func TestStep_OverlappingTanksSeparate(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	w.Add(ctx, "A", "#000000", idleBrain)
	w.Add(ctx, "B", "#000000", idleBrain)
	w.Begin()
	place(w.Tank("A"), 300, 300, 0)
	place(w.Tank("B"), 305, 300, 0)

	step(t, w)
	assert.InDelta(t, 2*entity.TankRadius, w.Tank("A").Pos.DistanceTo(w.Tank("B").Pos), 1e-9)
}

func TestStep_SimultaneousHitsResolveInSpawnOrder(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	for _, name := range []string{"T", "A", "B"} {
		w.Add(ctx, name, "#000000", idleBrain)
	}
	w.Begin()
	place(w.Tank("T"), 400, 300, 0)
	place(w.Tank("A"), 100, 100, 0)
	place(w.Tank("B"), 700, 500, 0)
	w.Tank("T").Health = 30

	// both bullets land on T this tick, A's was fired first
	w.bullets = []*entity.Bullet{
		{ID: 0, Owner: "A", Pos: physics.Vec2{Xv: 395, Yv: 300}, Vel: physics.Vec2{Xv: 5}, Active: true},
		{ID: 1, Owner: "B", Pos: physics.Vec2{Xv: 405, Yv: 300}, Vel: physics.Vec2{Xv: -5}, Active: true},
	}
	w.nextID = 2

	rep := step(t, w)
	require.Nil(t, rep.RoundEnded)

	target := w.Tank("T")
	assert.Equal(t, 0, target.Health)
	assert.False(t, target.Alive)

	a, b := w.Tank("A"), w.Tank("B")
	assert.Equal(t, entity.HitPoints, a.Score)
	assert.Zero(t, a.Kills)
	assert.Equal(t, entity.HitPoints+entity.KillBonus, b.Score)
	assert.Equal(t, 1, b.Kills)
	assert.Empty(t, w.Bullets())

	var lines []string
	for _, e := range w.journal.Entries() {
		lines = append(lines, e.Message)
	}
	assert.Subset(t, lines, []string{"A hit T. Health: 5", "B hit T. Health: 0", "T was destroyed by B."})
}

func TestStep_CancelledContextDropsTick(t *testing.T) {
	w := newWorld(t, nil)
	w.Add(context.Background(), "A", "#000000", circleBrain)
	w.Add(context.Background(), "B", "#000000", circleBrain)
	w.Begin()
	before := w.Snapshot("m", false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Step(ctx)
	require.ErrorIs(t, err, context.Canceled)
	after := w.Snapshot("m", false)
	assert.Equal(t, before.Tick, after.Tick)
	assert.Equal(t, before.Tanks, after.Tanks)
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	sources := map[string]string{"A": spinnerBrain, "B": circleBrain, "C": spinnerBrain}
	for _, name := range []string{"A", "B", "C"} {
		w.Add(ctx, name, "#abcdef", sources[name])
	}
	w.Begin()
	place(w.Tank("A"), 200, 200, 0)
	place(w.Tank("B"), 240, 200, 90)
	for i := 0; i < 90; i++ {
		step(t, w)
	}
	snap := w.Snapshot("match-1", false)

	fresh := newWorld(t, nil)
	fresh.Restore(ctx, snap, sources)
	got := fresh.Snapshot("match-1", false)

	assert.Equal(t, snap.Tanks, got.Tanks)
	assert.Equal(t, snap.Bullets, got.Bullets)
	assert.Equal(t, snap.Scores, got.Scores)
	assert.Equal(t, snap.Round, got.Round)
	assert.Equal(t, snap.Tick, got.Tick)
	assert.Equal(t, snap.TimeRemaining, got.TimeRemaining)
	assert.Equal(t, entity.PhaseIdle, got.Phase)

	fresh.Begin()
	assert.Equal(t, entity.PhaseRunning, fresh.Phase())
	assert.Equal(t, snap.Round, fresh.Round())
	rep := step(t, fresh)
	assert.Equal(t, snap.Tick+1, rep.Tick)
}

func TestClear_KeepsTanksAndZeroesScores(t *testing.T) {
	w := newWorld(t, func(c *config.MatchConfig) { c.MaxRounds = 1 })
	ctx := context.Background()
	w.Add(ctx, "Target", "#111111", idleBrain)
	w.Add(ctx, "Gunner", "#222222", gunnerBrain)
	w.Begin()
	place(w.Tank("Target"), 100, 300, 0)
	place(w.Tank("Gunner"), 300, 300, 180)
	for w.Phase() != entity.PhaseFinished {
		step(t, w)
	}
	require.NotZero(t, w.Tank("Gunner").Score)

	w.Clear(ctx)
	assert.Equal(t, entity.PhaseIdle, w.Phase())
	assert.Zero(t, w.Tick())
	assert.Empty(t, w.Rounds())
	assert.Len(t, w.Tanks(), 2)
	for _, tank := range w.Tanks() {
		assert.Zero(t, tank.Score)
		assert.Equal(t, entity.MaxHealth, tank.Health)
	}
}

func TestRemove(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	w.Add(ctx, "A", "#000000", idleBrain)
	w.Add(ctx, "B", "#000000", idleBrain)

	assert.True(t, w.Remove("A"))
	assert.False(t, w.Remove("A"))
	assert.Nil(t, w.Tank("A"))
	assert.Len(t, w.Tanks(), 1)
}
