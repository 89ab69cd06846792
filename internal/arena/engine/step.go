package engine

import (
	"context"
	"errors"

	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/sandbox"
	"github.com/zeusync/arena/internal/arena/telemetry"
	"github.com/zeusync/arena/internal/core/observability/log"
	"github.com/zeusync/arena/internal/core/physics"
	"github.com/zeusync/arena/pkg/concurrent"
)

// Report summarizes one Step.
type Report struct {
	Tick     uint64
	Failures []*sandbox.Failure
	// RoundEnded is set on the tick a round ended.
	RoundEnded *entity.RoundResult
	// Finished is set on the tick the match reached Finished.
	Finished bool
}

type decision struct {
	tank   *entity.Tank
	action entity.Action
	err    error
}

// Step advances the world by one tick. It only fails when ctx ends while
// agents are deciding; the tick is then dropped and the world is left as it
// was before the call.
func (w *World) Step(ctx context.Context) (Report, error) {
	switch w.phase {
	case entity.PhaseRunning:
		return w.stepRunning(ctx)
	case entity.PhaseRoundEnd:
		w.tick++
		rep := Report{Tick: w.tick}
		if w.tick-w.roundEnd >= w.cfg.IntermissionTicks() {
			rep.Finished = w.advance()
		}
		return rep, nil
	default:
		return Report{Tick: w.tick}, nil
	}
}

func (w *World) stepRunning(ctx context.Context) (Report, error) {
	decisions, err := w.decide(ctx)
	if err != nil {
		return Report{Tick: w.tick}, err
	}

	w.tick++
	rep := Report{Tick: w.tick}

	for _, d := range decisions {
		if d.err != nil {
			var f *sandbox.Failure
			if errors.As(d.err, &f) {
				rep.Failures = append(rep.Failures, f)
				w.recordFailure(f)
			}
			continue
		}
		w.apply(d.tank, d.action)
	}
	w.separate()
	w.moveBullets()
	w.resolveHits()

	if result := w.checkRoundEnd(); result != nil {
		rep.RoundEnded = result
		if w.cfg.IntermissionTicks() == 0 {
			rep.Finished = w.advance()
		}
	}
	return rep, nil
}

// decide builds one view per alive tank and runs every agent, in parallel
// but bounded by MaxWorkers. Results come back in registration order.
func (w *World) decide(ctx context.Context) ([]decision, error) {
	alive := make([]*entity.Tank, 0, len(w.tanks))
	for _, t := range w.tanks {
		if t.Alive {
			alive = append(alive, t)
		}
	}
	views := make([]sandbox.View, len(alive))
	for i, t := range alive {
		views[i] = w.viewFor(t)
	}

	return concurrent.ParallelMap(ctx, alive, w.cfg.MaxWorkers, func(ctx context.Context, i int, t *entity.Tank) (decision, error) {
		action, err := w.exec.Decide(ctx, w.agents[t.Name], views[i])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return decision{}, ctxErr
			}
		}
		return decision{tank: t, action: action, err: err}, nil
	})
}

func (w *World) viewFor(self *entity.Tank) sandbox.View {
	v := sandbox.View{
		Self:        tankView(self),
		Others:      make([]sandbox.TankView, 0, len(w.tanks)-1),
		Bullets:     make([]sandbox.BulletView, 0, len(w.bullets)),
		ArenaWidth:  w.cfg.ArenaWidth,
		ArenaHeight: w.cfg.ArenaHeight,
	}
	for _, t := range w.tanks {
		if t != self && t.Alive {
			v.Others = append(v.Others, tankView(t))
		}
	}
	for _, b := range w.bullets {
		v.Bullets = append(v.Bullets, sandbox.BulletView{
			X:         b.X(),
			Y:         b.Y(),
			VelocityX: b.Vel.Xv,
			VelocityY: b.Vel.Yv,
			Owner:     b.Owner,
		})
	}
	return v
}

func tankView(t *entity.Tank) sandbox.TankView {
	return sandbox.TankView{Name: t.Name, X: t.X(), Y: t.Y(), Angle: t.Angle, Health: t.Health, Alive: t.Alive}
}

func (w *World) recordFailure(f *sandbox.Failure) {
	var kind telemetry.Kind
	switch f.Kind {
	case sandbox.FailureTimeout:
		kind = telemetry.KindTimeout
	case sandbox.FailureInvalidAction:
		kind = telemetry.KindInvalidAction
	default:
		kind = telemetry.KindRuntimeError
	}
	w.recorder.Record(f.Agent, w.tick, kind, map[string]any{"error": f.Err.Error()})
	if f.Kind == sandbox.FailureTimeout {
		w.journal.Logf("%s timed out.", f.Agent)
	}
	w.logger.Warn("Agent decision failed",
		log.Agent(f.Agent),
		log.Tick(w.tick),
		log.String("kind", f.Kind.String()),
		log.Error(f.Err),
	)
}

func (w *World) apply(t *entity.Tank, a entity.Action) {
	if !t.Alive {
		return
	}
	if t.Drive(a.Move, w.bounds) {
		w.recorder.Record(t.Name, w.tick, telemetry.KindMove, map[string]any{
			"direction": a.Move.String(),
			"x":         t.X(),
			"y":         t.Y(),
		})
	}
	if t.Turn(a.Rotate) {
		w.recorder.Record(t.Name, w.tick, telemetry.KindRotate, map[string]any{
			"direction": a.Rotate,
			"angle":     t.Angle,
		})
	}
	if a.Shoot {
		if b, ok := t.Fire(w.tick, w.nextID); ok {
			w.nextID++
			w.bullets = append(w.bullets, b)
			w.recorder.Record(t.Name, w.tick, telemetry.KindShoot, map[string]any{
				"bullet_id": b.ID,
				"x":         b.X(),
				"y":         b.Y(),
				"angle":     t.Angle,
			})
		}
	}
	if a.Taunt != "" {
		w.journal.Logf("%s shouts: %s", t.Name, a.Taunt)
	}
}

// separate pushes overlapping live tanks apart so they just touch.
func (w *World) separate() {
	for i := 0; i < len(w.tanks); i++ {
		a := w.tanks[i]
		if !a.Alive {
			continue
		}
		for j := i + 1; j < len(w.tanks); j++ {
			b := w.tanks[j]
			if !b.Alive || !physics.Overlaps(a, b) {
				continue
			}
			na, nb, ok := physics.Separate(a.Pos, b.Pos, 2*entity.TankRadius, w.rng.Float64()*360)
			if ok {
				a.Place(na, w.bounds)
				b.Place(nb, w.bounds)
			}
		}
	}
}

func (w *World) moveBullets() {
	kept := w.bullets[:0]
	for _, b := range w.bullets {
		b.Advance()
		if w.bounds.Contains(b.Pos) && !b.Expired() {
			kept = append(kept, b)
			continue
		}
		b.Active = false
	}
	clear(w.bullets[len(kept):])
	w.bullets = kept
}

// resolveHits walks bullets in spawn order. A tank can take several hits in
// one tick; each one is scored on its own.
func (w *World) resolveHits() {
	kept := w.bullets[:0]
	for _, b := range w.bullets {
		target := w.hitTarget(b)
		if target == nil {
			kept = append(kept, b)
			continue
		}
		b.Active = false
		w.hit(b, target)
	}
	clear(w.bullets[len(kept):])
	w.bullets = kept
}

func (w *World) hitTarget(b *entity.Bullet) *entity.Tank {
	for _, t := range w.tanks {
		if t.Alive && t.Name != b.Owner && physics.PointInCircle(b.Pos, t.Pos, entity.TankRadius) {
			return t
		}
	}
	return nil
}

func (w *World) hit(b *entity.Bullet, target *entity.Tank) {
	destroyed := target.TakeDamage(entity.DamagePerHit)
	w.recorder.Record(target.Name, w.tick, telemetry.KindHit, map[string]any{
		"by":        b.Owner,
		"bullet_id": b.ID,
	})
	w.recorder.Record(target.Name, w.tick, telemetry.KindDamage, map[string]any{
		"amount": entity.DamagePerHit,
		"health": target.Health,
	})
	w.journal.Logf("%s hit %s. Health: %d", b.Owner, target.Name, target.Health)

	shooter := w.Tank(b.Owner)
	if shooter != nil {
		shooter.Award(entity.HitPoints)
		w.recorder.Record(shooter.Name, w.tick, telemetry.KindSuccessfulHit, map[string]any{
			"target":        target.Name,
			"target_health": target.Health,
		})
	}
	if !destroyed {
		return
	}

	w.recorder.Record(target.Name, w.tick, telemetry.KindDestroyed, map[string]any{"by": b.Owner})
	w.journal.Logf("%s was destroyed by %s.", target.Name, b.Owner)
	if shooter != nil {
		shooter.Kills++
		shooter.Award(entity.KillBonus)
	}
}

// checkRoundEnd ends the round when at most one tank is alive or the round
// clock has run past the round duration. The survivor check wins when both hold.
func (w *World) checkRoundEnd() *entity.RoundResult {
	var survivors []string
	for _, t := range w.tanks {
		if t.Alive {
			survivors = append(survivors, t.Name)
		}
	}

	var reason entity.RoundEndReason
	switch {
	case len(survivors) <= 1:
		reason = entity.RoundEndLastStanding
		w.journal.Logf("Only one tank remaining. Ending round early.")
	case w.tick-w.roundStart > w.cfg.RoundTicks():
		reason = entity.RoundEndTimeLimit
	default:
		return nil
	}

	result := entity.RoundResult{
		Round:     w.round,
		Reason:    reason,
		EndTick:   w.tick,
		Scores:    make(map[string]int, len(w.tanks)),
		Survivors: append([]string{}, survivors...),
	}
	for _, t := range w.tanks {
		result.Scores[t.Name] = t.RoundScore
	}
	w.rounds = append(w.rounds, result)
	w.phase = entity.PhaseRoundEnd
	w.roundEnd = w.tick
	w.journal.Logf("Round %d completed.", w.round)
	w.logger.Info("Round ended",
		log.Int("round", w.round),
		log.String("reason", string(reason)),
		log.Tick(w.tick),
	)
	return &result
}

// advance leaves RoundEnd: either the next round starts or the match is
// over. It reports whether the match finished.
func (w *World) advance() bool {
	if w.round >= w.cfg.MaxRounds {
		w.Finish()
		return true
	}
	w.round++
	w.bullets = nil
	w.roundStart = w.tick
	for _, t := range w.tanks {
		pos, angle := w.spawn()
		t.ResetForRound(pos, angle)
	}
	w.phase = entity.PhaseRunning
	return false
}
