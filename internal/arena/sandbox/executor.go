package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/core/observability/log"
)

// Globals removed from every agent runtime. Nothing else is installed: the
// script sees the ECMAScript built-ins (Math, JSON, Array, ...) and the
// state argument, with Math.random backed by a seeded per-agent source.
var hiddenGlobals = []string{"eval", "Function"}

// Function flavours whose prototype exposes a constructor that compiles
// source text. Forms this interpreter cannot parse are skipped.
var functionForms = []string{
	"(function(){})",
	"(function*(){})",
	"(async function(){})",
	"(async function*(){})",
}

// Options tunes an Executor.
type Options struct {
	// Timeout is the wall-clock budget of one think call.
	Timeout time.Duration
	// Grace is how long past Timeout the executor keeps waiting for an
	// interrupted runtime before abandoning the call.
	Grace time.Duration
	// MaxCallStackSize caps script recursion depth.
	MaxCallStackSize int
}

func DefaultOptions() Options {
	return Options{
		Timeout:          50 * time.Millisecond,
		Grace:            20 * time.Millisecond,
		MaxCallStackSize: 256,
	}
}

// Executor runs untrusted decision code under a time budget.
type Executor struct {
	opts   Options
	logger log.Log
}

func NewExecutor(opts Options, logger log.Log) *Executor {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Grace <= 0 {
		opts.Grace = def.Grace
	}
	if opts.MaxCallStackSize <= 0 {
		opts.MaxCallStackSize = def.MaxCallStackSize
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Executor{
		opts:   opts,
		logger: logger.With(log.String("component", "sandbox")),
	}
}

func (e *Executor) Timeout() time.Duration { return e.opts.Timeout }

// Agent is one loaded piece of decision code with its private runtime. A
// runtime is only ever driven by one goroutine at a time.
type Agent struct {
	name  string
	vm    *goja.Runtime
	think goja.Callable
	err   *Failure

	busy atomic.Bool

	// mu orders watchdog interrupts against the start of the next call so a
	// late timer cannot interrupt a call it does not belong to.
	mu  sync.Mutex
	gen uint64
}

func (a *Agent) Name() string { return a.name }

// Err is the load failure, if any. A failed agent reports it on every
// Decide call.
func (a *Agent) Err() error {
	if a.err == nil {
		return nil
	}
	return a.err
}

// HasBrain is false for agents registered without code; they always idle.
func (a *Agent) HasBrain() bool {
	return a.think != nil || a.err != nil
}

// Load compiles source and evaluates its top level under the think budget,
// so a script cannot hang the caller before think is even reached. Empty
// source yields an agent that always idles.
func (e *Executor) Load(ctx context.Context, name, source string, seed int64) *Agent {
	a := &Agent{name: name}
	if strings.TrimSpace(source) == "" {
		return a
	}

	prog, err := goja.Compile(name+".js", source, false)
	if err != nil {
		a.err = fail(FailureRuntime, name, fmt.Errorf("compile: %w", err))
		e.logger.Warn("Decision code does not compile", log.Agent(name), log.Error(err))
		return a
	}

	a.vm = newRuntime(seed, e.opts.MaxCallStackSize)
	v, err := e.run(ctx, a, func(vm *goja.Runtime) (any, error) {
		if _, err := vm.RunProgram(prog); err != nil {
			return nil, err
		}
		fn, ok := goja.AssertFunction(vm.Get("think"))
		if !ok {
			return nil, errNoThink
		}
		return fn, nil
	})
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = fail(FailureRuntime, name, err)
		}
		a.err = f
		e.logger.Warn("Decision code failed to load", log.Agent(name), log.Error(err))
		return a
	}
	a.think = v.(goja.Callable)
	return a
}

// Decide runs think once. On any failure the returned action is a no-op and
// the error is a *Failure, except when ctx itself ended, in which case
// ctx.Err() is returned and the caller should drop the tick.
func (e *Executor) Decide(ctx context.Context, a *Agent, view View) (entity.Action, error) {
	if a == nil || !a.HasBrain() {
		return entity.Noop, nil
	}
	if a.err != nil {
		return entity.Noop, a.err
	}

	think := a.think
	v, err := e.run(ctx, a, func(vm *goja.Runtime) (any, error) {
		res, err := think(goja.Undefined(), vm.ToValue(view.toJS()))
		if err != nil {
			return nil, err
		}
		if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
			return nil, nil
		}
		return res.Export(), nil
	})
	if err != nil {
		return entity.Noop, err
	}

	action, err := parseAction(v)
	if err != nil {
		return entity.Noop, fail(FailureInvalidAction, a.name, err)
	}
	return action, nil
}

type outcome struct {
	value any
	err   error
}

// run drives fn on the agent's runtime in a separate goroutine. A watchdog
// interrupts the runtime when the budget expires or ctx ends; if the
// runtime still has not returned after the grace period the call is
// abandoned and the agent stays busy until it does.
func (e *Executor) run(ctx context.Context, a *Agent, fn func(vm *goja.Runtime) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !a.busy.CompareAndSwap(false, true) {
		return nil, fail(FailureTimeout, a.name, errStillBusy)
	}

	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.vm.ClearInterrupt()
	a.mu.Unlock()

	interrupt := func(reason error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.gen == gen {
			a.vm.Interrupt(reason)
		}
	}

	done := make(chan outcome, 1)
	go func() {
		out := invoke(a.vm, fn)
		a.busy.Store(false)
		done <- out
	}()

	watchdog := time.AfterFunc(e.opts.Timeout, func() { interrupt(errDeadline) })
	defer watchdog.Stop()
	stop := context.AfterFunc(ctx, func() { interrupt(ctx.Err()) })
	defer stop()

	abandon := time.NewTimer(e.opts.Timeout + e.opts.Grace)
	defer abandon.Stop()

	select {
	case out := <-done:
		if out.err == nil {
			return out.value, nil
		}
		return nil, classify(ctx, a.name, out.err)
	case <-abandon.C:
		e.logger.Warn("Abandoning unresponsive agent runtime", log.Agent(a.name))
		return nil, fail(FailureTimeout, a.name, errAbandoned)
	}
}

func invoke(vm *goja.Runtime, fn func(vm *goja.Runtime) (any, error)) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%w: %v", errPanicInside, r)}
		}
	}()
	v, err := fn(vm)
	return outcome{value: v, err: err}
}

func classify(ctx context.Context, agent string, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if reason, ok := interrupted.Value().(error); ok && !errors.Is(reason, errDeadline) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fail(FailureTimeout, agent, errDeadline)
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fail(FailureRuntime, agent, errors.New(ex.Error()))
	}
	return fail(FailureRuntime, agent, err)
}

func newRuntime(seed int64, maxCallStack int) *goja.Runtime {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStack)
	rng := rand.New(rand.NewSource(seed))
	vm.SetRandSource(rng.Float64)

	// (function(){}).constructor and friends reach the constructors
	// without naming them, so cut the link on every function prototype.
	for _, form := range functionForms {
		fn, err := vm.RunString(form)
		if err != nil {
			continue
		}
		proto := fn.ToObject(vm).Prototype()
		if proto == nil {
			continue
		}
		if err := proto.Delete("constructor"); err != nil {
			_ = proto.Set("constructor", goja.Undefined())
		}
	}

	global := vm.GlobalObject()
	for _, name := range hiddenGlobals {
		_ = global.Delete(name)
	}
	return vm
}
