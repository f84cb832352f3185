package command

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/divyamohan1993/scry/pkg/actuator"
)

// Config tunes the executor's timing and completion policy.
type Config struct {
	// ScreenWidth and ScreenHeight scale normalized coordinates to pixels.
	ScreenWidth  int
	ScreenHeight int

	// AutoExecute triggers execution immediately on enqueue.
	AutoExecute bool

	// InterStepDelay separates composite sub-commands when the payload
	// does not carry its own delay.
	InterStepDelay time.Duration

	// TypingMistakes enables typo simulation for type_text payloads that
	// request it.
	TypingMistakes bool

	// OptimisticComplete marks a command executed even when its actuation
	// failed. The default leaves failed commands pending.
	OptimisticComplete bool

	// Seed fixes the random source for reproducible runs; zero means
	// time-based.
	Seed int64
}

// Result is delivered to listeners after every execution attempt.
type Result struct {
	Command Command
	Err     error
}

// Listener receives execution results.
type Listener func(Result)

// Executor owns the FIFO command queue and serializes actuation. Enqueue and
// execution triggers can arrive concurrently from the signaling transport
// and the data channel; a single in-flight flag guarantees sequential,
// non-overlapping actuation, and a condition variable lets drain calls wait
// for an ongoing execution instead of racing it.
type Executor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*Command
	nextID   uint64
	inFlight bool
	auto     bool

	cfg  Config
	act  actuator.Actuator
	pace *pacer
	log  *logrus.Entry

	listenerMu sync.Mutex
	listeners  []Listener
}

// New creates an executor driving the given actuator.
func New(cfg Config, act actuator.Actuator, logger *logrus.Logger) *Executor {
	if cfg.ScreenWidth <= 0 {
		cfg.ScreenWidth = 1920
	}
	if cfg.ScreenHeight <= 0 {
		cfg.ScreenHeight = 1080
	}
	if cfg.InterStepDelay <= 0 {
		cfg.InterStepDelay = DefaultInterStepDelay
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Executor{
		cfg:  cfg,
		act:  act,
		auto: cfg.AutoExecute,
		pace: newPacer(seed),
		log:  logger.WithField("component", "executor"),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// AddListener subscribes to execution results. Listeners are invoked after
// the executed flag settles, outside the queue lock.
func (e *Executor) AddListener(l Listener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Executor) notify(res Result) {
	e.listenerMu.Lock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenerMu.Unlock()
	for _, l := range listeners {
		l(res)
	}
}

// Enqueue appends a command, assigns its monotonic id, and triggers
// execution when auto-execute is on. Returns the assigned id.
func (e *Executor) Enqueue(ctx context.Context, p Payload) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.nextID++
	cmd := &Command{ID: e.nextID, Payload: p, ReceivedAt: time.Now()}
	e.queue = append(e.queue, cmd)
	id := cmd.ID
	auto := e.auto
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"id": id, "type": p.Type}).Debug("command enqueued")

	if auto {
		// Triggered off the caller's goroutine so enqueuing from a
		// transport read loop never stalls behind actuation. The
		// in-flight guard keeps execution itself sequential.
		go e.ExecuteNext(ctx)
	}
	return id, nil
}

// SetAutoExecute toggles auto-execute. Enabling it immediately attempts the
// next pending command.
func (e *Executor) SetAutoExecute(ctx context.Context, enabled bool) {
	e.mu.Lock()
	e.auto = enabled
	e.mu.Unlock()
	if enabled {
		e.ExecuteNext(ctx)
	}
}

// Pending returns the number of commands not yet executed (failed commands
// excluded; they stay in the queue but are not retried).
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.queue {
		if !c.Executed && !c.tried {
			n++
		}
	}
	return n
}

// Queue returns a snapshot of the queue.
func (e *Executor) Queue() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Command, len(e.queue))
	for i, c := range e.queue {
		out[i] = *c
	}
	return out
}

// ClearExecuted drops executed commands from the queue. This is the only
// way a command ever leaves the queue.
func (e *Executor) ClearExecuted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.queue[:0]
	removed := 0
	for _, c := range e.queue {
		if c.Executed {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	e.queue = kept
	return removed
}

// nextPendingLocked returns the oldest command that has neither executed nor
// already failed an attempt. Callers hold e.mu.
func (e *Executor) nextPendingLocked() *Command {
	for _, c := range e.queue {
		if !c.Executed && !c.tried {
			return c
		}
	}
	return nil
}

// ExecuteNext executes the oldest pending command. If an execution is
// already in flight the call is a no-op and returns false. While
// auto-execute is on, it keeps going until the queue drains.
func (e *Executor) ExecuteNext(ctx context.Context) bool {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return false
	}
	executedAny := false
	for {
		if e.inFlight {
			// Another caller slipped in between iterations; it owns
			// the drain now.
			break
		}
		cmd := e.nextPendingLocked()
		if cmd == nil {
			break
		}
		e.inFlight = true
		payload := cmd.Payload
		e.mu.Unlock()

		err := e.run(ctx, payload)

		e.mu.Lock()
		cmd.tried = true
		if err == nil || e.cfg.OptimisticComplete {
			cmd.Executed = true
		}
		snapshot := *cmd
		e.inFlight = false
		e.cond.Broadcast()
		auto := e.auto
		e.mu.Unlock()

		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"id": snapshot.ID, "type": snapshot.Payload.Type,
			}).Warn("command actuation failed")
		} else {
			executedAny = true
		}
		e.notify(Result{Command: snapshot, Err: err})

		if ctx.Err() != nil {
			return executedAny
		}
		e.mu.Lock()
		if !auto {
			break
		}
	}
	e.mu.Unlock()
	return executedAny
}

// ExecuteAll drains the queue, waiting out any execution already in flight,
// and keeps draining if new commands arrive mid-way. Returns when no
// pending command remains or the context is cancelled.
func (e *Executor) ExecuteAll(ctx context.Context) {
	for {
		e.mu.Lock()
		for e.inFlight {
			e.cond.Wait()
		}
		pending := e.nextPendingLocked() != nil
		e.mu.Unlock()
		if !pending || ctx.Err() != nil {
			return
		}
		e.ExecuteNext(ctx)
	}
}

// run performs one payload. Composite payloads expand here; the composite
// itself is never actuated.
func (e *Executor) run(ctx context.Context, p Payload) error {
	switch p.Type {
	case TypeComposite:
		return e.runComposite(ctx, p)
	case TypeMouseMove:
		return e.runMouseMove(ctx, p)
	case TypeMouseClick:
		return e.runMouseClick(ctx, p)
	case TypeTypeText:
		return e.runTypeText(ctx, p)
	case TypeKeyPress:
		return e.act.PressKey(ctx, actuator.NormalizeKey(p.Key))
	}
	return nil
}

// runComposite executes sub-commands in listed order with the inter-step
// delay between each. A failed step is logged and the sequence continues;
// the first error is reported so the composite stays pending under the
// default completion policy.
func (e *Executor) runComposite(ctx context.Context, p Payload) error {
	delay := e.cfg.InterStepDelay
	if p.DelayBetweenMs > 0 {
		delay = time.Duration(p.DelayBetweenMs) * time.Millisecond
	}
	var firstErr error
	for i, sub := range p.Commands {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := e.run(ctx, sub); err != nil {
			if ctx.Err() != nil {
				return err
			}
			e.log.WithError(err).WithFields(logrus.Fields{
				"step": i, "type": sub.Type,
			}).Warn("composite step failed, continuing")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Executor) scale(p Payload) (int, int) {
	x := int(p.X * float64(e.cfg.ScreenWidth))
	y := int(p.Y * float64(e.cfg.ScreenHeight))
	return x, y
}

func (e *Executor) moveDuration(p Payload) time.Duration {
	ms := p.DurationMs
	if ms <= 0 {
		ms = DefaultDurationMs
	}
	return time.Duration(ms) * time.Millisecond
}

// runMouseMove blocks for the requested movement duration; actuation
// feedback is a side effect, not a completion precondition.
func (e *Executor) runMouseMove(ctx context.Context, p Payload) error {
	x, y := e.scale(p)
	d := e.moveDuration(p)
	err := e.act.MoveMouse(ctx, x, y, d)
	if serr := sleep(ctx, d); serr != nil {
		return serr
	}
	return err
}

func (e *Executor) runMouseClick(ctx context.Context, p Payload) error {
	x, y := e.scale(p)
	button := p.Button
	if button == "" {
		button = "left"
	}
	if p.MoveFirst {
		d := e.moveDuration(p)
		if err := e.act.MoveMouse(ctx, x, y, d); err != nil {
			return err
		}
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	if err := sleep(ctx, e.pace.preClickDelay()); err != nil {
		return err
	}
	return e.act.Click(ctx, x, y, button)
}

func (e *Executor) runTypeText(ctx context.Context, p Payload) error {
	if p.ClickFirst {
		click := Payload{Type: TypeMouseClick, X: p.X, Y: p.Y, MoveFirst: true, DurationMs: p.DurationMs}
		if err := e.runMouseClick(ctx, click); err != nil {
			return err
		}
	}
	base := msPerChar(p.WpmMin, p.WpmMax)
	mistakes := e.cfg.TypingMistakes && p.MakeMistakes
	for _, r := range p.Text {
		if mistakes && e.pace.chance(typoChance) {
			if err := e.typeMistake(ctx, r, base); err != nil {
				return err
			}
		}
		if err := e.typeOne(ctx, r); err != nil {
			return err
		}
		if err := sleep(ctx, e.pace.charDelay(base)); err != nil {
			return err
		}
		if pause := e.pace.thinkPause(); pause > 0 {
			if err := sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
	return nil
}

// typeMistake types a neighbouring key, notices, and backspaces it.
func (e *Executor) typeMistake(ctx context.Context, intended rune, baseMs float64) error {
	typo := e.pace.typoFor(intended)
	if typo == 0 {
		return nil
	}
	if err := e.act.TypeRune(ctx, typo); err != nil {
		return err
	}
	if err := sleep(ctx, e.pace.charDelay(baseMs)); err != nil {
		return err
	}
	if err := e.act.PressKey(ctx, "backspace"); err != nil {
		return err
	}
	return sleep(ctx, e.pace.charDelay(baseMs))
}

func (e *Executor) typeOne(ctx context.Context, r rune) error {
	if r == '\n' {
		return e.act.PressKey(ctx, "enter")
	}
	return e.act.TypeRune(ctx, r)
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
