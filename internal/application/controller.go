package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/neoxalle/nx/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const updatesBuffer = 16

type ControllerDeps struct {
	Transport ports.Transport
	Clock     ports.Clock
	Recorder  *Recorder
	Random    rand.Source
	Logger    *zap.Logger
}

// Controller owns one connection to the hub and the session running on it.
// Inbound chunks, user inputs and timer fires all funnel through a single
// loop goroutine, so the decoder, roster and orchestrator are never touched
// concurrently. The roster and decoder live as long as the Controller.
type Controller struct {
	clock    ports.Clock
	recorder *Recorder
	logger   *zap.Logger

	roster      *domain.Roster
	decoder     *protocol.Decoder
	interpreter *Interpreter
	channel     *Channel
	machine     *Orchestrator

	inbox chan message
	done  chan struct{}

	// Inbound chunks queue here instead of the inbox. A transport may wait
	// for its reader while the loop is inside a send, so delivery never
	// blocks on the loop.
	chunksMu    sync.Mutex
	chunks      []string
	chunksReady chan struct{}

	// Loop-owned.
	timers     map[TimerKind]*armedTimer
	sends      map[int]ports.Timer
	sendGen    int
	nextSend   int
	lastRecord *domain.SessionRecord
	waiters    []chan domain.SessionRecord

	subsMu sync.Mutex
	subs   []chan View

	openOnce  sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group
	closeErr  error
}

type message interface{}

type inputMsg struct {
	input Input
	reply chan error
}

type scanMsg struct {
	reply chan error
}

type viewMsg struct {
	reply chan View
}

type waitMsg struct {
	reply chan domain.SessionRecord
}

type timerMsg struct {
	kind TimerKind
	gen  int
}

type sendMsg struct {
	id      int
	gen     int
	command domain.Command
}

type armedTimer struct {
	mu      sync.Mutex
	gen     int
	timer   ports.Timer
	stopped bool
}

func (t *armedTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func NewController(deps ControllerDeps) *Controller {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	roster := domain.NewRoster()
	c := &Controller{
		clock:       deps.Clock,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		roster:      roster,
		decoder:     protocol.NewDecoder(),
		interpreter: NewInterpreter(roster, deps.Logger.Named("interpreter")),
		machine:     NewOrchestrator(deps.Random),
		inbox:       make(chan message),
		done:        make(chan struct{}),
		chunksReady: make(chan struct{}, 1),
		timers:      make(map[TimerKind]*armedTimer),
		sends:       make(map[int]ports.Timer),
	}
	c.channel = NewChannel(deps.Transport, c.onChunk, deps.Logger.Named("channel"))
	return c
}

// Open connects the transport and starts the loop. The loop runs until
// Close; ctx only bounds the connect.
func (c *Controller) Open(ctx context.Context) error {
	err := ErrControllerClosed
	c.openOnce.Do(func() {
		if err = c.channel.Open(ctx); err != nil {
			return
		}

		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		group, gctx := errgroup.WithContext(loopCtx)
		c.cancel = cancel
		c.group = group

		group.Go(func() error { return c.run(gctx) })
		if c.recorder != nil {
			group.Go(func() error { return c.recorder.Run(gctx) })
		}
		c.logger.Info("controller open")
	})
	return err
}

func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		var errs []error
		if c.group != nil {
			c.cancel()
			errs = append(errs, c.group.Wait())
		}
		errs = append(errs, c.channel.Close())

		c.subsMu.Lock()
		for _, sub := range c.subs {
			close(sub)
		}
		c.subs = nil
		c.subsMu.Unlock()

		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// Scan asks the hub for a status snapshot.
func (c *Controller) Scan(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.request(ctx, scanMsg{reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Submit feeds one user input to the orchestrator and returns its verdict.
func (c *Controller) Submit(ctx context.Context, input Input) error {
	reply := make(chan error, 1)
	if err := c.request(ctx, inputMsg{input: input, reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

func (c *Controller) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.request(ctx, viewMsg{reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case view := <-reply:
		return view, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (c *Controller) Roster(ctx context.Context) ([]domain.SlaveInfo, error) {
	view, err := c.View(ctx)
	if err != nil {
		return nil, err
	}
	return view.Slaves, nil
}

// WaitFinished blocks until a session finishes and returns its stamped
// record. A session that already finished is returned immediately.
func (c *Controller) WaitFinished(ctx context.Context) (domain.SessionRecord, error) {
	reply := make(chan domain.SessionRecord, 1)
	if err := c.request(ctx, waitMsg{reply: reply}); err != nil {
		return domain.SessionRecord{}, err
	}
	select {
	case record := <-reply:
		return record, nil
	case <-ctx.Done():
		return domain.SessionRecord{}, ctx.Err()
	case <-c.done:
		return domain.SessionRecord{}, ErrControllerClosed
	}
}

// Updates returns a stream of views published after every change. A
// subscriber that falls behind misses views rather than stalling the loop.
func (c *Controller) Updates() <-chan View {
	ch := make(chan View, updatesBuffer)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	select {
	case <-c.done:
		close(ch)
	default:
		c.subs = append(c.subs, ch)
	}
	return ch
}

func (c *Controller) LinkStatus() string {
	return c.channel.Status()
}

func (c *Controller) request(ctx context.Context, msg message) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerClosed
	}
}

func (c *Controller) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) post(msg message) {
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

func (c *Controller) onChunk(chunk string) {
	c.chunksMu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.chunksMu.Unlock()

	select {
	case c.chunksReady <- struct{}{}:
	default:
	}
}

func (c *Controller) takeChunks() []string {
	c.chunksMu.Lock()
	defer c.chunksMu.Unlock()
	chunks := c.chunks
	c.chunks = nil
	return chunks
}

func (c *Controller) run(ctx context.Context) error {
	defer c.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.chunksReady:
			changed := false
			for _, chunk := range c.takeChunks() {
				changed = c.handleChunk(ctx, chunk) || changed
			}
			if changed {
				c.publish()
			}
		case msg := <-c.inbox:
			if c.dispatch(ctx, msg) {
				c.publish()
			}
		}
	}
}

// dispatch handles one message and reports whether the view may have changed.
func (c *Controller) dispatch(ctx context.Context, msg message) bool {
	switch m := msg.(type) {
	case inputMsg:
		m.reply <- c.handle(ctx, m.input)
		return true
	case scanMsg:
		m.reply <- c.channel.Send(ctx, domain.ScanSlaves())
		return false
	case viewMsg:
		m.reply <- c.view()
		return false
	case waitMsg:
		if c.machine.Phase() == PhaseFinished && c.lastRecord != nil {
			m.reply <- *c.lastRecord
		} else {
			c.waiters = append(c.waiters, m.reply)
		}
		return false
	case timerMsg:
		return c.handleTimer(ctx, m)
	case sendMsg:
		if m.gen != c.sendGen {
			return false
		}
		delete(c.sends, m.id)
		c.send(ctx, m.command)
		return false
	default:
		c.logger.Warn("unknown loop message", zap.String("type", fmt.Sprintf("%T", msg)))
		return false
	}
}

func (c *Controller) handleChunk(ctx context.Context, chunk string) bool {
	frames := c.decoder.Feed(chunk)
	for _, frame := range frames {
		event, ok := c.interpreter.Interpret(frame)
		if !ok {
			continue
		}
		c.channel.SetTopologyReady(c.roster.ConnectedCount() > 0)
		if err := c.handle(ctx, EventReceived{Event: event, At: c.clock.Now()}); err != nil {
			c.logger.Debug("event ignored", zap.Error(err))
		}
	}
	return len(frames) > 0
}

func (c *Controller) handleTimer(ctx context.Context, m timerMsg) bool {
	armed, ok := c.timers[m.kind]
	if !ok || armed.gen != m.gen {
		return false
	}
	armed.mu.Lock()
	repeating := !armed.stopped && armed.timer != nil
	armed.mu.Unlock()
	if !repeating {
		delete(c.timers, m.kind)
	}

	if err := c.handle(ctx, TimerFired{Kind: m.kind, Gen: m.gen}); err != nil {
		c.logger.Debug("timer ignored", zap.Error(err))
	}
	return true
}

func (c *Controller) handle(ctx context.Context, input Input) error {
	effects, err := c.machine.Handle(input, c.roster, c.clock.Now())
	if err != nil {
		return err
	}
	c.apply(ctx, effects)
	return nil
}

func (c *Controller) apply(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case SendCommand:
			if e.Delay <= 0 {
				c.send(ctx, e.Command)
				continue
			}
			c.scheduleSend(e)
		case StartTimer:
			c.startTimer(e)
		case CancelTimer:
			if armed, ok := c.timers[e.Kind]; ok {
				armed.stop()
				delete(c.timers, e.Kind)
			}
		case CancelSends:
			c.sendGen++
			for id, timer := range c.sends {
				timer.Stop()
				delete(c.sends, id)
			}
		case SaveRecord:
			c.saveRecord(e.Record)
		}
	}
}

// send never fails the session; the channel already tried its reconnect.
func (c *Controller) send(ctx context.Context, cmd domain.Command) {
	if err := c.channel.Send(ctx, cmd); err != nil {
		c.logger.Warn("send command", zap.String("command", string(cmd.Name)), zap.Error(err))
	}
}

func (c *Controller) scheduleSend(e SendCommand) {
	c.nextSend++
	msg := sendMsg{id: c.nextSend, gen: c.sendGen, command: e.Command}
	c.sends[msg.id] = c.clock.AfterFunc(e.Delay, func() { c.post(msg) })
}

func (c *Controller) startTimer(e StartTimer) {
	if prev, ok := c.timers[e.Kind]; ok {
		prev.stop()
	}

	armed := &armedTimer{gen: e.Gen}
	msg := timerMsg{kind: e.Kind, gen: e.Gen}

	var fire func()
	fire = func() {
		armed.mu.Lock()
		if armed.stopped {
			armed.mu.Unlock()
			return
		}
		if e.Repeat {
			armed.timer = c.clock.AfterFunc(e.After, fire)
		} else {
			armed.timer = nil
		}
		armed.mu.Unlock()
		c.post(msg)
	}

	armed.mu.Lock()
	armed.timer = c.clock.AfterFunc(e.After, fire)
	armed.mu.Unlock()
	c.timers[e.Kind] = armed
}

func (c *Controller) stopTimers() {
	for kind, armed := range c.timers {
		armed.stop()
		delete(c.timers, kind)
	}
	for id, timer := range c.sends {
		timer.Stop()
		delete(c.sends, id)
	}
}

func (c *Controller) saveRecord(record domain.SessionRecord) {
	if c.recorder != nil {
		record = c.recorder.Record(record)
	}
	c.lastRecord = &record
	c.logger.Info("session finished",
		zap.String("id", record.ID),
		zap.String("mode", string(record.GameType)),
		zap.Int("presses", record.TotalPresses()),
	)

	for _, waiter := range c.waiters {
		waiter <- record
	}
	c.waiters = nil
}

func (c *Controller) view() View {
	view := c.machine.View()
	view.Slaves = c.roster.Slaves()
	view.LinkStatus = c.channel.Status()
	if view.Record != nil && c.lastRecord != nil {
		record := *c.lastRecord
		view.Record = &record
	}
	return view
}

func (c *Controller) publish() {
	view := c.view()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		select {
		case sub <- view:
		default:
		}
	}
}
