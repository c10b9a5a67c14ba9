// Package simhub is an in-process stand-in for the NeoXalle master. It
// answers commands the way the hub does and splits every notification into
// MTU-sized chunks so consumers see the same fragmentation as over the air.
package simhub

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/neoxalle/nx/internal/protocol"
	"go.uber.org/zap"
)

const (
	DefaultPods      = 2
	DefaultMTU       = 20
	DefaultMinPress  = 250 * time.Millisecond
	DefaultMaxPress  = 900 * time.Millisecond
	HeartbeatMessage = "Hello from NeoXalle Master"
)

var _ ports.Transport = (*Hub)(nil)

type Config struct {
	Pods int
	MTU  int
	// Presses arrive a random delay after a pod lights up.
	MinPress time.Duration
	MaxPress time.Duration
	// Heartbeat sends HeartbeatMessage on this period. Zero disables it.
	Heartbeat time.Duration
	// ManualPresses disables automatic presses; use Press instead.
	ManualPresses bool
	Clock         ports.Clock
	Random        rand.Source
	Logger        *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.Pods <= 0 {
		c.Pods = DefaultPods
	}
	if c.MTU <= 0 {
		c.MTU = DefaultMTU
	}
	if c.MinPress <= 0 {
		c.MinPress = DefaultMinPress
	}
	if c.MaxPress < c.MinPress {
		c.MaxPress = max(DefaultMaxPress, c.MinPress)
	}
	if c.Clock == nil {
		c.Clock = ports.SystemClock{}
	}
	if c.Random == nil {
		c.Random = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

type Hub struct {
	cfg Config

	mu          sync.Mutex
	rng         *rand.Rand
	connected   bool
	pods        map[domain.SlaveID]bool
	presses     map[domain.SlaveID]ports.Timer
	handlers    map[int]func(string)
	nextHandler int
	queue       []string
	written     []domain.Command
	heartbeat   ports.Timer

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config) *Hub {
	cfg.applyDefaults()

	pods := make(map[domain.SlaveID]bool, cfg.Pods)
	for i := 1; i <= cfg.Pods; i++ {
		pods[domain.SlaveID(i)] = true
	}

	return &Hub{
		cfg:      cfg,
		rng:      rand.New(cfg.Random),
		pods:     pods,
		presses:  make(map[domain.SlaveID]ports.Timer),
		handlers: make(map[int]func(string)),
		wake:     make(chan struct{}, 1),
	}
}

func (h *Hub) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = true
	h.startLocked()
	return nil
}

func (h *Hub) Reconnect(ctx context.Context) error {
	return h.Connect(ctx)
}

func (h *Hub) Disconnect() error {
	h.mu.Lock()
	h.connected = false
	h.cancelPressesLocked()
	if h.heartbeat != nil {
		h.heartbeat.Stop()
		h.heartbeat = nil
	}
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		h.wg.Wait()
	}
	return nil
}

func (h *Hub) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *Hub) Subscribe(onChunk func(chunk string)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextHandler++
	id := h.nextHandler
	h.handlers[id] = onChunk

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers, id)
	}, nil
}

func (h *Hub) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd, err := protocol.ParseCommand(text)
	if err != nil {
		return fmt.Errorf("simulated hub: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connected {
		return fmt.Errorf("simulated hub write: %w", ports.ErrLinkDropped)
	}
	h.written = append(h.written, cmd)

	switch cmd.Name {
	case domain.CommandScanSlaves:
		h.emitLocked(h.statusLocked())
	case domain.CommandLightOn:
		if !h.pods[cmd.Slave] {
			return nil
		}
		h.emitLocked(domain.LightOnEvent{Slave: cmd.Slave})
		if !h.cfg.ManualPresses {
			h.schedulePressLocked(cmd.Slave)
		}
	case domain.CommandLightOff:
		h.cancelPressLocked(cmd.Slave)
	case domain.CommandStopGame:
		h.cancelPressesLocked()
	}
	return nil
}

// Written returns every command the hub accepted, oldest first.
func (h *Hub) Written() []domain.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.written)
}

// Press makes a pod report a press with the given device time.
func (h *Hub) Press(id domain.SlaveID, timeMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelPressLocked(id)
	h.emitLocked(domain.PressedEvent{Slave: id, TimeMs: timeMs})
}

// SetPod connects or disconnects a pod and notifies subscribers.
func (h *Hub) SetPod(id domain.SlaveID, connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pods[id] = connected
	if connected {
		h.emitLocked(domain.SlaveConnectedEvent{Slave: id, Address: address(id)})
		return
	}
	h.cancelPressLocked(id)
	h.emitLocked(domain.SlaveDisconnectedEvent{Slave: id})
}

// DropLink simulates the radio link going away without a local disconnect.
func (h *Hub) DropLink() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.cancelPressesLocked()
}

func (h *Hub) startLocked() {
	if h.stop == nil {
		h.stop = make(chan struct{})
		h.wg.Add(1)
		go h.pump(h.stop)
	}
	if h.cfg.Heartbeat > 0 && h.heartbeat == nil {
		h.armHeartbeatLocked()
	}
}

func (h *Hub) armHeartbeatLocked() {
	h.heartbeat = h.cfg.Clock.AfterFunc(h.cfg.Heartbeat, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if !h.connected || h.heartbeat == nil {
			return
		}
		h.pushLocked(HeartbeatMessage)
		h.armHeartbeatLocked()
	})
}

func (h *Hub) statusLocked() domain.StatusEvent {
	ids := make([]domain.SlaveID, 0, len(h.pods))
	for id := range h.pods {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	slaves := make([]domain.SlaveStatus, 0, len(ids))
	for _, id := range ids {
		slaves = append(slaves, domain.SlaveStatus{ID: id, Connected: h.pods[id], Address: address(id)})
	}
	return domain.StatusEvent{Slaves: slaves}
}

func (h *Hub) schedulePressLocked(id domain.SlaveID) {
	h.cancelPressLocked(id)

	span := int64(h.cfg.MaxPress - h.cfg.MinPress)
	delay := h.cfg.MinPress + time.Duration(h.rng.Int64N(span+1))
	var timer ports.Timer
	timer = h.cfg.Clock.AfterFunc(delay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.presses[id] != timer || !h.connected {
			return
		}
		delete(h.presses, id)
		h.emitLocked(domain.PressedEvent{Slave: id, TimeMs: delay.Milliseconds()})
	})
	h.presses[id] = timer
}

func (h *Hub) cancelPressLocked(id domain.SlaveID) {
	if timer, ok := h.presses[id]; ok {
		timer.Stop()
		delete(h.presses, id)
	}
}

func (h *Hub) cancelPressesLocked() {
	for id := range h.presses {
		h.cancelPressLocked(id)
	}
}

func (h *Hub) emitLocked(event domain.Event) {
	text, err := protocol.EncodeEvent(event)
	if err != nil {
		h.cfg.Logger.Error("encode simulated event", zap.Error(err))
		return
	}
	for chunk := range slices.Chunk([]byte(text), h.cfg.MTU) {
		h.pushLocked(string(chunk))
	}
}

func (h *Hub) pushLocked(chunk string) {
	h.queue = append(h.queue, chunk)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued chunks in order, outside the hub lock.
func (h *Hub) pump(stop <-chan struct{}) {
	defer h.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-h.wake:
		}

		for {
			h.mu.Lock()
			if len(h.queue) == 0 {
				h.mu.Unlock()
				break
			}
			chunk := h.queue[0]
			h.queue = h.queue[1:]
			handlers := make([]func(string), 0, len(h.handlers))
			for _, id := range slices.Sorted(maps.Keys(h.handlers)) {
				handlers = append(handlers, h.handlers[id])
			}
			h.mu.Unlock()

			for _, handler := range handlers {
				handler(chunk)
			}

			select {
			case <-stop:
				return
			default:
			}
		}
	}
}

func address(id domain.SlaveID) string {
	return fmt.Sprintf("sim:%02d", int(id))
}
