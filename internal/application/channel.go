package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/neoxalle/nx/internal/protocol"
	"go.uber.org/zap"
)

// Channel serializes commands onto a Transport. A dropped link gets exactly
// one reconnect attempt per failed send and the failed command is never
// retried.
type Channel struct {
	transport ports.Transport
	onChunk   func(string)
	logger    *zap.Logger

	mu            sync.Mutex
	unsubscribe   func()
	disconnected  bool
	topologyReady bool
}

func NewChannel(transport ports.Transport, onChunk func(string), logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{transport: transport, onChunk: onChunk, logger: logger}
}

// Open connects the transport and subscribes to inbound chunks.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.disconnected = true
		return fmt.Errorf("connect transport: %w", err)
	}
	if err := c.subscribeLocked(); err != nil {
		c.disconnected = true
		return err
	}
	c.disconnected = false
	return nil
}

// Close unsubscribes and disconnects the transport.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.disconnected = true
	if err := c.transport.Disconnect(); err != nil {
		return fmt.Errorf("disconnect transport: %w", err)
	}
	return nil
}

// SetTopologyReady records whether the hub has reported connected pods.
// Only scan_slaves may be sent before that.
func (c *Channel) SetTopologyReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topologyReady = ready
}

func (c *Channel) Send(ctx context.Context, cmd domain.Command) error {
	text, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.transport.IsConnected()
	if c.disconnected && !live {
		return fmt.Errorf("send %s: %w", cmd.Name, ErrDisconnected)
	}
	if cmd.Name != domain.CommandScanSlaves && !c.topologyReady {
		return fmt.Errorf("send %s: %w", cmd.Name, ErrNoTopology)
	}
	if !live {
		return c.recoverLocked(ctx, cmd.Name, errors.New("transport not connected"))
	}

	if err := c.transport.Write(ctx, text); err != nil {
		if errors.Is(err, ports.ErrLinkDropped) {
			return c.recoverLocked(ctx, cmd.Name, err)
		}
		return fmt.Errorf("write %s: %w", cmd.Name, err)
	}

	c.disconnected = false
	return nil
}

// Reconnect runs one reconnect and resubscribe cycle on demand.
func (c *Channel) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectLocked(ctx)
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disconnected && c.transport.IsConnected()
}

// Status is the connectivity line shown to the user.
func (c *Channel) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.disconnected || !c.transport.IsConnected():
		return "disconnected"
	case !c.topologyReady:
		return "connected, no pods"
	default:
		return "connected"
	}
}

func (c *Channel) recoverLocked(ctx context.Context, name domain.CommandName, cause error) error {
	c.disconnected = true
	c.logger.Warn("link dropped, reconnecting", zap.String("command", string(name)), zap.Error(cause))

	if err := c.reconnectLocked(ctx); err != nil {
		c.logger.Warn("reconnect failed", zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrNotDelivered, name, errors.Join(cause, err))
	}
	return fmt.Errorf("%w: %s: %w", ErrNotDelivered, name, cause)
}

func (c *Channel) reconnectLocked(ctx context.Context) error {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if err := c.transport.Reconnect(ctx); err != nil {
		c.disconnected = true
		return fmt.Errorf("reconnect transport: %w", err)
	}
	if err := c.subscribeLocked(); err != nil {
		c.disconnected = true
		return err
	}

	c.disconnected = false
	c.logger.Info("transport reconnected")
	return nil
}

func (c *Channel) subscribeLocked() error {
	unsubscribe, err := c.transport.Subscribe(c.onChunk)
	if err != nil {
		return fmt.Errorf("subscribe transport: %w", err)
	}
	c.unsubscribe = unsubscribe
	return nil
}
