package simhub

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/neoxalle/nx/internal/ports/mocks"
	"github.com/neoxalle/nx/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	chunks  []string
	decoder *protocol.Decoder
	events  []domain.Event
}

func newCollector() *collector {
	return &collector{decoder: protocol.NewDecoder()}
}

func (c *collector) onChunk(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
	for _, frame := range c.decoder.Feed(chunk) {
		if event, err := protocol.ParseEvent([]byte(frame)); err == nil {
			c.events = append(c.events, event)
		}
	}
}

func (c *collector) snapshot() ([]string, []domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chunks...), append([]domain.Event(nil), c.events...)
}

func (c *collector) waitEvents(t *testing.T, n int) []domain.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		_, events := c.snapshot()
		return len(events) >= n
	}, time.Second, 5*time.Millisecond)
	_, events := c.snapshot()
	return events
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *collector, *mocks.FakeClock) {
	t.Helper()

	clock := mocks.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	cfg.Clock = clock
	cfg.Random = rand.NewPCG(3, 4)
	hub := New(cfg)

	c := newCollector()
	_, err := hub.Subscribe(c.onChunk)
	require.NoError(t, err)
	require.NoError(t, hub.Connect(context.Background()))
	t.Cleanup(func() { _ = hub.Disconnect() })

	return hub, c, clock
}

func TestHubAnswersScanWithChunkedStatus(t *testing.T) {
	hub, c, _ := newTestHub(t, Config{Pods: 3, MTU: 16})

	require.NoError(t, hub.Write(context.Background(), `{"command":"scan_slaves"}`))

	events := c.waitEvents(t, 1)
	assert.Equal(t, domain.StatusEvent{Slaves: []domain.SlaveStatus{
		{ID: 1, Connected: true, Address: "sim:01"},
		{ID: 2, Connected: true, Address: "sim:02"},
		{ID: 3, Connected: true, Address: "sim:03"},
	}}, events[0])

	chunks, _ := c.snapshot()
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 16)
	}
}

func TestHubLightOnTriggersPress(t *testing.T) {
	hub, c, clock := newTestHub(t, Config{Pods: 2, MinPress: 300 * time.Millisecond, MaxPress: 300 * time.Millisecond})

	require.NoError(t, hub.Write(context.Background(), `{"command":"light_on","slave":2,"color":"random"}`))
	events := c.waitEvents(t, 1)
	assert.Equal(t, domain.LightOnEvent{Slave: 2}, events[0])

	clock.Advance(300 * time.Millisecond)

	events = c.waitEvents(t, 2)
	assert.Equal(t, domain.PressedEvent{Slave: 2, TimeMs: 300}, events[1])
	assert.Equal(t, []domain.Command{domain.LightOn(2)}, hub.Written())
}

func TestHubLightOffCancelsPress(t *testing.T) {
	hub, c, clock := newTestHub(t, Config{Pods: 1})

	require.NoError(t, hub.Write(context.Background(), `{"command":"light_on","slave":1,"color":"random"}`))
	require.NoError(t, hub.Write(context.Background(), `{"command":"light_off","slave":1}`))
	clock.Advance(DefaultMaxPress)

	c.waitEvents(t, 1)
	time.Sleep(20 * time.Millisecond)
	_, events := c.snapshot()
	assert.Len(t, events, 1)
	assert.Zero(t, clock.Pending())
}

func TestHubDroppedLinkRejectsWrites(t *testing.T) {
	hub, _, _ := newTestHub(t, Config{})

	hub.DropLink()
	assert.False(t, hub.IsConnected())

	err := hub.Write(context.Background(), `{"command":"stop_game"}`)
	require.ErrorIs(t, err, ports.ErrLinkDropped)

	require.NoError(t, hub.Reconnect(context.Background()))
	require.NoError(t, hub.Write(context.Background(), `{"command":"stop_game"}`))
}

func TestHubHeartbeatIsPlainText(t *testing.T) {
	_, c, clock := newTestHub(t, Config{Heartbeat: 3 * time.Second})

	clock.Advance(6 * time.Second)

	require.Eventually(t, func() bool {
		chunks, _ := c.snapshot()
		return strings.Count(strings.Join(chunks, ""), HeartbeatMessage) == 2
	}, time.Second, 5*time.Millisecond)
	_, events := c.snapshot()
	assert.Empty(t, events)
}

func TestHubPodChangesAreNotified(t *testing.T) {
	hub, c, _ := newTestHub(t, Config{Pods: 2})

	hub.SetPod(2, false)
	hub.SetPod(4, true)

	events := c.waitEvents(t, 2)
	assert.Equal(t, domain.SlaveDisconnectedEvent{Slave: 2}, events[0])
	assert.Equal(t, domain.SlaveConnectedEvent{Slave: 4, Address: "sim:04"}, events[1])
}
