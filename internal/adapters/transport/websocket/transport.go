// Package websocket connects to a NeoXalle master through a websocket
// bridge. Each websocket message carries one notification chunk, optionally
// base64 encoded the way the BLE characteristic delivers it.
package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/neoxalle/nx/internal/ports"
	"go.uber.org/zap"
)

const DefaultDialTimeout = 10 * time.Second

var (
	ErrNoURL = errors.New("hub url is required")

	_ ports.Transport = (*Transport)(nil)
)

type Config struct {
	URL         string
	Base64      bool
	DialTimeout time.Duration
	Logger      *zap.Logger
}

type Transport struct {
	cfg Config

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	stopRead    context.CancelFunc
	readDone    chan struct{}
	handlers    map[int]func(string)
	nextHandler int
}

func New(cfg Config) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Transport{cfg: cfg, handlers: make(map[int]func(string))}
}

func (t *Transport) Connect(ctx context.Context) error {
	if t.cfg.URL == "" {
		return ErrNoURL
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial hub %s: %w", t.cfg.URL, err)
	}

	readCtx, stopRead := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.stopRead = stopRead
	t.readDone = done
	t.mu.Unlock()

	go t.readLoop(readCtx, conn, done)
	t.cfg.Logger.Info("hub connected", zap.String("url", t.cfg.URL))
	return nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn, stopRead, done := t.conn, t.stopRead, t.readDone
	t.conn = nil
	t.connected = false
	t.stopRead = nil
	t.readDone = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close(websocket.StatusNormalClosure, "bye")
	stopRead()
	<-done
	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close hub connection: %w", err)
	}
	return nil
}

func (t *Transport) Reconnect(ctx context.Context) error {
	if err := t.Disconnect(); err != nil {
		t.cfg.Logger.Debug("close before reconnect", zap.Error(err))
	}
	return t.Connect(ctx)
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Subscribe(onChunk func(chunk string)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextHandler++
	id := t.nextHandler
	t.handlers[id] = onChunk

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}, nil
}

func (t *Transport) Write(ctx context.Context, text string) error {
	t.mu.Lock()
	conn, connected := t.conn, t.connected
	t.mu.Unlock()

	if conn == nil || !connected {
		return fmt.Errorf("write frame: %w", ports.ErrLinkDropped)
	}

	payload := text
	if t.cfg.Base64 {
		payload = base64.StdEncoding.EncodeToString([]byte(text))
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		t.markDropped(conn)
		return fmt.Errorf("write frame: %w: %w", ports.ErrLinkDropped, err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				t.cfg.Logger.Info("hub closed connection")
			default:
				if ctx.Err() == nil {
					t.cfg.Logger.Warn("hub read failed", zap.Error(err))
				}
			}
			t.markDropped(conn)
			return
		}

		chunk, err := t.decode(data)
		if err != nil {
			t.cfg.Logger.Debug("drop undecodable chunk", zap.Error(err))
			continue
		}
		for _, handler := range t.snapshotHandlers() {
			handler(chunk)
		}
	}
}

func (t *Transport) decode(data []byte) (string, error) {
	if !t.cfg.Base64 {
		return string(data), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return "", fmt.Errorf("decode base64 chunk: %w", err)
	}
	return string(decoded), nil
}

func (t *Transport) snapshotHandlers() []func(string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	handlers := make([]func(string), 0, len(t.handlers))
	for _, id := range slices.Sorted(maps.Keys(t.handlers)) {
		handlers = append(handlers, t.handlers[id])
	}
	return handlers
}

// markDropped flags the link as gone if conn is still the current one.
func (t *Transport) markDropped(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		t.connected = false
	}
}
