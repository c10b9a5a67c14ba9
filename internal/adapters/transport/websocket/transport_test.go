package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusReply = `{"event":"status","slaves":[{"id":1,"connected":true,"address":"aa"}]}`

type fakeHub struct {
	server *httptest.Server
	encode bool

	mu       sync.Mutex
	received []string
	conns    []*websocket.Conn
}

// newFakeHub answers scan_slaves with a status event split into two chunks.
func newFakeHub(t *testing.T, encode bool) *fakeHub {
	t.Helper()

	h := &fakeHub{encode: encode}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			text := string(data)
			if encode {
				decoded, err := base64.StdEncoding.DecodeString(text)
				if err != nil {
					return
				}
				text = string(decoded)
			}

			h.mu.Lock()
			h.received = append(h.received, text)
			h.mu.Unlock()

			if strings.Contains(text, "scan_slaves") {
				half := len(statusReply) / 2
				for _, chunk := range []string{statusReply[:half], statusReply[half:] + "\n"} {
					if encode {
						chunk = base64.StdEncoding.EncodeToString([]byte(chunk))
					}
					if err := conn.Write(r.Context(), websocket.MessageText, []byte(chunk)); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) url() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *fakeHub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		_ = conn.Close(websocket.StatusGoingAway, "restart")
	}
	h.conns = nil
}

func (h *fakeHub) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.received...)
}

type chunkSink struct {
	mu     sync.Mutex
	chunks []string
}

func (s *chunkSink) add(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
}

func (s *chunkSink) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks, "")
}

func TestTransportDeliversChunks(t *testing.T) {
	tests := []struct {
		name   string
		base64 bool
	}{
		{name: "plain text"},
		{name: "base64", base64: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newFakeHub(t, tt.base64)
			transport := New(Config{URL: hub.url(), Base64: tt.base64})

			sink := &chunkSink{}
			_, err := transport.Subscribe(sink.add)
			require.NoError(t, err)
			require.NoError(t, transport.Connect(context.Background()))
			t.Cleanup(func() { _ = transport.Disconnect() })
			assert.True(t, transport.IsConnected())

			require.NoError(t, transport.Write(context.Background(), `{"command":"scan_slaves"}`))

			require.Eventually(t, func() bool {
				return sink.joined() == statusReply+"\n"
			}, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, []string{`{"command":"scan_slaves"}`}, hub.seen())
		})
	}
}

func TestTransportUnsubscribeStopsDelivery(t *testing.T) {
	hub := newFakeHub(t, false)
	transport := New(Config{URL: hub.url()})

	first, second := &chunkSink{}, &chunkSink{}
	unsubscribe, err := transport.Subscribe(first.add)
	require.NoError(t, err)
	_, err = transport.Subscribe(second.add)
	require.NoError(t, err)
	require.NoError(t, transport.Connect(context.Background()))
	t.Cleanup(func() { _ = transport.Disconnect() })

	unsubscribe()
	require.NoError(t, transport.Write(context.Background(), `{"command":"scan_slaves"}`))

	require.Eventually(t, func() bool {
		return strings.HasSuffix(second.joined(), "\n")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, first.joined())
}

func TestTransportDetectsDroppedLink(t *testing.T) {
	hub := newFakeHub(t, false)
	transport := New(Config{URL: hub.url()})
	require.NoError(t, transport.Connect(context.Background()))
	t.Cleanup(func() { _ = transport.Disconnect() })

	hub.dropAll()

	require.Eventually(t, func() bool { return !transport.IsConnected() }, 2*time.Second, 10*time.Millisecond)
	err := transport.Write(context.Background(), `{"command":"stop_game"}`)
	require.ErrorIs(t, err, ports.ErrLinkDropped)

	require.NoError(t, transport.Reconnect(context.Background()))
	assert.True(t, transport.IsConnected())
	require.NoError(t, transport.Write(context.Background(), `{"command":"stop_game"}`))
	require.Eventually(t, func() bool {
		return len(hub.seen()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransportConnectErrors(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		err := New(Config{}).Connect(context.Background())
		require.ErrorIs(t, err, ErrNoURL)
	})

	t.Run("unreachable hub", func(t *testing.T) {
		hub := newFakeHub(t, false)
		url := hub.url()
		hub.server.Close()

		err := New(Config{URL: url, DialTimeout: time.Second}).Connect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dial hub")
	})

	t.Run("write before connect", func(t *testing.T) {
		err := New(Config{URL: "ws://127.0.0.1:1"}).Write(context.Background(), "x")
		require.ErrorIs(t, err, ports.ErrLinkDropped)
	})
}
