package ports

import (
	"context"
	"errors"
)

// ErrLinkDropped marks a write that failed because the underlying link went
// away. Transports wrap it so callers can tell it from other write errors.
var ErrLinkDropped = errors.New("link dropped")

// Transport is a single logical byte channel to the master hub. Inbound
// chunks are plain UTF-8 text once any outer framing has been removed.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Write(ctx context.Context, text string) error
	IsConnected() bool
	Reconnect(ctx context.Context) error
	Subscribe(onChunk func(chunk string)) (unsubscribe func(), err error)
}
