package swim

import (
	"context"
)

type MessageType int

const (
	TextMessage MessageType = iota
	BinaryMessage
)

// TransportListener receives transport events. Transports call the listener from their own
// goroutines. OnOpen is called at most once, OnMessage only after OnOpen, and OnClose exactly
// once, last, including when the dial fails or the transport is closed locally.
type TransportListener struct {
	OnOpen    func()
	OnMessage func(messageType MessageType, message []byte)
	OnError   func(err error)
	OnClose   func()
}

func (self *TransportListener) open() {
	if self.OnOpen != nil {
		self.OnOpen()
	}
}

func (self *TransportListener) message(messageType MessageType, message []byte) {
	if self.OnMessage != nil {
		self.OnMessage(messageType, message)
	}
}

func (self *TransportListener) error(err error) {
	if self.OnError != nil {
		self.OnError(err)
	}
}

func (self *TransportListener) close() {
	if self.OnClose != nil {
		self.OnClose()
	}
}

// Transport is one connection to a host carrying text envelopes.
type Transport interface {
	// queues a text frame. Returns false if the transport is closed.
	Send(text []byte) bool
	Close()
}

type TransportDialer func(
	ctx context.Context,
	hostUri string,
	settings *ClientSettings,
	listener *TransportListener,
) Transport

// DefaultTransportDialer picks the long poll transport for http hosts or when web sockets are
// disabled, and the web socket transport otherwise.
func DefaultTransportDialer(
	ctx context.Context,
	hostUri string,
	settings *ClientSettings,
	listener *TransportListener,
) Transport {
	if settings.NoWebSocket || isHttpUri(hostUri) {
		return NewHttpTransport(ctx, hostUri, settings, listener)
	}
	return NewWebSocketTransport(ctx, hostUri, settings, listener)
}
