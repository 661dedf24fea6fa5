package swim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// WebSocketTransport carries one envelope per text frame.
// A writer goroutine owns all writes (frames, pings, the close frame) and a reader goroutine
// owns all reads. The transport does not reconnect. The channel dials a new transport.
type WebSocketTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	transportId Id
	hostUri     string
	settings    *ClientSettings
	listener    *TransportListener

	send chan []byte

	errorOnce sync.Once
	closeOnce sync.Once
}

func NewWebSocketTransportWithDefaults(
	ctx context.Context,
	hostUri string,
	listener *TransportListener,
) *WebSocketTransport {
	return NewWebSocketTransport(ctx, hostUri, DefaultClientSettings(), listener)
}

func NewWebSocketTransport(
	ctx context.Context,
	hostUri string,
	settings *ClientSettings,
	listener *TransportListener,
) *WebSocketTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &WebSocketTransport{
		ctx:         cancelCtx,
		cancel:      cancel,
		transportId: NewId(),
		hostUri:     hostUri,
		settings:    settings,
		listener:    listener,
		send:        make(chan []byte, settings.TransportBufferSize),
	}
	go transport.run()
	return transport
}

func (self *WebSocketTransport) run() {
	defer func() {
		self.cancel()
		self.closeOnce.Do(self.listener.close)
	}()

	connect := func() (*websocket.Conn, error) {
		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
			Subprotocols:     self.settings.Protocols,
		}
		ws, _, err := dialer.DialContext(self.ctx, self.hostUri, nil)
		return ws, err
	}

	var ws *websocket.Conn
	var err error
	if glog.V(2) {
		ws, err = TraceWithReturnError(fmt.Sprintf("[t]connect %s %s", self.transportId.Short(), self.hostUri), connect)
	} else {
		ws, err = connect()
	}
	if err != nil {
		select {
		case <-self.ctx.Done():
			// closed locally while dialing
		default:
			glog.Infof("[t]connect error %s = %s\n", self.hostUri, err)
			self.listener.error(err)
		}
		return
	}
	defer ws.Close()

	select {
	case <-self.ctx.Done():
		return
	default:
	}

	self.listener.open()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		// pings keep the read deadline moving while the host is quiet, regardless of writes
		pingTicker := time.NewTicker(self.settings.PingTimeout)
		defer func() {
			pingTicker.Stop()
			self.cancel()
			// unblocks the reader
			ws.Close()
			wg.Done()
		}()

		for {
			select {
			case <-self.ctx.Done():
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				ws.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			case message := <-self.send:
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
					// note that for websocket a deadline timeout cannot be recovered
					glog.Infof("[ts]%s-> error = %s\n", self.hostUri, err)
					self.reportError(err)
					return
				}
				glog.V(2).Infof("[ts]%s-> %s\n", self.hostUri, message)
			case <-pingTicker.C:
				if err := ws.WriteControl(
					websocket.PingMessage,
					nil,
					time.Now().Add(self.settings.WriteTimeout),
				); err != nil {
					self.reportError(err)
					return
				}
			}
		}
	}()

	go func() {
		defer func() {
			self.cancel()
			wg.Done()
		}()

		ws.SetPongHandler(func(string) error {
			glog.V(2).Infof("[tr]pong %s<-\n", self.hostUri)
			return ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		})

		for {
			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					glog.V(1).Infof("[tr]%s<- error = %s\n", self.hostUri, err)
					self.reportError(err)
				}
				return
			}

			select {
			case <-self.ctx.Done():
				return
			default:
			}

			switch messageType {
			case websocket.TextMessage:
				glog.V(2).Infof("[tr]%s<- %s\n", self.hostUri, message)
				self.listener.message(TextMessage, message)
			default:
				glog.V(2).Infof("[tr]other=%d %s<-\n", messageType, self.hostUri)
				self.listener.message(BinaryMessage, message)
			}
		}
	}()

	wg.Wait()
}

// errors after a local close, or after the first error, are not reported
func (self *WebSocketTransport) reportError(err error) {
	select {
	case <-self.ctx.Done():
	default:
		self.errorOnce.Do(func() {
			self.listener.error(err)
		})
	}
}

func (self *WebSocketTransport) Send(text []byte) bool {
	select {
	case <-self.ctx.Done():
		return false
	default:
	}
	select {
	case <-self.ctx.Done():
		return false
	case self.send <- text:
		return true
	}
}

func (self *WebSocketTransport) Close() {
	self.cancel()
}
