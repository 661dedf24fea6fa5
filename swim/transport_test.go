package swim

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

// answers each sync request with linked, one event, and synced
func syncReplies(envelope *warp.Envelope) []*warp.Envelope {
	if envelope.Kind != warp.SyncRequestKind {
		return nil
	}
	return []*warp.Envelope{
		warp.NewLinkedResponse(envelope.Node, envelope.Lane),
		warp.NewEventMessage(envelope.Node, envelope.Lane, value.Text("on")),
		warp.NewSyncedResponse(envelope.Node, envelope.Lane),
	}
}

func syncEvents(t *testing.T, client *Client, nodeUri string) []string {
	events := make(chan string, 16)
	client.Call(func() {
		_, err := client.Sync(nodeUri, "light", &DownlinkOptions{
			Delegate: &DownlinkCallbacks{
				OnLinked: func(downlink *Downlink, response *warp.Envelope) {
					events <- "linked"
				},
				OnEvent: func(downlink *Downlink, message *warp.Envelope) {
					events <- "event " + value.String(message.Body)
				},
				OnSynced: func(downlink *Downlink, response *warp.Envelope) {
					events <- "synced"
				},
			},
		})
		assert.Equal(t, err, nil)
	})

	received := []string{}
	timeout := time.After(10 * time.Second)
	for len(received) < 3 {
		select {
		case event := <-events:
			received = append(received, event)
		case <-timeout:
			t.Fatalf("timeout after %v", received)
		}
	}
	return received
}

func TestWebSocketSync(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			envelope, err := warp.Decode(message)
			if err != nil {
				continue
			}
			for _, reply := range syncReplies(envelope) {
				if err := ws.WriteMessage(websocket.TextMessage, warp.RequireEncode(reply)); err != nil {
					return
				}
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), DefaultClientSettings())
	assert.Equal(t, err, nil)
	defer client.Close()

	hostUri := "ws://" + strings.TrimPrefix(server.URL, "http://")
	events := syncEvents(t, client, hostUri+"/house/kitchen")
	assert.Equal(t, events, []string{"linked", `event "on"`, "synced"})

	connected := false
	client.Call(func() {
		connected = client.IsConnected(hostUri)
	})
	assert.Equal(t, connected, true)
}

func TestHttpSync(t *testing.T) {
	downstream := make(chan []byte, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SwimConnectionHeader) == "Upgrade" {
			w.Header().Set(SwimChannelHeader, "c1")
			w.WriteHeader(http.StatusOK)
			flusher := w.(http.Flusher)
			flusher.Flush()
			for {
				select {
				case <-r.Context().Done():
					return
				case message := <-downstream:
					w.Write(message)
					w.Write([]byte("\n"))
					flusher.Flush()
				}
			}
		}

		if r.Header.Get(SwimChannelHeader) != "c1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			envelope, err := warp.Decode(scanner.Bytes())
			if err != nil {
				continue
			}
			for _, reply := range syncReplies(envelope) {
				downstream <- warp.RequireEncode(reply)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := DefaultClientSettings()
	settings.SendDelay = 10 * time.Millisecond
	client, err := NewClient(context.Background(), settings)
	assert.Equal(t, err, nil)
	defer client.Close()

	// http hosts use the long poll transport
	events := syncEvents(t, client, server.URL+"/house/kitchen")
	assert.Equal(t, events, []string{"linked", `event "on"`, "synced"})
}

func TestHttpTransportRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	errors := make(chan error, 1)
	closes := make(chan struct{}, 1)
	transport := NewHttpTransportWithDefaults(context.Background(), server.URL, &TransportListener{
		OnOpen: func() {
			t.Error("unexpected open")
		},
		OnError: func(err error) {
			errors <- err
		},
		OnClose: func() {
			closes <- struct{}{}
		},
	})
	defer transport.Close()

	select {
	case err := <-errors:
		assert.NotEqual(t, err, nil)
	case <-time.After(10 * time.Second):
		t.Fatal("no error")
	}
	select {
	case <-closes:
	case <-time.After(10 * time.Second):
		t.Fatal("no close")
	}
}

func TestWebSocketTransportClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	opens := make(chan struct{}, 1)
	closes := make(chan struct{}, 2)
	hostUri := "ws://" + strings.TrimPrefix(server.URL, "http://")
	transport := NewWebSocketTransportWithDefaults(context.Background(), hostUri, &TransportListener{
		OnOpen: func() {
			opens <- struct{}{}
		},
		OnClose: func() {
			closes <- struct{}{}
		},
	})

	select {
	case <-opens:
	case <-time.After(10 * time.Second):
		t.Fatal("no open")
	}
	assert.Equal(t, transport.Send([]byte(`{"@deauth": null}`)), true)

	transport.Close()
	select {
	case <-closes:
	case <-time.After(10 * time.Second):
		t.Fatal("no close")
	}
	assert.Equal(t, transport.Send([]byte(`{"@deauth": null}`)), false)
	// close is reported once
	select {
	case <-closes:
		t.Fatal("close reported twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocketTransportPingWhileSending(t *testing.T) {
	upgrader := websocket.Upgrader{}
	// reads and answers pings, never writes a message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	settings := DefaultClientSettings()
	settings.PingTimeout = 50 * time.Millisecond
	settings.ReadTimeout = 300 * time.Millisecond

	opens := make(chan struct{}, 1)
	closes := make(chan struct{}, 1)
	hostUri := "ws://" + strings.TrimPrefix(server.URL, "http://")
	transport := NewWebSocketTransport(context.Background(), hostUri, settings, &TransportListener{
		OnOpen: func() {
			opens <- struct{}{}
		},
		OnClose: func() {
			closes <- struct{}{}
		},
	})
	defer transport.Close()

	select {
	case <-opens:
	case <-time.After(10 * time.Second):
		t.Fatal("no open")
	}

	// steady writes for several read timeouts
	end := time.Now().Add(1 * time.Second)
	for time.Now().Before(end) {
		assert.Equal(t, transport.Send([]byte(`{"@deauth": null}`)), true)
		select {
		case <-closes:
			t.Fatal("closed while sending")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
