package swim

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	SwimConnectionHeader = "X-Swim-Connection"
	SwimChannelHeader    = "X-Swim-Channel"
)

// HttpTransport is the long poll transport.
// The open request is a streaming POST with `X-Swim-Connection: Upgrade`. The host answers with
// the channel id in `X-Swim-Channel` and streams newline delimited envelopes on the response.
// Outbound envelopes are batched for `SendDelay` and posted with `X-Swim-Channel`.
type HttpTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	transportId Id
	hostUri     string
	httpUri     string
	settings    *ClientSettings
	listener    *TransportListener
	httpClient  *http.Client

	stateLock sync.Mutex
	batch     [][]byte
	sendTimer *time.Timer
	posts     chan [][]byte

	errorOnce sync.Once
	closeOnce sync.Once
}

func NewHttpTransportWithDefaults(
	ctx context.Context,
	hostUri string,
	listener *TransportListener,
) *HttpTransport {
	return NewHttpTransport(ctx, hostUri, DefaultClientSettings(), listener)
}

func NewHttpTransport(
	ctx context.Context,
	hostUri string,
	settings *ClientSettings,
	listener *TransportListener,
) *HttpTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	dialer := &net.Dialer{
		Timeout: settings.HttpConnectTimeout,
	}
	transport := &HttpTransport{
		ctx:         cancelCtx,
		cancel:      cancel,
		transportId: NewId(),
		hostUri:     hostUri,
		httpUri:     httpUriOf(hostUri),
		settings:    settings,
		listener:    listener,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
		batch: [][]byte{},
		posts: make(chan [][]byte, settings.TransportBufferSize),
	}
	go transport.run()
	return transport
}

func httpUriOf(hostUri string) string {
	switch {
	case strings.HasPrefix(hostUri, "ws:"):
		return "http:" + hostUri[len("ws:"):]
	case strings.HasPrefix(hostUri, "wss:"):
		return "https:" + hostUri[len("wss:"):]
	default:
		return hostUri
	}
}

func (self *HttpTransport) run() {
	defer func() {
		self.cancel()
		self.stateLock.Lock()
		if self.sendTimer != nil {
			self.sendTimer.Stop()
			self.sendTimer = nil
		}
		self.stateLock.Unlock()
		self.httpClient.CloseIdleConnections()
		self.closeOnce.Do(self.listener.close)
	}()

	connect := func() (*http.Response, error) {
		request, err := http.NewRequestWithContext(self.ctx, http.MethodPost, self.httpUri, nil)
		if err != nil {
			return nil, err
		}
		request.Header.Set(SwimConnectionHeader, "Upgrade")
		response, err := self.httpClient.Do(request)
		if err != nil {
			return nil, err
		}
		if response.StatusCode < 200 || 300 <= response.StatusCode {
			response.Body.Close()
			return nil, fmt.Errorf("Upgrade response status %d.", response.StatusCode)
		}
		if response.Header.Get(SwimChannelHeader) == "" {
			response.Body.Close()
			return nil, fmt.Errorf("Upgrade response is missing %s.", SwimChannelHeader)
		}
		return response, nil
	}

	var response *http.Response
	var err error
	if glog.V(2) {
		response, err = TraceWithReturnError(fmt.Sprintf("[t]connect %s %s", self.transportId.Short(), self.httpUri), connect)
	} else {
		response, err = connect()
	}
	if err != nil {
		glog.Infof("[t]connect error %s = %s\n", self.httpUri, err)
		self.reportError(err)
		return
	}
	defer response.Body.Close()

	channelId := response.Header.Get(SwimChannelHeader)

	self.listener.open()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer func() {
			self.cancel()
			wg.Done()
		}()

		for {
			select {
			case <-self.ctx.Done():
				return
			case batch := <-self.posts:
				if err := self.post(channelId, batch); err != nil {
					glog.Infof("[ts]%s-> error = %s\n", self.httpUri, err)
					self.reportError(err)
					return
				}
			}
		}
	}()

	go func() {
		// the request context aborts the body read on close
		<-self.ctx.Done()
		response.Body.Close()
	}()

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case <-self.ctx.Done():
		default:
			message := make([]byte, len(line))
			copy(message, line)
			glog.V(2).Infof("[tr]%s<- %s\n", self.httpUri, message)
			self.listener.message(TextMessage, message)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		glog.V(1).Infof("[tr]%s<- error = %s\n", self.httpUri, err)
		self.reportError(err)
	}
	self.cancel()
	wg.Wait()
}

func (self *HttpTransport) post(channelId string, batch [][]byte) error {
	var body bytes.Buffer
	for _, message := range batch {
		body.Write(message)
		body.WriteByte('\n')
	}
	request, err := http.NewRequestWithContext(self.ctx, http.MethodPost, self.httpUri, &body)
	if err != nil {
		return err
	}
	request.Header.Set(SwimChannelHeader, channelId)
	response, err := self.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)
	if response.StatusCode < 200 || 300 <= response.StatusCode {
		return fmt.Errorf("Send response status %d.", response.StatusCode)
	}
	glog.V(2).Infof("[ts]%s-> %d\n", self.httpUri, len(batch))
	return nil
}

func (self *HttpTransport) flush() {
	self.stateLock.Lock()
	batch := self.batch
	self.batch = [][]byte{}
	self.sendTimer = nil
	self.stateLock.Unlock()

	if len(batch) == 0 {
		return
	}
	select {
	case <-self.ctx.Done():
	case self.posts <- batch:
	}
}

func (self *HttpTransport) reportError(err error) {
	select {
	case <-self.ctx.Done():
	default:
		self.errorOnce.Do(func() {
			self.listener.error(err)
		})
	}
}

// Send adds the envelope to the current batch. The first envelope of a batch arms the send
// delay.
func (self *HttpTransport) Send(text []byte) bool {
	select {
	case <-self.ctx.Done():
		return false
	default:
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.batch = append(self.batch, text)
	if self.sendTimer == nil {
		self.sendTimer = time.AfterFunc(self.settings.SendDelay, self.flush)
	}
	return true
}

func (self *HttpTransport) Close() {
	self.cancel()
}
