package swim

import (
	"context"
	mathrand "math/rand"
	"slices"
	"time"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

const (
	minReconnectTimeout    = 500 * time.Millisecond
	reconnectJitterTimeout = 1000 * time.Millisecond
	reconnectBackoffScale  = 1.8
)

type ChannelInfo struct {
	HostUri string
	// the session on authorize. On deauthorize, the body of the deauthed response.
	Session value.Value
}

// ChannelCallbacks observes the connection state of a channel. Nil callbacks are skipped.
type ChannelCallbacks struct {
	OnConnect     func(info *ChannelInfo)
	OnDisconnect  func(info *ChannelInfo)
	OnError       func(info *ChannelInfo)
	OnAuthorize   func(info *ChannelInfo)
	OnDeauthorize func(info *ChannelInfo)
}

func (self *ChannelCallbacks) connect(info *ChannelInfo) {
	if self != nil && self.OnConnect != nil {
		HandleError(func() { self.OnConnect(info) })
	}
}

func (self *ChannelCallbacks) disconnect(info *ChannelInfo) {
	if self != nil && self.OnDisconnect != nil {
		HandleError(func() { self.OnDisconnect(info) })
	}
}

func (self *ChannelCallbacks) error(info *ChannelInfo) {
	if self != nil && self.OnError != nil {
		HandleError(func() { self.OnError(info) })
	}
}

func (self *ChannelCallbacks) authorize(info *ChannelInfo) {
	if self != nil && self.OnAuthorize != nil {
		HandleError(func() { self.OnAuthorize(info) })
	}
}

func (self *ChannelCallbacks) deauthorize(info *ChannelInfo) {
	if self != nil && self.OnDeauthorize != nil {
		HandleError(func() { self.OnDeauthorize(info) })
	}
}

// one dialed transport. Events from a connection that is no longer current are ignored.
type channelConnection struct {
	connectionId Id
	transport    Transport
	open         bool
}

// Channel is the connection to one host, multiplexing every downlink to that host.
// A channel is not safe for concurrent use. All calls must be made on the client dispatcher.
type Channel struct {
	ctx context.Context

	channelId  Id
	hostUri    string
	settings   *ClientSettings
	dispatcher Dispatcher
	scheduler  Scheduler
	dialer     TransportDialer

	clientCallbacks *ChannelCallbacks
	delegates       []*ChannelCallbacks

	uriCache *UriCache

	connection *channelConnection

	credentials  value.Value
	isAuthorized bool
	session      value.Value

	// resolved node uri -> lane uri -> downlinks
	downlinks map[string]map[string][]*Downlink
	// resolved node uri -> pending get and put callbacks
	stateCallbacks map[string][]func(body value.Value)

	sendBuffer *sendQueue

	reconnectTimer   Timer
	reconnectTimeout time.Duration
	idleTimer        Timer

	random func() float64
}

func NewChannel(
	ctx context.Context,
	hostUri string,
	settings *ClientSettings,
	dispatcher Dispatcher,
	scheduler Scheduler,
	clientCallbacks *ChannelCallbacks,
) *Channel {
	dialer := settings.TransportDialer
	if dialer == nil {
		dialer = DefaultTransportDialer
	}
	return &Channel{
		ctx:             ctx,
		channelId:       NewId(),
		hostUri:         hostUri,
		settings:        settings,
		dispatcher:      dispatcher,
		scheduler:       scheduler,
		dialer:          dialer,
		clientCallbacks: clientCallbacks,
		delegates:       []*ChannelCallbacks{},
		uriCache:        NewUriCache(hostUri, settings.UriCacheSize),
		credentials:     settings.Credentials,
		downlinks:       map[string]map[string][]*Downlink{},
		stateCallbacks:  map[string][]func(body value.Value){},
		sendBuffer:      newSendQueue(),
		random:          mathrand.Float64,
	}
}

func (self *Channel) HostUri() string {
	return self.hostUri
}

func (self *Channel) IsConnected() bool {
	return self.connection != nil && self.connection.open
}

func (self *Channel) IsAuthorized() bool {
	return self.isAuthorized
}

func (self *Channel) Session() value.Value {
	return self.session
}

func (self *Channel) Credentials() value.Value {
	return self.credentials
}

func (self *Channel) ResolveUri(unresolvedUri string) string {
	return self.uriCache.Resolve(unresolvedUri)
}

func (self *Channel) UnresolveUri(resolvedUri string) string {
	return self.uriCache.Unresolve(resolvedUri)
}

func (self *Channel) info() *ChannelInfo {
	return &ChannelInfo{
		HostUri: self.hostUri,
		Session: self.session,
	}
}

func (self *Channel) AddDelegate(delegate *ChannelCallbacks) {
	self.delegates = append(self.delegates, delegate)
}

func (self *Channel) RemoveDelegate(delegate *ChannelCallbacks) {
	if i := slices.Index(self.delegates, delegate); 0 <= i {
		self.delegates = slices.Delete(self.delegates, i, i+1)
	}
}

func (self *Channel) DownlinkCount() int {
	count := 0
	for _, lanes := range self.downlinks {
		for _, bucket := range lanes {
			count += len(bucket)
		}
	}
	return count
}

func (self *Channel) SendBufferSize() int {
	size, _ := self.sendBuffer.QueueSize()
	return size
}

// downlinks ordered by node then lane, each bucket in registration order
func (self *Channel) snapshotDownlinks() []*Downlink {
	snapshot := []*Downlink{}
	nodeUris := maps.Keys(self.downlinks)
	slices.Sort(nodeUris)
	for _, nodeUri := range nodeUris {
		lanes := self.downlinks[nodeUri]
		laneUris := maps.Keys(lanes)
		slices.Sort(laneUris)
		for _, laneUri := range laneUris {
			snapshot = append(snapshot, lanes[laneUri]...)
		}
	}
	return snapshot
}

func (self *Channel) snapshotDelegates() []*ChannelCallbacks {
	return slices.Clone(self.delegates)
}

func (self *Channel) RegisterDownlink(downlink *Downlink) {
	self.clearIdle()
	lanes, ok := self.downlinks[downlink.nodeUri]
	if !ok {
		lanes = map[string][]*Downlink{}
		self.downlinks[downlink.nodeUri] = lanes
	}
	lanes[downlink.laneUri] = append(lanes[downlink.laneUri], downlink)
	glog.V(2).Infof("[c]register %s %s %s\n", downlink.downlinkId.Short(), downlink.nodeUri, downlink.laneUri)
	if self.IsConnected() {
		downlink.onChannelConnect()
	} else {
		self.Open()
	}
}

// UnregisterDownlink removes the downlink from its bucket. When the bucket empties, the
// host is sent one unlink request for the bucket. The downlink is always closed.
func (self *Channel) UnregisterDownlink(downlink *Downlink) {
	lanes, ok := self.downlinks[downlink.nodeUri]
	if !ok {
		return
	}
	bucket := lanes[downlink.laneUri]
	i := slices.Index(bucket, downlink)
	if i < 0 {
		return
	}
	bucket = slices.Delete(bucket, i, i+1)
	glog.V(2).Infof("[c]unregister %s %s %s\n", downlink.downlinkId.Short(), downlink.nodeUri, downlink.laneUri)
	if len(bucket) == 0 {
		delete(lanes, downlink.laneUri)
		if len(lanes) == 0 {
			delete(self.downlinks, downlink.nodeUri)
			self.watchIdle()
		}
		if self.IsConnected() {
			request := warp.NewUnlinkRequest(self.uriCache.Unresolve(downlink.nodeUri), downlink.laneUri)
			downlink.onUnlinkRequest(request)
			self.Push(request)
		}
	} else {
		lanes[downlink.laneUri] = bucket
	}
	downlink.onChannelClose()
}

func (self *Channel) Open() {
	self.clearReconnect()
	if self.connection != nil {
		return
	}

	connection := &channelConnection{
		connectionId: NewId(),
	}
	current := func(fn func()) func() {
		return func() {
			self.dispatcher.Dispatch(func() {
				if self.connection == connection {
					fn()
				}
			})
		}
	}
	listener := &TransportListener{
		OnOpen: current(func() {
			self.onTransportOpen(connection)
		}),
		OnMessage: func(messageType MessageType, message []byte) {
			current(func() {
				self.onTransportMessage(messageType, message)
			})()
		},
		OnError: func(err error) {
			current(func() {
				self.onTransportError(err)
			})()
		},
		OnClose: current(func() {
			self.onTransportClose(connection)
		}),
	}
	self.connection = connection
	glog.V(2).Infof("[c]open %s %s\n", connection.connectionId.Short(), self.hostUri)
	connection.transport = self.dialer(self.ctx, self.hostUri, self.settings, listener)
}

func (self *Channel) Close() {
	self.clearReconnect()
	self.reconnectTimeout = 0
	self.clearIdle()

	if connection := self.connection; connection != nil {
		self.connection = nil
		connection.transport.Close()
		if connection.open {
			self.isAuthorized = false
			self.session = nil
			info := self.info()
			self.clientCallbacks.disconnect(info)
			for _, delegate := range self.snapshotDelegates() {
				delegate.disconnect(info)
			}
		}
	}

	self.sendBuffer.RemoveAll()
	self.updateSendBufferMetrics()
	self.stateCallbacks = map[string][]func(body value.Value){}

	downlinks := self.snapshotDownlinks()
	self.downlinks = map[string]map[string][]*Downlink{}
	for _, downlink := range downlinks {
		downlink.onChannelClose()
	}
	glog.V(2).Infof("[c]close %s\n", self.hostUri)
}

func (self *Channel) Push(envelope *warp.Envelope) {
	text, err := warp.Encode(envelope)
	if err != nil {
		glog.Infof("[c]encode error %s = %s\n", envelope, err)
		return
	}
	if self.IsConnected() {
		self.clearIdle()
		self.transmit(envelope, text)
		self.watchIdle()
	} else if envelope.IsBufferable() {
		self.buffer(envelope, text)
		self.Open()
	}
}

// writes to the connected transport. Refused bufferable envelopes are kept for the next connection.
func (self *Channel) transmit(envelope *warp.Envelope, text []byte) {
	if self.connection.transport.Send(text) {
		envelopesSent.WithLabelValues(envelope.Kind.String()).Inc()
		glog.V(2).Infof("[c]%s-> %s\n", self.hostUri, envelope)
	} else if envelope.IsBufferable() {
		self.buffer(envelope, text)
	} else {
		envelopesDropped.WithLabelValues(DropReasonWriteRefused).Inc()
		glog.Infof("[c]drop %s-> %s write refused\n", self.hostUri, envelope.Kind)
	}
}

func (self *Channel) buffer(envelope *warp.Envelope, text []byte) {
	if size, _ := self.sendBuffer.QueueSize(); self.settings.SendBufferSize <= size {
		envelopesDropped.WithLabelValues(DropReasonSendBufferFull).Inc()
		glog.Infof("[c]drop %s-> send buffer full (%d)\n", self.hostUri, size)
		return
	}
	self.sendBuffer.Add(envelope, text)
	self.updateSendBufferMetrics()
}

func (self *Channel) updateSendBufferMetrics() {
	size, byteCount := self.sendBuffer.QueueSize()
	sendBufferSize.WithLabelValues(self.hostUri).Set(float64(size))
	sendBufferBytes.WithLabelValues(self.hostUri).Set(float64(byteCount))
}

func (self *Channel) Command(nodeUri string, laneUri string, body value.Value) {
	self.Push(warp.NewCommandMessage(self.uriCache.Unresolve(nodeUri), laneUri, body))
}

// Get requests the state of a node. `callback` receives the body of the next state response
// for the node.
func (self *Channel) Get(nodeUri string, callback func(body value.Value)) {
	if callback != nil {
		self.stateCallbacks[nodeUri] = append(self.stateCallbacks[nodeUri], callback)
	}
	self.Push(warp.NewGetRequest(self.uriCache.Unresolve(nodeUri)))
}

func (self *Channel) Put(nodeUri string, body value.Value, callback func(body value.Value)) {
	if callback != nil {
		self.stateCallbacks[nodeUri] = append(self.stateCallbacks[nodeUri], callback)
	}
	self.Push(warp.NewPutRequest(self.uriCache.Unresolve(nodeUri), body))
}

func (self *Channel) Authorize(credentials value.Value) {
	if value.Equal(credentials, self.credentials) {
		return
	}
	self.credentials = credentials
	if self.IsConnected() {
		self.Push(warp.NewAuthRequest(credentials))
	} else {
		self.Open()
	}
}

func (self *Channel) Deauthorize() {
	self.credentials = nil
	if self.IsConnected() {
		self.Push(warp.NewDeauthRequest())
	}
}

func (self *Channel) onTransportOpen(connection *channelConnection) {
	connection.open = true
	self.clearReconnect()
	self.reconnectTimeout = 0
	glog.V(2).Infof("[c]connected %s %s\n", connection.connectionId.Short(), self.hostUri)

	if self.credentials != nil {
		self.Push(warp.NewAuthRequest(self.credentials))
	}

	info := self.info()
	self.clientCallbacks.connect(info)
	for _, delegate := range self.snapshotDelegates() {
		delegate.connect(info)
	}
	for _, downlink := range self.snapshotDownlinks() {
		downlink.onChannelConnect()
	}

	// items refused by the transport during the flush go back to the buffer
	for _, item := range self.sendBuffer.RemoveAll() {
		self.transmit(item.envelope, item.text)
	}
	self.updateSendBufferMetrics()
	self.watchIdle()
}

func (self *Channel) onTransportMessage(messageType MessageType, message []byte) {
	if messageType != TextMessage {
		envelopesDropped.WithLabelValues(DropReasonNonText).Inc()
		glog.V(1).Infof("[c]drop %s<- non text frame\n", self.hostUri)
		return
	}
	envelope, err := warp.Decode(message)
	if err != nil {
		envelopesDropped.WithLabelValues(DropReasonMalformed).Inc()
		glog.V(1).Infof("[c]drop %s<- %s\n", self.hostUri, err)
		return
	}
	envelopesReceived.WithLabelValues(envelope.Kind.String()).Inc()
	glog.V(2).Infof("[c]%s<- %s\n", self.hostUri, envelope)
	self.onEnvelope(envelope)
}

func (self *Channel) onEnvelope(envelope *warp.Envelope) {
	switch envelope.Kind {
	case warp.EventMessageKind:
		self.onEventMessage(envelope)
	case warp.LinkedResponseKind:
		self.onLinkedResponse(envelope)
	case warp.SyncedResponseKind:
		self.onSyncedResponse(envelope)
	case warp.UnlinkedResponseKind:
		self.onUnlinkedResponse(envelope)
	case warp.AuthedResponseKind:
		self.onAuthedResponse(envelope)
	case warp.DeauthedResponseKind:
		self.onDeauthedResponse(envelope)
	case warp.StateResponseKind:
		self.onStateResponse(envelope)
	default:
		// requests addressed to the client (command, link, sync, unlink, auth, deauth, get,
		// put) are not served
		glog.V(2).Infof("[c]ignore %s<- %s\n", self.hostUri, envelope.Kind)
	}
}

// the bucket for an inbound envelope, with the envelope readdressed to the resolved node
func (self *Channel) resolveBucket(envelope *warp.Envelope) ([]*Downlink, *warp.Envelope) {
	nodeUri := self.uriCache.Resolve(envelope.Node)
	bucket := self.downlinks[nodeUri][envelope.Lane]
	if len(bucket) == 0 {
		return nil, nil
	}
	return slices.Clone(bucket), envelope.WithAddress(nodeUri)
}

func (self *Channel) onEventMessage(message *warp.Envelope) {
	bucket, resolved := self.resolveBucket(message)
	for _, downlink := range bucket {
		downlink.onEventMessage(resolved)
	}
}

func (self *Channel) onLinkedResponse(response *warp.Envelope) {
	bucket, resolved := self.resolveBucket(response)
	for _, downlink := range bucket {
		downlink.onLinkedResponse(resolved)
	}
}

func (self *Channel) onSyncedResponse(response *warp.Envelope) {
	bucket, resolved := self.resolveBucket(response)
	for _, downlink := range bucket {
		downlink.onSyncedResponse(resolved)
	}
}

func (self *Channel) onUnlinkedResponse(response *warp.Envelope) {
	bucket, resolved := self.resolveBucket(response)
	if len(bucket) == 0 {
		return
	}
	// the bucket is removed before any downlink is notified
	lanes := self.downlinks[resolved.Node]
	delete(lanes, resolved.Lane)
	if len(lanes) == 0 {
		delete(self.downlinks, resolved.Node)
	}
	for _, downlink := range bucket {
		downlink.onUnlinkedResponse(resolved)
		downlink.onChannelClose()
	}
	self.watchIdle()
}

func (self *Channel) onAuthedResponse(response *warp.Envelope) {
	self.isAuthorized = true
	self.session = response.Body
	info := self.info()
	self.clientCallbacks.authorize(info)
	for _, delegate := range self.snapshotDelegates() {
		delegate.authorize(info)
	}
}

func (self *Channel) onDeauthedResponse(response *warp.Envelope) {
	self.isAuthorized = false
	self.session = nil
	info := &ChannelInfo{
		HostUri: self.hostUri,
		Session: response.Body,
	}
	self.clientCallbacks.deauthorize(info)
	for _, delegate := range self.snapshotDelegates() {
		delegate.deauthorize(info)
	}
}

func (self *Channel) onStateResponse(response *warp.Envelope) {
	nodeUri := self.uriCache.Resolve(response.Node)
	callbacks, ok := self.stateCallbacks[nodeUri]
	if !ok {
		return
	}
	delete(self.stateCallbacks, nodeUri)
	for _, callback := range callbacks {
		HandleError(func() {
			callback(response.Body)
		})
	}
	self.watchIdle()
}

func (self *Channel) onTransportError(err error) {
	glog.Infof("[c]error %s = %s\n", self.hostUri, err)
	info := self.info()
	self.clientCallbacks.error(info)
	for _, delegate := range self.snapshotDelegates() {
		delegate.error(info)
	}
	for _, downlink := range self.snapshotDownlinks() {
		downlink.onChannelError()
	}
	self.clearIdle()
}

func (self *Channel) onTransportClose(connection *channelConnection) {
	self.connection = nil
	self.isAuthorized = false
	self.session = nil

	if connection.open {
		glog.V(2).Infof("[c]disconnected %s %s\n", connection.connectionId.Short(), self.hostUri)
		info := self.info()
		self.clientCallbacks.disconnect(info)
		for _, delegate := range self.snapshotDelegates() {
			delegate.disconnect(info)
		}
		for _, downlink := range self.snapshotDownlinks() {
			downlink.onChannelDisconnect()
		}
	}

	self.clearIdle()
	if size, _ := self.sendBuffer.QueueSize(); 0 < size || 0 < len(self.downlinks) {
		self.reconnect()
	}
}

func (self *Channel) reconnect() {
	if self.reconnectTimer != nil {
		return
	}
	if self.reconnectTimeout == 0 {
		jitter := time.Duration(self.random() * float64(reconnectJitterTimeout))
		self.reconnectTimeout = minReconnectTimeout + jitter
	} else {
		self.reconnectTimeout = time.Duration(reconnectBackoffScale * float64(self.reconnectTimeout))
	}
	self.reconnectTimeout = min(self.reconnectTimeout, self.settings.MaxReconnectTimeout)

	reconnectsScheduled.Inc()
	glog.Infof("[c]reconnect %s in %s\n", self.hostUri, self.reconnectTimeout)
	self.reconnectTimer = self.scheduler.Schedule(self.reconnectTimeout, func() {
		self.reconnectTimer = nil
		self.Open()
	})
}

func (self *Channel) clearReconnect() {
	if self.reconnectTimer != nil {
		self.reconnectTimer.Cancel()
		self.reconnectTimer = nil
	}
}

func (self *Channel) ReconnectTimeout() time.Duration {
	return self.reconnectTimeout
}

func (self *Channel) watchIdle() {
	if self.idleTimer == nil && self.isIdle() {
		self.idleTimer = self.scheduler.Schedule(self.settings.IdleTimeout, self.checkIdle)
	}
}

func (self *Channel) isIdle() bool {
	size, _ := self.sendBuffer.QueueSize()
	return self.IsConnected() &&
		size == 0 &&
		len(self.downlinks) == 0 &&
		len(self.stateCallbacks) == 0
}

func (self *Channel) checkIdle() {
	self.idleTimer = nil
	if self.isIdle() {
		glog.V(2).Infof("[c]idle %s\n", self.hostUri)
		self.Close()
	}
}

func (self *Channel) clearIdle() {
	if self.idleTimer != nil {
		self.idleTimer.Cancel()
		self.idleTimer = nil
	}
}
