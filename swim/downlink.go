package swim

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

type DownlinkKind int

const (
	LinkedDownlinkKind DownlinkKind = iota
	SyncedDownlinkKind
	ListDownlinkKind
	MapDownlinkKind
)

func (self DownlinkKind) String() string {
	switch self {
	case LinkedDownlinkKind:
		return "linked"
	case SyncedDownlinkKind:
		return "synced"
	case ListDownlinkKind:
		return "list"
	case MapDownlinkKind:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(self))
	}
}

type DownlinkState int

const (
	DownlinkUnlinked DownlinkState = iota
	DownlinkLinkRequested
	DownlinkSyncRequested
	DownlinkLinked
	DownlinkSynced
	// the transport was lost after the downlink linked. The downlink relinks on reconnect.
	DownlinkBroken
	DownlinkClosed
)

func (self DownlinkState) String() string {
	switch self {
	case DownlinkUnlinked:
		return "unlinked"
	case DownlinkLinkRequested:
		return "link_requested"
	case DownlinkSyncRequested:
		return "sync_requested"
	case DownlinkLinked:
		return "linked"
	case DownlinkSynced:
		return "synced"
	case DownlinkBroken:
		return "broken"
	case DownlinkClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(self))
	}
}

type DownlinkEnvelopeCallback func(downlink *Downlink, envelope *warp.Envelope)
type DownlinkCallback func(downlink *Downlink)

// DownlinkCallbacks observes one downlink. Nil callbacks are skipped.
// Callbacks run on the client dispatcher.
type DownlinkCallbacks struct {
	// after list and map downlinks have merged the event into their state
	OnEvent DownlinkEnvelopeCallback
	// local list and map mutations, before the command is sent
	OnCommand  DownlinkEnvelopeCallback
	OnLink     DownlinkEnvelopeCallback
	OnLinked   DownlinkEnvelopeCallback
	OnSync     DownlinkEnvelopeCallback
	OnSynced   DownlinkEnvelopeCallback
	OnUnlink   DownlinkEnvelopeCallback
	OnUnlinked DownlinkEnvelopeCallback

	OnConnect    DownlinkCallback
	OnDisconnect DownlinkCallback
	OnError      DownlinkCallback
	OnClose      DownlinkCallback
	// a linked keep alive downlink lost its transport
	OnBroken DownlinkCallback
	// a broken downlink linked again
	OnUnbroken DownlinkCallback
	// the host unlinked the downlink before it ever linked
	OnFailed DownlinkCallback
}

func (self *DownlinkCallbacks) envelope(callback DownlinkEnvelopeCallback, downlink *Downlink, envelope *warp.Envelope) {
	if callback != nil {
		HandleError(func() {
			callback(downlink, envelope)
		})
	}
}

func (self *DownlinkCallbacks) event(callback DownlinkCallback, downlink *Downlink) {
	if callback != nil {
		HandleError(func() {
			callback(downlink)
		})
	}
}

// Merge combines callbacks, with the non-nil callbacks of `other` taking precedence.
func (self *DownlinkCallbacks) Merge(other *DownlinkCallbacks) *DownlinkCallbacks {
	merged := &DownlinkCallbacks{}
	if self != nil {
		*merged = *self
	}
	if other == nil {
		return merged
	}
	envelopeCallbacks := []struct {
		dst *DownlinkEnvelopeCallback
		src DownlinkEnvelopeCallback
	}{
		{&merged.OnEvent, other.OnEvent},
		{&merged.OnCommand, other.OnCommand},
		{&merged.OnLink, other.OnLink},
		{&merged.OnLinked, other.OnLinked},
		{&merged.OnSync, other.OnSync},
		{&merged.OnSynced, other.OnSynced},
		{&merged.OnUnlink, other.OnUnlink},
		{&merged.OnUnlinked, other.OnUnlinked},
	}
	for _, c := range envelopeCallbacks {
		if c.src != nil {
			*c.dst = c.src
		}
	}
	callbacks := []struct {
		dst *DownlinkCallback
		src DownlinkCallback
	}{
		{&merged.OnConnect, other.OnConnect},
		{&merged.OnDisconnect, other.OnDisconnect},
		{&merged.OnError, other.OnError},
		{&merged.OnClose, other.OnClose},
		{&merged.OnBroken, other.OnBroken},
		{&merged.OnUnbroken, other.OnUnbroken},
		{&merged.OnFailed, other.OnFailed},
	}
	for _, c := range callbacks {
		if c.src != nil {
			*c.dst = c.src
		}
	}
	return merged
}

type DownlinkOptions struct {
	Prio float64
	// keep alive downlinks survive a disconnect and relink when the channel reconnects
	KeepAlive bool
	Delegate  *DownlinkCallbacks

	// map downlinks only
	// nil keys entries by their value
	PrimaryKey KeyFunction
	// nil keeps entries in insertion order
	SortBy    CompareFunction
	DeltaMode MapDeltaMode
}

func DefaultDownlinkOptions() *DownlinkOptions {
	return &DownlinkOptions{
		Prio:      0,
		KeepAlive: false,
		DeltaMode: KeyedDeltas,
	}
}

// Downlink mirrors one lane of one node on a host.
// Linked and synced downlinks forward events. List and map downlinks also merge events
// into local state, see `ListDownlink` and `MapDownlink`.
type Downlink struct {
	downlinkId Id
	channel    *Channel
	kind       DownlinkKind

	hostUri string
	// resolved against the host
	nodeUri string
	laneUri string

	prio      float64
	keepAlive bool
	delegate  *DownlinkCallbacks

	state DownlinkState
	// reached linked in the current request cycle
	linked bool
	broken bool

	// scope bookkeeping, run before the protocol close
	closeHooks []func(downlink *Downlink)

	list     *listState
	mapState *mapState
}

func newDownlink(
	channel *Channel,
	kind DownlinkKind,
	nodeUri string,
	laneUri string,
	options *DownlinkOptions,
) *Downlink {
	if options == nil {
		options = DefaultDownlinkOptions()
	}
	downlink := &Downlink{
		downlinkId: NewId(),
		channel:    channel,
		kind:       kind,
		hostUri:    channel.HostUri(),
		nodeUri:    channel.ResolveUri(nodeUri),
		laneUri:    laneUri,
		prio:       options.Prio,
		keepAlive:  options.KeepAlive,
		delegate:   options.Delegate.Merge(nil),
		state:      DownlinkUnlinked,
		closeHooks: []func(downlink *Downlink){},
	}
	switch kind {
	case ListDownlinkKind:
		downlink.list = newListState()
	case MapDownlinkKind:
		downlink.mapState = newMapState(options)
	}
	return downlink
}

func (self *Downlink) DownlinkId() Id {
	return self.downlinkId
}

func (self *Downlink) Kind() DownlinkKind {
	return self.kind
}

func (self *Downlink) Channel() *Channel {
	return self.channel
}

func (self *Downlink) HostUri() string {
	return self.hostUri
}

func (self *Downlink) NodeUri() string {
	return self.nodeUri
}

func (self *Downlink) LaneUri() string {
	return self.laneUri
}

func (self *Downlink) Prio() float64 {
	return self.prio
}

func (self *Downlink) KeepAlive() bool {
	return self.keepAlive
}

func (self *Downlink) SetKeepAlive(keepAlive bool) {
	self.keepAlive = keepAlive
}

func (self *Downlink) Delegate() *DownlinkCallbacks {
	return self.delegate
}

func (self *Downlink) SetDelegate(delegate *DownlinkCallbacks) {
	self.delegate = delegate.Merge(nil)
}

func (self *Downlink) State() DownlinkState {
	return self.state
}

func (self *Downlink) IsConnected() bool {
	return self.channel.IsConnected()
}

func (self *Downlink) IsAuthorized() bool {
	return self.channel.IsAuthorized()
}

func (self *Downlink) Session() value.Value {
	return self.channel.Session()
}

func (self *Downlink) String() string {
	return fmt.Sprintf("%s %s %s %s", self.kind, self.downlinkId.Short(), self.nodeUri, self.laneUri)
}

// Command sends a command message to the lane, buffered if the channel is disconnected.
func (self *Downlink) Command(body value.Value) {
	self.channel.Command(self.nodeUri, self.laneUri, body)
}

func (self *Downlink) Close() {
	self.channel.UnregisterDownlink(self)
}

func (self *Downlink) addCloseHook(hook func(downlink *Downlink)) {
	self.closeHooks = append(self.closeHooks, hook)
}

func (self *Downlink) setState(state DownlinkState) {
	if self.state != state {
		glog.V(2).Infof("[d]%s %s -> %s\n", self, self.state, state)
		self.state = state
	}
}

func (self *Downlink) onEventMessage(message *warp.Envelope) {
	if self.state == DownlinkClosed {
		return
	}
	switch self.kind {
	case ListDownlinkKind:
		self.list.onEventMessage(message.Body)
	case MapDownlinkKind:
		self.mapState.onEventMessage(message.Body)
	}
	self.delegate.envelope(self.delegate.OnEvent, self, message)
}

func (self *Downlink) onCommandMessage(message *warp.Envelope) {
	self.delegate.envelope(self.delegate.OnCommand, self, message)
}

func (self *Downlink) onLinkRequest(request *warp.Envelope) {
	self.delegate.envelope(self.delegate.OnLink, self, request)
}

func (self *Downlink) onLinkedResponse(response *warp.Envelope) {
	if self.state == DownlinkClosed {
		return
	}
	if self.broken {
		self.broken = false
		self.delegate.event(self.delegate.OnUnbroken, self)
	}
	self.linked = true
	self.setState(DownlinkLinked)
	self.delegate.envelope(self.delegate.OnLinked, self, response)
}

func (self *Downlink) onSyncRequest(request *warp.Envelope) {
	self.delegate.envelope(self.delegate.OnSync, self, request)
}

func (self *Downlink) onSyncedResponse(response *warp.Envelope) {
	if self.state == DownlinkClosed {
		return
	}
	self.setState(DownlinkSynced)
	self.delegate.envelope(self.delegate.OnSynced, self, response)
}

func (self *Downlink) onUnlinkRequest(request *warp.Envelope) {
	self.delegate.envelope(self.delegate.OnUnlink, self, request)
}

func (self *Downlink) onUnlinkedResponse(response *warp.Envelope) {
	if self.state == DownlinkClosed {
		return
	}
	if !self.linked {
		self.delegate.event(self.delegate.OnFailed, self)
	}
	self.linked = false
	self.setState(DownlinkUnlinked)
	self.delegate.envelope(self.delegate.OnUnlinked, self, response)
}

func (self *Downlink) onChannelConnect() {
	if self.state == DownlinkClosed {
		return
	}
	self.delegate.event(self.delegate.OnConnect, self)
	if self.state == DownlinkClosed {
		// closed by the connect callback
		return
	}
	self.linked = false
	nodeUri := self.channel.UnresolveUri(self.nodeUri)
	switch self.kind {
	case LinkedDownlinkKind:
		request := warp.NewLinkRequest(nodeUri, self.laneUri, self.prio)
		self.setState(DownlinkLinkRequested)
		self.onLinkRequest(request)
		self.channel.Push(request)
	default:
		request := warp.NewSyncRequest(nodeUri, self.laneUri, self.prio)
		self.setState(DownlinkSyncRequested)
		self.onSyncRequest(request)
		self.channel.Push(request)
	}
}

func (self *Downlink) onChannelDisconnect() {
	if self.state == DownlinkClosed {
		return
	}
	self.delegate.event(self.delegate.OnDisconnect, self)
	if self.state == DownlinkClosed {
		return
	}
	if !self.keepAlive {
		self.Close()
		return
	}
	switch self.state {
	case DownlinkLinked, DownlinkSynced:
		self.broken = true
		self.setState(DownlinkBroken)
		self.delegate.event(self.delegate.OnBroken, self)
	case DownlinkBroken:
	default:
		self.setState(DownlinkUnlinked)
	}
	self.linked = false
}

func (self *Downlink) onChannelError() {
	if self.state == DownlinkClosed {
		return
	}
	self.delegate.event(self.delegate.OnError, self)
}

// the scope hooks run first, then the protocol close
func (self *Downlink) onChannelClose() {
	if self.state == DownlinkClosed {
		return
	}
	closeHooks := self.closeHooks
	self.closeHooks = nil
	for _, hook := range closeHooks {
		hook(self)
	}
	self.linked = false
	self.broken = false
	self.setState(DownlinkClosed)
	self.delegate.event(self.delegate.OnClose, self)
}
