package swim

import (
	"slices"

	"github.com/linkwire/swim/value"
)

// scope groups the downlinks it opened so they can be closed together, and observes its
// channel.
type scope struct {
	client  *Client
	channel *Channel

	// registered with the channel for the life of the scope
	delegate  *ChannelCallbacks
	downlinks []*Downlink
	closed    bool
}

func newScope(client *Client, channel *Channel) scope {
	delegate := &ChannelCallbacks{}
	channel.AddDelegate(delegate)
	return scope{
		client:    client,
		channel:   channel,
		delegate:  delegate,
		downlinks: []*Downlink{},
	}
}

func (self *scope) Channel() *Channel {
	return self.channel
}

func (self *scope) IsConnected() bool {
	return self.channel.IsConnected()
}

func (self *scope) IsAuthorized() bool {
	return self.channel.IsAuthorized()
}

func (self *scope) Session() value.Value {
	return self.channel.Session()
}

// SetDelegate replaces the channel callbacks of the scope.
func (self *scope) SetDelegate(callbacks *ChannelCallbacks) {
	if callbacks == nil {
		*self.delegate = ChannelCallbacks{}
	} else {
		*self.delegate = *callbacks
	}
}

func (self *scope) Downlinks() []*Downlink {
	return slices.Clone(self.downlinks)
}

func (self *scope) registerDownlink(downlink *Downlink) {
	self.downlinks = append(self.downlinks, downlink)
	downlink.addCloseHook(self.unregisterDownlink)
}

func (self *scope) unregisterDownlink(downlink *Downlink) {
	if i := slices.Index(self.downlinks, downlink); 0 <= i {
		self.downlinks = slices.Delete(self.downlinks, i, i+1)
	}
}

func (self *scope) openDownlink(kind DownlinkKind, nodeUri string, laneUri string, options *DownlinkOptions) *Downlink {
	downlink := newDownlink(self.channel, kind, nodeUri, laneUri, options)
	if !self.closed {
		self.registerDownlink(downlink)
	}
	self.channel.RegisterDownlink(downlink)
	return downlink
}

// Close stops observing the channel and closes every downlink opened through the scope.
func (self *scope) Close() {
	if self.closed {
		return
	}
	self.closed = true
	self.channel.RemoveDelegate(self.delegate)
	downlinks := self.downlinks
	self.downlinks = []*Downlink{}
	for _, downlink := range downlinks {
		downlink.Close()
	}
}

type HostScope struct {
	scope
	hostUri string
}

func newHostScope(client *Client, channel *Channel) *HostScope {
	return &HostScope{
		scope:   newScope(client, channel),
		hostUri: channel.HostUri(),
	}
}

func (self *HostScope) HostUri() string {
	return self.hostUri
}

func (self *HostScope) Node(nodeUri string) *NodeScope {
	return newNodeScope(self.client, self.channel, nodeUri)
}

func (self *HostScope) Lane(nodeUri string, laneUri string) *LaneScope {
	return newLaneScope(self.client, self.channel, nodeUri, laneUri)
}

func (self *HostScope) Authorize(credentials value.Value) {
	self.channel.Authorize(credentials)
}

func (self *HostScope) Deauthorize() {
	self.channel.Deauthorize()
}

func (self *HostScope) Command(nodeUri string, laneUri string, body value.Value) {
	self.channel.Command(self.channel.ResolveUri(nodeUri), laneUri, body)
}

func (self *HostScope) Get(nodeUri string, callback func(body value.Value)) {
	self.channel.Get(self.channel.ResolveUri(nodeUri), callback)
}

func (self *HostScope) Put(nodeUri string, body value.Value, callback func(body value.Value)) {
	self.channel.Put(self.channel.ResolveUri(nodeUri), body, callback)
}

func (self *HostScope) Link(nodeUri string, laneUri string, options *DownlinkOptions) *Downlink {
	return self.openDownlink(LinkedDownlinkKind, nodeUri, laneUri, options)
}

func (self *HostScope) Sync(nodeUri string, laneUri string, options *DownlinkOptions) *Downlink {
	return self.openDownlink(SyncedDownlinkKind, nodeUri, laneUri, options)
}

func (self *HostScope) SyncList(nodeUri string, laneUri string, options *DownlinkOptions) *ListDownlink {
	return &ListDownlink{self.openDownlink(ListDownlinkKind, nodeUri, laneUri, options)}
}

func (self *HostScope) SyncMap(nodeUri string, laneUri string, options *DownlinkOptions) *MapDownlink {
	return &MapDownlink{self.openDownlink(MapDownlinkKind, nodeUri, laneUri, options)}
}

func (self *HostScope) Downlink() *DownlinkBuilder {
	return newScopeDownlinkBuilder(self.client, &self.scope).Host(self.hostUri)
}

type NodeScope struct {
	scope
	hostUri string
	nodeUri string
}

func newNodeScope(client *Client, channel *Channel, nodeUri string) *NodeScope {
	return &NodeScope{
		scope:   newScope(client, channel),
		hostUri: channel.HostUri(),
		nodeUri: channel.ResolveUri(nodeUri),
	}
}

func (self *NodeScope) HostUri() string {
	return self.hostUri
}

func (self *NodeScope) NodeUri() string {
	return self.nodeUri
}

func (self *NodeScope) Lane(laneUri string) *LaneScope {
	return newLaneScope(self.client, self.channel, self.nodeUri, laneUri)
}

func (self *NodeScope) Command(laneUri string, body value.Value) {
	self.channel.Command(self.nodeUri, laneUri, body)
}

func (self *NodeScope) Get(callback func(body value.Value)) {
	self.channel.Get(self.nodeUri, callback)
}

func (self *NodeScope) Put(body value.Value, callback func(body value.Value)) {
	self.channel.Put(self.nodeUri, body, callback)
}

func (self *NodeScope) Link(laneUri string, options *DownlinkOptions) *Downlink {
	return self.openDownlink(LinkedDownlinkKind, self.nodeUri, laneUri, options)
}

func (self *NodeScope) Sync(laneUri string, options *DownlinkOptions) *Downlink {
	return self.openDownlink(SyncedDownlinkKind, self.nodeUri, laneUri, options)
}

func (self *NodeScope) SyncList(laneUri string, options *DownlinkOptions) *ListDownlink {
	return &ListDownlink{self.openDownlink(ListDownlinkKind, self.nodeUri, laneUri, options)}
}

func (self *NodeScope) SyncMap(laneUri string, options *DownlinkOptions) *MapDownlink {
	return &MapDownlink{self.openDownlink(MapDownlinkKind, self.nodeUri, laneUri, options)}
}

func (self *NodeScope) Downlink() *DownlinkBuilder {
	return newScopeDownlinkBuilder(self.client, &self.scope).Host(self.hostUri).Node(self.nodeUri)
}

type LaneScope struct {
	scope
	hostUri string
	nodeUri string
	laneUri string
}

func newLaneScope(client *Client, channel *Channel, nodeUri string, laneUri string) *LaneScope {
	return &LaneScope{
		scope:   newScope(client, channel),
		hostUri: channel.HostUri(),
		nodeUri: channel.ResolveUri(nodeUri),
		laneUri: laneUri,
	}
}

func (self *LaneScope) HostUri() string {
	return self.hostUri
}

func (self *LaneScope) NodeUri() string {
	return self.nodeUri
}

func (self *LaneScope) LaneUri() string {
	return self.laneUri
}

func (self *LaneScope) Command(body value.Value) {
	self.channel.Command(self.nodeUri, self.laneUri, body)
}

func (self *LaneScope) Link(options *DownlinkOptions) *Downlink {
	return self.openDownlink(LinkedDownlinkKind, self.nodeUri, self.laneUri, options)
}

func (self *LaneScope) Sync(options *DownlinkOptions) *Downlink {
	return self.openDownlink(SyncedDownlinkKind, self.nodeUri, self.laneUri, options)
}

func (self *LaneScope) SyncList(options *DownlinkOptions) *ListDownlink {
	return &ListDownlink{self.openDownlink(ListDownlinkKind, self.nodeUri, self.laneUri, options)}
}

func (self *LaneScope) SyncMap(options *DownlinkOptions) *MapDownlink {
	return &MapDownlink{self.openDownlink(MapDownlinkKind, self.nodeUri, self.laneUri, options)}
}

func (self *LaneScope) Downlink() *DownlinkBuilder {
	return newScopeDownlinkBuilder(self.client, &self.scope).Host(self.hostUri).Node(self.nodeUri).Lane(self.laneUri)
}
