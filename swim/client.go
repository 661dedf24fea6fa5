package swim

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"

	"github.com/linkwire/swim/value"
)

// Client owns one channel per host and the dispatcher all of its state is confined to.
//
// Except for `Dispatch`, `Call`, and `Close`, client methods and the methods of every channel,
// scope, and downlink of the client must be called on the dispatcher. Callbacks already run
// there. Other goroutines use `Dispatch` or `Call`.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings   *ClientSettings
	loop       *Loop
	dispatcher Dispatcher
	scheduler  Scheduler

	// host uri -> channel
	channels map[string]*Channel
	delegate *ChannelCallbacks
}

func NewClientWithDefaults(ctx context.Context) *Client {
	client, err := NewClient(ctx, DefaultClientSettings())
	if err != nil {
		panic(err)
	}
	return client
}

func NewClient(ctx context.Context, settings *ClientSettings) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("client settings: %w", err)
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	loop := NewLoop(cancelCtx, settings.LoopQueueSize)
	client := newClient(cancelCtx, cancel, settings, loop, NewDispatchScheduler(loop))
	client.loop = loop
	return client, nil
}

func newClient(
	ctx context.Context,
	cancel context.CancelFunc,
	settings *ClientSettings,
	dispatcher Dispatcher,
	scheduler Scheduler,
) *Client {
	return &Client{
		ctx:        ctx,
		cancel:     cancel,
		settings:   settings,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		channels:   map[string]*Channel{},
		delegate:   &ChannelCallbacks{},
	}
}

func (self *Client) Settings() *ClientSettings {
	return self.settings
}

// Dispatch runs `fn` on the client dispatcher.
func (self *Client) Dispatch(fn func()) bool {
	return self.dispatcher.Dispatch(fn)
}

// Call runs `fn` on the client dispatcher and waits for it to complete.
// Called from the dispatcher, `fn` runs immediately.
func (self *Client) Call(fn func()) bool {
	if self.loop == nil {
		fn()
		return true
	}
	return self.loop.Call(fn)
}

func (self *Client) Done() <-chan struct{} {
	return self.ctx.Done()
}

// SetDelegate observes the channels of every host.
func (self *Client) SetDelegate(callbacks *ChannelCallbacks) {
	if callbacks == nil {
		*self.delegate = ChannelCallbacks{}
	} else {
		*self.delegate = *callbacks
	}
}

// Channel returns the channel for the host, creating it if needed. The channel does not
// connect until it has work.
func (self *Client) Channel(hostUri string) *Channel {
	channel, ok := self.channels[hostUri]
	if !ok {
		channel = NewChannel(self.ctx, hostUri, self.settings, self.dispatcher, self.scheduler, self.delegate)
		self.channels[hostUri] = channel
		openChannels.Inc()
		glog.V(2).Infof("[c]new channel %s\n", hostUri)
	}
	return channel
}

func (self *Client) Channels() []*Channel {
	hostUris := maps.Keys(self.channels)
	slices.Sort(hostUris)
	channels := make([]*Channel, len(hostUris))
	for i, hostUri := range hostUris {
		channels[i] = self.channels[hostUri]
	}
	return channels
}

func (self *Client) hostOf(nodeUri string) (string, error) {
	hostUri := ExtractHostUri(nodeUri)
	if hostUri == "" {
		return "", fmt.Errorf("Node uri must be absolute (%s).", nodeUri)
	}
	return hostUri, nil
}

func (self *Client) IsConnected(hostUri string) bool {
	if channel, ok := self.channels[hostUri]; ok {
		return channel.IsConnected()
	}
	return false
}

func (self *Client) IsAuthorized(hostUri string) bool {
	if channel, ok := self.channels[hostUri]; ok {
		return channel.IsAuthorized()
	}
	return false
}

func (self *Client) Session(hostUri string) value.Value {
	if channel, ok := self.channels[hostUri]; ok {
		return channel.Session()
	}
	return nil
}

func (self *Client) Authorize(hostUri string, credentials value.Value) {
	self.Channel(hostUri).Authorize(credentials)
}

func (self *Client) Deauthorize(hostUri string) {
	self.Channel(hostUri).Deauthorize()
}

func (self *Client) Host(hostUri string) *HostScope {
	return newHostScope(self, self.Channel(hostUri))
}

// Node opens a node scope. `nodeUri` must be absolute.
func (self *Client) Node(nodeUri string) (*NodeScope, error) {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return nil, err
	}
	return self.NodeAt(hostUri, nodeUri), nil
}

func (self *Client) NodeAt(hostUri string, nodeUri string) *NodeScope {
	return newNodeScope(self, self.Channel(hostUri), nodeUri)
}

func (self *Client) Lane(nodeUri string, laneUri string) (*LaneScope, error) {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return nil, err
	}
	return self.LaneAt(hostUri, nodeUri, laneUri), nil
}

func (self *Client) LaneAt(hostUri string, nodeUri string, laneUri string) *LaneScope {
	return newLaneScope(self, self.Channel(hostUri), nodeUri, laneUri)
}

func (self *Client) Downlink() *DownlinkBuilder {
	return newDownlinkBuilder(self)
}

func (self *Client) openDownlink(kind DownlinkKind, hostUri string, nodeUri string, laneUri string, options *DownlinkOptions) *Downlink {
	channel := self.Channel(hostUri)
	downlink := newDownlink(channel, kind, nodeUri, laneUri, options)
	channel.RegisterDownlink(downlink)
	return downlink
}

// Link opens a linked downlink. `nodeUri` must be absolute.
func (self *Client) Link(nodeUri string, laneUri string, options *DownlinkOptions) (*Downlink, error) {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return nil, err
	}
	return self.LinkAt(hostUri, nodeUri, laneUri, options), nil
}

// LinkAt opens a linked downlink. `nodeUri` may be relative to `hostUri`.
func (self *Client) LinkAt(hostUri string, nodeUri string, laneUri string, options *DownlinkOptions) *Downlink {
	return self.openDownlink(LinkedDownlinkKind, hostUri, nodeUri, laneUri, options)
}

func (self *Client) Sync(nodeUri string, laneUri string, options *DownlinkOptions) (*Downlink, error) {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return nil, err
	}
	return self.SyncAt(hostUri, nodeUri, laneUri, options), nil
}

func (self *Client) SyncAt(hostUri string, nodeUri string, laneUri string, options *DownlinkOptions) *Downlink {
	return self.openDownlink(SyncedDownlinkKind, hostUri, nodeUri, laneUri, options)
}

func (self *Client) SyncList(nodeUri string, laneUri string, options *DownlinkOptions) (*ListDownlink, error) {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return nil, err
	}
	return self.SyncListAt(hostUri, nodeUri, laneUri, options), nil
}

func (self *Client) SyncListAt(hostUri string, nodeUri string, laneUri string, options *DownlinkOptions) *ListDownlink {
	return &ListDownlink{self.openDownlink(ListDownlinkKind, hostUri, nodeUri, laneUri, options)}
}

func (self *Client) SyncMap(nodeUri string, laneUri string, options *DownlinkOptions) (*MapDownlink, error) {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return nil, err
	}
	return self.SyncMapAt(hostUri, nodeUri, laneUri, options), nil
}

func (self *Client) SyncMapAt(hostUri string, nodeUri string, laneUri string, options *DownlinkOptions) *MapDownlink {
	return &MapDownlink{self.openDownlink(MapDownlinkKind, hostUri, nodeUri, laneUri, options)}
}

func (self *Client) Command(nodeUri string, laneUri string, body value.Value) error {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return err
	}
	self.CommandAt(hostUri, nodeUri, laneUri, body)
	return nil
}

func (self *Client) CommandAt(hostUri string, nodeUri string, laneUri string, body value.Value) {
	channel := self.Channel(hostUri)
	channel.Command(channel.ResolveUri(nodeUri), laneUri, body)
}

// Get requests the state of a node. `callback` receives the next state of the node.
func (self *Client) Get(nodeUri string, callback func(body value.Value)) error {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return err
	}
	channel := self.Channel(hostUri)
	channel.Get(channel.ResolveUri(nodeUri), callback)
	return nil
}

// Put replaces the state of a node. `callback`, if not nil, receives the resulting state.
func (self *Client) Put(nodeUri string, body value.Value, callback func(body value.Value)) error {
	hostUri, err := self.hostOf(nodeUri)
	if err != nil {
		return err
	}
	channel := self.Channel(hostUri)
	channel.Put(channel.ResolveUri(nodeUri), body, callback)
	return nil
}

// Reset closes and forgets every channel. The client remains usable.
func (self *Client) Reset() {
	channels := self.Channels()
	self.channels = map[string]*Channel{}
	for _, channel := range channels {
		channel.Close()
		openChannels.Dec()
	}
}

// Close resets the client and stops its dispatcher. Safe to call from any goroutine,
// including from callbacks running on the dispatcher. Returns after every channel is closed.
func (self *Client) Close() {
	if self.loop == nil {
		self.Reset()
	} else {
		self.loop.Call(self.Reset)
		self.loop.Close()
	}
	self.cancel()
}
