package swim

import (
	"errors"
	"fmt"

	"github.com/linkwire/swim/value"
)

// DownlinkBuilder configures a downlink fluently.
//
//     downlink, err := client.Downlink().
//         Node("ws://localhost:9001/house/kitchen").
//         Lane("light").
//         KeepAlive(true).
//         OnEvent(func(downlink *Downlink, message *warp.Envelope) {
//             ...
//         }).
//         Link()
//
// Errors in the configuration are returned by the terminal `Link`, `Sync`, `SyncList`, or
// `SyncMap`.
type DownlinkBuilder struct {
	client *Client
	// nil when built from the client
	scope *scope

	hostUri string
	nodeUri string
	laneUri string

	options  DownlinkOptions
	delegate *DownlinkCallbacks

	err error
}

func newDownlinkBuilder(client *Client) *DownlinkBuilder {
	return &DownlinkBuilder{
		client:   client,
		options:  *DefaultDownlinkOptions(),
		delegate: &DownlinkCallbacks{},
	}
}

func newScopeDownlinkBuilder(client *Client, scope *scope) *DownlinkBuilder {
	builder := newDownlinkBuilder(client)
	builder.scope = scope
	return builder
}

func (self *DownlinkBuilder) Host(hostUri string) *DownlinkBuilder {
	self.hostUri = hostUri
	return self
}

func (self *DownlinkBuilder) Node(nodeUri string) *DownlinkBuilder {
	self.nodeUri = nodeUri
	return self
}

func (self *DownlinkBuilder) Lane(laneUri string) *DownlinkBuilder {
	self.laneUri = laneUri
	return self
}

func (self *DownlinkBuilder) Prio(prio float64) *DownlinkBuilder {
	self.options.Prio = prio
	return self
}

func (self *DownlinkBuilder) KeepAlive(keepAlive bool) *DownlinkBuilder {
	self.options.KeepAlive = keepAlive
	return self
}

// Delegate sets all callbacks. Callbacks set individually take precedence.
func (self *DownlinkBuilder) Delegate(delegate *DownlinkCallbacks) *DownlinkBuilder {
	self.options.Delegate = delegate
	return self
}

func (self *DownlinkBuilder) OnEvent(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnEvent = callback
	return self
}

func (self *DownlinkBuilder) OnCommand(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnCommand = callback
	return self
}

func (self *DownlinkBuilder) OnLink(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnLink = callback
	return self
}

func (self *DownlinkBuilder) OnLinked(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnLinked = callback
	return self
}

func (self *DownlinkBuilder) OnSync(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnSync = callback
	return self
}

func (self *DownlinkBuilder) OnSynced(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnSynced = callback
	return self
}

func (self *DownlinkBuilder) OnUnlink(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnUnlink = callback
	return self
}

func (self *DownlinkBuilder) OnUnlinked(callback DownlinkEnvelopeCallback) *DownlinkBuilder {
	self.delegate.OnUnlinked = callback
	return self
}

func (self *DownlinkBuilder) OnConnect(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnConnect = callback
	return self
}

func (self *DownlinkBuilder) OnDisconnect(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnDisconnect = callback
	return self
}

func (self *DownlinkBuilder) OnError(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnError = callback
	return self
}

func (self *DownlinkBuilder) OnClose(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnClose = callback
	return self
}

func (self *DownlinkBuilder) OnBroken(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnBroken = callback
	return self
}

func (self *DownlinkBuilder) OnUnbroken(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnUnbroken = callback
	return self
}

func (self *DownlinkBuilder) OnFailed(callback DownlinkCallback) *DownlinkBuilder {
	self.delegate.OnFailed = callback
	return self
}

func (self *DownlinkBuilder) PrimaryKey(primaryKey KeyFunction) *DownlinkBuilder {
	self.options.PrimaryKey = primaryKey
	return self
}

func (self *DownlinkBuilder) PrimaryKeyPath(path string) *DownlinkBuilder {
	primaryKey, err := ParseKeyPath(path)
	if err != nil {
		self.err = errors.Join(self.err, err)
	} else {
		self.options.PrimaryKey = primaryKey
	}
	return self
}

func (self *DownlinkBuilder) SortBy(sortBy CompareFunction) *DownlinkBuilder {
	self.options.SortBy = sortBy
	return self
}

func (self *DownlinkBuilder) SortByPath(path string) *DownlinkBuilder {
	sortBy, err := ParseSortByPath(path)
	if err != nil {
		self.err = errors.Join(self.err, err)
	} else {
		self.options.SortBy = sortBy
	}
	return self
}

func (self *DownlinkBuilder) DeltaMode(deltaMode MapDeltaMode) *DownlinkBuilder {
	self.options.DeltaMode = deltaMode
	return self
}

// normalize fills in the host from an absolute node uri, and resolves a relative node uri
// against the host
func (self *DownlinkBuilder) normalize() (hostUri string, nodeUri string, err error) {
	if self.err != nil {
		return "", "", self.err
	}
	if self.nodeUri == "" {
		return "", "", fmt.Errorf("Downlink requires a node uri.")
	}
	if self.laneUri == "" {
		return "", "", fmt.Errorf("Downlink requires a lane uri.")
	}
	hostUri = self.hostUri
	if hostUri == "" {
		hostUri = ExtractHostUri(self.nodeUri)
		if hostUri == "" || hostUri == "//" {
			return "", "", fmt.Errorf("Downlink node uri must be absolute without a host uri (%s).", self.nodeUri)
		}
	}
	nodeUri = ResolveUri(hostUri, self.nodeUri)
	return hostUri, nodeUri, nil
}

func (self *DownlinkBuilder) open(kind DownlinkKind) (*Downlink, error) {
	hostUri, nodeUri, err := self.normalize()
	if err != nil {
		return nil, err
	}
	if kind == MapDownlinkKind && self.options.DeltaMode == ValueDeltas && self.options.PrimaryKey == nil {
		return nil, fmt.Errorf("Value deltas require a primary key.")
	}

	options := self.options
	options.Delegate = options.Delegate.Merge(self.delegate)

	if self.scope != nil && self.scope.channel.HostUri() == hostUri {
		return self.scope.openDownlink(kind, nodeUri, self.laneUri, &options), nil
	}
	channel := self.client.Channel(hostUri)
	downlink := newDownlink(channel, kind, nodeUri, self.laneUri, &options)
	channel.RegisterDownlink(downlink)
	return downlink, nil
}

func (self *DownlinkBuilder) Link() (*Downlink, error) {
	return self.open(LinkedDownlinkKind)
}

func (self *DownlinkBuilder) Sync() (*Downlink, error) {
	return self.open(SyncedDownlinkKind)
}

func (self *DownlinkBuilder) SyncList() (*ListDownlink, error) {
	downlink, err := self.open(ListDownlinkKind)
	if err != nil {
		return nil, err
	}
	return &ListDownlink{downlink}, nil
}

func (self *DownlinkBuilder) SyncMap() (*MapDownlink, error) {
	downlink, err := self.open(MapDownlinkKind)
	if err != nil {
		return nil, err
	}
	return &MapDownlink{downlink}, nil
}

// Command sends a command to the configured node and lane without opening a downlink.
func (self *DownlinkBuilder) Command(body value.Value) error {
	hostUri, nodeUri, err := self.normalize()
	if err != nil {
		return err
	}
	self.client.Channel(hostUri).Command(nodeUri, self.laneUri, body)
	return nil
}
