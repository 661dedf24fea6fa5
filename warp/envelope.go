package warp

import (
	"fmt"

	"github.com/linkwire/swim/value"
)

type Kind int

const (
	EventMessageKind Kind = iota
	CommandMessageKind
	LinkRequestKind
	LinkedResponseKind
	SyncRequestKind
	SyncedResponseKind
	UnlinkRequestKind
	UnlinkedResponseKind
	AuthRequestKind
	AuthedResponseKind
	DeauthRequestKind
	DeauthedResponseKind
	GetRequestKind
	PutRequestKind
	StateResponseKind
)

var kindTags = map[Kind]string{
	EventMessageKind:     "@event",
	CommandMessageKind:   "@command",
	LinkRequestKind:      "@link",
	LinkedResponseKind:   "@linked",
	SyncRequestKind:      "@sync",
	SyncedResponseKind:   "@synced",
	UnlinkRequestKind:    "@unlink",
	UnlinkedResponseKind: "@unlinked",
	AuthRequestKind:      "@auth",
	AuthedResponseKind:   "@authed",
	DeauthRequestKind:    "@deauth",
	DeauthedResponseKind: "@deauthed",
	GetRequestKind:       "@get",
	PutRequestKind:       "@put",
	StateResponseKind:    "@state",
}

var tagKinds = func() map[string]Kind {
	tagKinds := map[string]Kind{}
	for kind, tag := range kindTags {
		tagKinds[tag] = kind
	}
	return tagKinds
}()

func (self Kind) Tag() string {
	return kindTags[self]
}

func (self Kind) String() string {
	if tag, ok := kindTags[self]; ok {
		return tag[1:]
	}
	return fmt.Sprintf("kind(%d)", int(self))
}

// auth envelopes are host scoped and carry no node or lane
func (self Kind) IsHostScoped() bool {
	switch self {
	case AuthRequestKind, AuthedResponseKind, DeauthRequestKind, DeauthedResponseKind:
		return true
	default:
		return false
	}
}

// node model envelopes carry a node but no lane
func (self Kind) IsNodeScoped() bool {
	switch self {
	case GetRequestKind, PutRequestKind, StateResponseKind:
		return true
	default:
		return false
	}
}

// Envelope is one protocol message. Node may be relative to the host of the connection.
type Envelope struct {
	Kind Kind
	Node string
	Lane string
	Prio float64
	Body value.Value
}

func NewEventMessage(node string, lane string, body value.Value) *Envelope {
	return &Envelope{Kind: EventMessageKind, Node: node, Lane: lane, Body: body}
}

func NewCommandMessage(node string, lane string, body value.Value) *Envelope {
	return &Envelope{Kind: CommandMessageKind, Node: node, Lane: lane, Body: body}
}

func NewLinkRequest(node string, lane string, prio float64) *Envelope {
	return &Envelope{Kind: LinkRequestKind, Node: node, Lane: lane, Prio: prio}
}

func NewLinkedResponse(node string, lane string) *Envelope {
	return &Envelope{Kind: LinkedResponseKind, Node: node, Lane: lane}
}

func NewSyncRequest(node string, lane string, prio float64) *Envelope {
	return &Envelope{Kind: SyncRequestKind, Node: node, Lane: lane, Prio: prio}
}

func NewSyncedResponse(node string, lane string) *Envelope {
	return &Envelope{Kind: SyncedResponseKind, Node: node, Lane: lane}
}

func NewUnlinkRequest(node string, lane string) *Envelope {
	return &Envelope{Kind: UnlinkRequestKind, Node: node, Lane: lane}
}

func NewUnlinkedResponse(node string, lane string) *Envelope {
	return &Envelope{Kind: UnlinkedResponseKind, Node: node, Lane: lane}
}

func NewAuthRequest(credentials value.Value) *Envelope {
	return &Envelope{Kind: AuthRequestKind, Body: credentials}
}

func NewAuthedResponse(session value.Value) *Envelope {
	return &Envelope{Kind: AuthedResponseKind, Body: session}
}

func NewDeauthRequest() *Envelope {
	return &Envelope{Kind: DeauthRequestKind}
}

func NewDeauthedResponse(body value.Value) *Envelope {
	return &Envelope{Kind: DeauthedResponseKind, Body: body}
}

func NewGetRequest(node string) *Envelope {
	return &Envelope{Kind: GetRequestKind, Node: node}
}

func NewPutRequest(node string, body value.Value) *Envelope {
	return &Envelope{Kind: PutRequestKind, Node: node, Body: body}
}

func NewStateResponse(node string, body value.Value) *Envelope {
	return &Envelope{Kind: StateResponseKind, Node: node, Body: body}
}

// WithAddress returns a copy of the envelope addressed to `node`.
func (self *Envelope) WithAddress(node string) *Envelope {
	envelope := *self
	envelope.Node = node
	return &envelope
}

// application messages may be buffered while disconnected. link control never is.
func (self *Envelope) IsBufferable() bool {
	switch self.Kind {
	case CommandMessageKind, GetRequestKind, PutRequestKind:
		return true
	default:
		return false
	}
}

func (self *Envelope) String() string {
	switch {
	case self.Kind.IsHostScoped():
		return fmt.Sprintf("%s(%s)", self.Kind, value.String(self.Body))
	case self.Kind.IsNodeScoped():
		return fmt.Sprintf("%s(%s, %s)", self.Kind, self.Node, value.String(self.Body))
	case self.Body != nil:
		return fmt.Sprintf("%s(%s, %s, %s)", self.Kind, self.Node, self.Lane, value.String(self.Body))
	default:
		return fmt.Sprintf("%s(%s, %s)", self.Kind, self.Node, self.Lane)
	}
}
