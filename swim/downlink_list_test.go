package swim

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

func texts(values []value.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = value.String(v)
	}
	return out
}

func TestListStateMerge(t *testing.T) {
	state := newListState()

	state.onEventMessage(value.Text("a"))
	state.onEventMessage(value.Text("c"))
	state.onEventMessage(value.RequireParse(`{"@insert": {"index": 1}, "value": "b"}`))
	assert.Equal(t, texts(state.items), []string{`"a"`, `"b"`, `"c"`})

	// the echo of an applied insert is not applied again
	state.onEventMessage(value.RequireParse(`{"@insert": {"index": 1}, "value": "b"}`))
	assert.Equal(t, texts(state.items), []string{`"a"`, `"b"`, `"c"`})

	state.onEventMessage(value.RequireParse(`{"@update": {"index": 2}, "value": "C"}`))
	assert.Equal(t, texts(state.items), []string{`"a"`, `"b"`, `"C"`})
	// an update at the length appends
	state.onEventMessage(value.RequireParse(`{"@update": {"index": 3}, "value": "d"}`))
	// past the length is ignored
	state.onEventMessage(value.RequireParse(`{"@update": {"index": 9}, "value": "x"}`))
	assert.Equal(t, texts(state.items), []string{`"a"`, `"b"`, `"C"`, `"d"`})

	state.onEventMessage(value.RequireParse(`{"@move": {"from": 0, "to": 2}, "value": "a"}`))
	assert.Equal(t, texts(state.items), []string{`"b"`, `"C"`, `"a"`, `"d"`})
	// already moved
	state.onEventMessage(value.RequireParse(`{"@move": {"from": 0, "to": 2}, "value": "a"}`))
	assert.Equal(t, texts(state.items), []string{`"b"`, `"C"`, `"a"`, `"d"`})

	// a remove of a stale slot is ignored
	state.onEventMessage(value.RequireParse(`{"@remove": {"index": 0}, "value": "a"}`))
	assert.Equal(t, texts(state.items), []string{`"b"`, `"C"`, `"a"`, `"d"`})
	state.onEventMessage(value.RequireParse(`{"@delete": {"index": 2}, "value": "a"}`))
	assert.Equal(t, texts(state.items), []string{`"b"`, `"C"`, `"d"`})

	// malformed deltas are ignored
	state.onEventMessage(value.RequireParse(`{"@remove": {"index": -1}, "value": "b"}`))
	state.onEventMessage(value.RequireParse(`{"@insert": {"index": "x"}, "value": "b"}`))
	assert.Equal(t, texts(state.items), []string{`"b"`, `"C"`, `"d"`})

	// a clear with a value is an item
	state.onEventMessage(value.RequireParse(`{"@clear": null, "value": 1}`))
	assert.Equal(t, len(state.items), 4)
	state.onEventMessage(value.RequireParse(`{"@clear": null}`))
	assert.Equal(t, len(state.items), 0)
}

func TestListDownlink(t *testing.T) {
	client := newTestClient(nil)
	_, transport := client.connect(t)

	commands := 0
	events := 0
	list := client.SyncListAt(testHostUri, "/house/kitchen", "todo", &DownlinkOptions{
		Delegate: &DownlinkCallbacks{
			OnCommand: func(downlink *Downlink, message *warp.Envelope) {
				commands += 1
			},
			OnEvent: func(downlink *Downlink, message *warp.Envelope) {
				events += 1
			},
		},
	})
	assert.Equal(t, list.Kind(), ListDownlinkKind)
	assert.Equal(t, transport.count(warp.SyncRequestKind), 1)

	transport.receive(`{"@event": {"node": "/house/kitchen", "lane": "todo"}, "body": "wash"}`)
	transport.receive(`{"@event": {"node": "/house/kitchen", "lane": "todo"}, "body": "dry"}`)
	transport.receive(`{"@synced": {"node": "/house/kitchen", "lane": "todo"}}`)
	assert.Equal(t, events, 2)
	assert.Equal(t, texts(list.Values()), []string{`"wash"`, `"dry"`})

	assert.Equal(t, list.Push(value.Text("fold")), 3)
	assert.Equal(t, list.Unshift(value.Text("sort"), value.Text("soak")), 5)
	assert.Equal(t, texts(list.Values()), []string{`"sort"`, `"soak"`, `"wash"`, `"dry"`, `"fold"`})
	assert.Equal(t, commands, 3)

	// the echo of the unshift changes nothing
	transport.receive(`{"@event": {"node": "/house/kitchen", "lane": "todo"}, "body": {"@insert": {"index": 0}, "value": "sort"}}`)
	assert.Equal(t, list.Len(), 5)

	assert.Equal(t, list.Set(1, value.Text("rinse")), true)
	assert.Equal(t, list.Set(5, value.Text("iron")), true)
	assert.Equal(t, list.Set(7, value.Text("x")), false)
	assert.Equal(t, list.Set(-1, value.Text("x")), false)
	assert.Equal(t, texts(list.Values()), []string{`"sort"`, `"rinse"`, `"wash"`, `"dry"`, `"fold"`, `"iron"`})

	assert.Equal(t, list.Move(0, 5), true)
	assert.Equal(t, list.Move(6, 0), false)
	assert.Equal(t, texts(list.Values()), []string{`"rinse"`, `"wash"`, `"dry"`, `"fold"`, `"iron"`, `"sort"`})

	removed := list.Splice(1, 2, value.Text("scrub"))
	assert.Equal(t, texts(removed), []string{`"wash"`, `"dry"`})
	assert.Equal(t, texts(list.Values()), []string{`"rinse"`, `"scrub"`, `"fold"`, `"iron"`, `"sort"`})

	v, ok := list.Pop()
	assert.Equal(t, ok, true)
	assert.Equal(t, value.String(v), `"sort"`)
	v, ok = list.Shift()
	assert.Equal(t, ok, true)
	assert.Equal(t, value.String(v), `"rinse"`)
	assert.Equal(t, list.Get(0), list.Values()[0])
	assert.Equal(t, list.Get(9), nil)

	list.Clear()
	assert.Equal(t, list.Len(), 0)
	_, ok = list.Pop()
	assert.Equal(t, ok, false)

	// each mutation is one command: push, unshift 2, set 2, move, splice 3, pop, shift, clear
	assert.Equal(t, commands, 12)
	assert.Equal(t, transport.count(warp.CommandMessageKind), 12)

	bodies := []string{}
	for _, envelope := range transport.envelopes() {
		if envelope.Kind == warp.CommandMessageKind {
			assert.Equal(t, envelope.Node, "/house/kitchen")
			assert.Equal(t, envelope.Lane, "todo")
			bodies = append(bodies, value.String(envelope.Body))
		}
	}
	assert.Equal(t, bodies, []string{
		`"fold"`,
		`{"@insert":{"index":0},"value":"soak"}`,
		`{"@insert":{"index":0},"value":"sort"}`,
		`{"@update":{"index":1},"value":"rinse"}`,
		`{"@update":{"index":5},"value":"iron"}`,
		`{"@move":{"from":0,"to":5},"value":"sort"}`,
		`{"@remove":{"index":1},"value":"wash"}`,
		`{"@remove":{"index":1},"value":"dry"}`,
		`{"@insert":{"index":1},"value":"scrub"}`,
		`{"@remove":{"index":4},"value":"sort"}`,
		`{"@remove":{"index":0},"value":"rinse"}`,
		`{"@clear":null}`,
	})
}

func TestListDownlinkBuffered(t *testing.T) {
	client := newTestClient(nil)

	list := client.SyncListAt(testHostUri, "/house/kitchen", "todo", nil)
	list.Push(value.Text("wash"))
	assert.Equal(t, list.Len(), 1)
	assert.Equal(t, list.Channel().SendBufferSize(), 1)

	transport := client.host.last()
	transport.open()
	// the sync request precedes the buffered command
	assert.Equal(t, transport.kinds(), []warp.Kind{warp.SyncRequestKind, warp.CommandMessageKind})
}
