package swim

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

func TestMapStateMerge(t *testing.T) {
	state := newMapState(&DownlinkOptions{
		SortBy: RequireSortByPath("n"),
	})

	state.onEventMessage(value.RequireParse(`{"@update": {"key": "c"}, "value": {"n": 3}}`))
	state.onEventMessage(value.RequireParse(`{"@update": {"key": "a"}, "value": {"n": 1}}`))
	state.onEventMessage(value.RequireParse(`{"@update": {"key": "b"}, "value": {"n": 2}}`))

	keys := func() []string {
		out := []string{}
		for _, entry := range state.entries {
			out = append(out, value.String(entry.key))
		}
		return out
	}
	assert.Equal(t, keys(), []string{`"a"`, `"b"`, `"c"`})
	assert.Equal(t, len(state.table), 3)

	// an upsert replaces in place and resorts
	state.onEventMessage(value.RequireParse(`{"@update": {"key": "a"}, "value": {"n": 4}}`))
	assert.Equal(t, keys(), []string{`"b"`, `"c"`, `"a"`})
	assert.Equal(t, len(state.entries), 3)

	state.onEventMessage(value.RequireParse(`{"@remove": {"key": "c"}}`))
	assert.Equal(t, keys(), []string{`"b"`, `"a"`})
	assert.Equal(t, len(state.table), 2)
	// removing a missing key is a no op
	state.onEventMessage(value.RequireParse(`{"@remove": {"key": "c"}}`))
	assert.Equal(t, len(state.entries), 2)

	// non text keys are found by structural equality
	state.onEventMessage(value.RequireParse(`{"@update": {"key": {"room": 1}}, "value": {"n": 0}}`))
	assert.Equal(t, keys(), []string{`{"room":1}`, `"b"`, `"a"`})
	state.onEventMessage(value.RequireParse(`{"@update": {"key": {"room": 1}}, "value": {"n": 5}}`))
	assert.Equal(t, keys(), []string{`"b"`, `"a"`, `{"room":1}`})
	assert.Equal(t, len(state.table), 2)

	state.onEventMessage(value.RequireParse(`{"@clear": null}`))
	assert.Equal(t, len(state.entries), 0)
	assert.Equal(t, len(state.table), 0)
}

func TestMapStatePrimaryKey(t *testing.T) {
	state := newMapState(&DownlinkOptions{
		PrimaryKey: RequireKeyPath("profile.id"),
		DeltaMode:  ValueDeltas,
	})

	state.onEventMessage(value.RequireParse(`{"profile": {"id": "x"}, "n": 1}`))
	state.onEventMessage(value.RequireParse(`{"profile": {"id": "y"}, "n": 2}`))
	state.onEventMessage(value.RequireParse(`{"profile": {"id": "x"}, "n": 3}`))
	// no key
	state.onEventMessage(value.RequireParse(`{"n": 4}`))
	assert.Equal(t, len(state.entries), 2)

	_, entry := state.find(value.Text("x"))
	assert.Equal(t, value.String(entry.value), `{"n":3,"profile":{"id":"x"}}`)

	// the key of a remove without a key header comes from the value
	state.onEventMessage(value.RequireParse(`{"@remove": null, "value": {"profile": {"id": "y"}}}`))
	assert.Equal(t, len(state.entries), 1)
}

func TestMapStateValueDeltasRequirePrimaryKey(t *testing.T) {
	defer func() {
		assert.NotEqual(t, recover(), nil)
	}()
	newMapState(&DownlinkOptions{
		DeltaMode: ValueDeltas,
	})
}

func TestMapDownlink(t *testing.T) {
	client := newTestClient(nil)
	_, transport := client.connect(t)

	events := 0
	m := client.SyncMapAt(testHostUri, "/house", "rooms", &DownlinkOptions{
		Delegate: &DownlinkCallbacks{
			OnEvent: func(downlink *Downlink, message *warp.Envelope) {
				events += 1
			},
		},
	})
	transport.receive(`{"@event": {"node": "/house", "lane": "rooms"}, "body": {"@update": {"key": "kitchen"}, "value": {"lights": 2}}}`)
	transport.receive(`{"@synced": {"node": "/house", "lane": "rooms"}}`)
	assert.Equal(t, events, 1)
	assert.Equal(t, m.Size(), 1)
	assert.Equal(t, m.Has(value.Text("kitchen")), true)
	assert.Equal(t, value.String(m.Get(value.Text("kitchen"))), `{"lights":2}`)
	assert.Equal(t, m.Get(value.Text("attic")), nil)

	m.Set(value.Text("bedroom"), value.Record("lights", 1))
	// an unchanged value sends nothing
	m.Set(value.Text("kitchen"), value.Record("lights", 2))
	m.Set(value.Text("kitchen"), value.Record("lights", 3))
	assert.Equal(t, texts(m.Keys()), []string{`"kitchen"`, `"bedroom"`})
	assert.Equal(t, texts(m.Values()), []string{`{"lights":3}`, `{"lights":1}`})

	assert.Equal(t, m.Delete(value.Text("attic")), false)
	assert.Equal(t, m.Delete(value.Text("bedroom")), true)

	visited := []string{}
	m.ForEach(func(key value.Value, v value.Value) {
		visited = append(visited, value.String(key))
	})
	assert.Equal(t, visited, []string{`"kitchen"`})

	m.Clear()
	assert.Equal(t, m.Size(), 0)

	bodies := []string{}
	for _, envelope := range transport.envelopes() {
		if envelope.Kind == warp.CommandMessageKind {
			bodies = append(bodies, value.String(envelope.Body))
		}
	}
	assert.Equal(t, bodies, []string{
		`{"@update":{"key":"bedroom"},"value":{"lights":1}}`,
		`{"@update":{"key":"kitchen"},"value":{"lights":3}}`,
		`{"@remove":{"key":"bedroom"}}`,
		`{"@clear":null}`,
	})
}

func TestMapDownlinkValueDeltas(t *testing.T) {
	client := newTestClient(nil)
	_, transport := client.connect(t)

	m := client.SyncMapAt(testHostUri, "/house", "rooms", &DownlinkOptions{
		PrimaryKey: RequireKeyPath("name"),
		SortBy:     RequireSortByPath("name"),
		DeltaMode:  ValueDeltas,
	})
	m.Set(value.Text("kitchen"), value.Record("name", "kitchen"))
	m.Set(value.Text("attic"), value.Record("name", "attic"))
	assert.Equal(t, texts(m.Keys()), []string{`"attic"`, `"kitchen"`})
	m.Delete(value.Text("kitchen"))

	bodies := []string{}
	for _, envelope := range transport.envelopes() {
		if envelope.Kind == warp.CommandMessageKind {
			bodies = append(bodies, value.String(envelope.Body))
		}
	}
	assert.Equal(t, bodies, []string{
		`{"name":"kitchen"}`,
		`{"name":"attic"}`,
		`{"@remove":null,"value":{"name":"kitchen"}}`,
	})
}

func TestKeyPathErrors(t *testing.T) {
	_, err := ParseKeyPath("")
	assert.NotEqual(t, err, nil)
	_, err = ParseSortByPath("a..b")
	assert.NotEqual(t, err, nil)
}
