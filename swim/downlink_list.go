package swim

import (
	"slices"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

// list deltas
//     {"@update": {"index": i}, "value": v}  overwrite at i
//     {"@insert": {"index": i}, "value": v}  insert at i
//     {"@move": {"from": i, "to": j}, "value": v}
//     {"@remove": {"index": i}, "value": v}  also @delete
//     {"@clear": null}
//     v                                      append
const (
	updateTag = "@update"
	insertTag = "@insert"
	moveTag   = "@move"
	removeTag = "@remove"
	deleteTag = "@delete"
	clearTag  = "@clear"
)

type listState struct {
	items []value.Value
}

func newListState() *listState {
	return &listState{
		items: []value.Value{},
	}
}

func indexOf(head value.Value, key string) (int, bool) {
	index, ok := value.IntOf(value.Get(head, key))
	if !ok || index < 0 {
		return 0, false
	}
	return index, true
}

// onEventMessage merges a remote delta. Inserts, moves, and removes are guarded by structural
// equality so that a delta echoed back for a local mutation is not applied twice, and a remove
// that refers to a stale slot is ignored.
func (self *listState) onEventMessage(body value.Value) {
	head := value.Head(body)
	switch value.Tag(body) {
	case updateTag:
		if index, ok := indexOf(head, "index"); ok {
			self.remoteUpdate(index, value.Tail(body))
		}
	case insertTag:
		if index, ok := indexOf(head, "index"); ok {
			self.remoteInsert(index, value.Tail(body))
		}
	case moveTag:
		from, fromOk := indexOf(head, "from")
		to, toOk := indexOf(head, "to")
		if fromOk && toOk {
			self.remoteMove(from, to, value.Tail(body))
		}
	case removeTag, deleteTag:
		if index, ok := indexOf(head, "index"); ok {
			self.remoteRemove(index, value.Tail(body))
		}
	case clearTag:
		if value.Size(body) == 1 {
			self.remoteClear()
		} else {
			self.remoteAppend(body)
		}
	default:
		self.remoteAppend(body)
	}
}

func (self *listState) remoteAppend(v value.Value) {
	self.items = append(self.items, value.Normalize(v))
}

func (self *listState) remoteUpdate(index int, v value.Value) {
	switch {
	case index < len(self.items):
		self.items[index] = value.Normalize(v)
	case index == len(self.items):
		self.items = append(self.items, value.Normalize(v))
	}
}

func (self *listState) remoteInsert(index int, v value.Value) {
	if index < len(self.items) && value.Equal(self.items[index], v) {
		return
	}
	self.insert(index, v)
}

func (self *listState) remoteMove(from int, to int, v value.Value) {
	if to < len(self.items) && value.Equal(self.items[to], v) {
		return
	}
	if from < len(self.items) {
		self.items = slices.Delete(self.items, from, from+1)
	}
	self.insert(to, v)
}

func (self *listState) remoteRemove(index int, v value.Value) {
	if index < len(self.items) && value.Equal(self.items[index], v) {
		self.items = slices.Delete(self.items, index, index+1)
	}
}

func (self *listState) remoteClear() {
	self.items = []value.Value{}
}

// inserts past the end append
func (self *listState) insert(index int, v value.Value) {
	index = min(index, len(self.items))
	self.items = slices.Insert(self.items, index, value.Normalize(v))
}

// ListDownlink is the list view of a downlink. Local mutations apply immediately and are sent to
// the lane as commands. The lane remains the arbiter of the final state.
type ListDownlink struct {
	*Downlink
}

func (self *ListDownlink) data() *listState {
	return self.Downlink.list
}

func (self *ListDownlink) Len() int {
	return len(self.data().items)
}

// Get returns the item at `index`, or nil if out of range.
func (self *ListDownlink) Get(index int) value.Value {
	items := self.data().items
	if index < 0 || len(items) <= index {
		return nil
	}
	return items[index]
}

func (self *ListDownlink) Values() []value.Value {
	return slices.Clone(self.data().items)
}

func (self *ListDownlink) ForEach(fn func(index int, v value.Value)) {
	for i, item := range slices.Clone(self.data().items) {
		fn(i, item)
	}
}

func (self *ListDownlink) command(body value.Value) {
	message := warp.NewCommandMessage(self.channel.UnresolveUri(self.nodeUri), self.laneUri, body)
	self.onCommandMessage(message)
	self.channel.Push(message)
}

// Set overwrites the item at `index`. An index equal to the length appends.
// Returns false and sends nothing when the index is out of range.
func (self *ListDownlink) Set(index int, v value.Value) bool {
	state := self.data()
	if index < 0 || len(state.items) < index {
		return false
	}
	v = value.Normalize(v)
	if index == len(state.items) {
		state.items = append(state.items, v)
	} else {
		state.items[index] = v
	}
	self.command(value.Tagged(updateTag, value.Record("index", index), v))
	return true
}

// Push appends each value. Returns the new length.
func (self *ListDownlink) Push(values ...value.Value) int {
	state := self.data()
	for _, v := range values {
		v = value.Normalize(v)
		state.items = append(state.items, v)
		self.command(v)
	}
	return len(state.items)
}

func (self *ListDownlink) Pop() (value.Value, bool) {
	state := self.data()
	n := len(state.items)
	if n == 0 {
		return nil, false
	}
	v := state.items[n-1]
	state.items = state.items[:n-1]
	self.command(value.Tagged(removeTag, value.Record("index", n-1), v))
	return v, true
}

// Unshift inserts the values at the front, in order. Returns the new length.
func (self *ListDownlink) Unshift(values ...value.Value) int {
	state := self.data()
	for i := len(values) - 1; 0 <= i; i -= 1 {
		v := value.Normalize(values[i])
		state.items = slices.Insert(state.items, 0, v)
		self.command(value.Tagged(insertTag, value.Record("index", 0), v))
	}
	return len(state.items)
}

func (self *ListDownlink) Shift() (value.Value, bool) {
	state := self.data()
	if len(state.items) == 0 {
		return nil, false
	}
	v := state.items[0]
	state.items = slices.Delete(state.items, 0, 1)
	self.command(value.Tagged(removeTag, value.Record("index", 0), v))
	return v, true
}

// Move moves the item at `from` to `to`. Returns false and sends nothing when `from` is out of
// range.
func (self *ListDownlink) Move(from int, to int) bool {
	state := self.data()
	if from < 0 || len(state.items) <= from || to < 0 {
		return false
	}
	v := state.items[from]
	state.items = slices.Delete(state.items, from, from+1)
	state.insert(to, v)
	self.command(value.Tagged(moveTag, value.Record("from", from, "to", to), v))
	return true
}

// Splice removes `deleteCount` items at `start` then inserts `values` at `start`.
// Each removal and insertion is sent as its own delta. Returns the removed items.
func (self *ListDownlink) Splice(start int, deleteCount int, values ...value.Value) []value.Value {
	state := self.data()
	start = max(0, min(start, len(state.items)))
	removed := []value.Value{}
	for i := 0; i < deleteCount && start < len(state.items); i += 1 {
		v := state.items[start]
		state.items = slices.Delete(state.items, start, start+1)
		removed = append(removed, v)
		self.command(value.Tagged(removeTag, value.Record("index", start), v))
	}
	for i, v := range values {
		index := start + i
		v = value.Normalize(v)
		state.items = slices.Insert(state.items, index, v)
		self.command(value.Tagged(insertTag, value.Record("index", index), v))
	}
	return removed
}

func (self *ListDownlink) Clear() {
	self.data().items = []value.Value{}
	self.command(value.Tagged(clearTag, nil, nil))
}
