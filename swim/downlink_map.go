package swim

import (
	"fmt"
	"slices"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

// KeyFunction extracts the primary key of a map entry value. A nil key means the value has no
// key and is ignored.
type KeyFunction func(v value.Value) value.Value

// CompareFunction orders map entry values.
type CompareFunction func(a value.Value, b value.Value) int

func IdentityKey(v value.Value) value.Value {
	return v
}

// ParseKeyPath returns a key function that projects a dotted field path, e.g. `profile.id`.
func ParseKeyPath(path string) (KeyFunction, error) {
	p, err := value.ParsePath(path)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}
	return p.Get, nil
}

func RequireKeyPath(path string) KeyFunction {
	keyFunction, err := ParseKeyPath(path)
	if err != nil {
		panic(err)
	}
	return keyFunction
}

// ParseSortByPath returns a compare function over a dotted field path of each value.
func ParseSortByPath(path string) (CompareFunction, error) {
	p, err := value.ParsePath(path)
	if err != nil {
		return nil, fmt.Errorf("sort by: %w", err)
	}
	return func(a value.Value, b value.Value) int {
		return value.Compare(p.Get(a), p.Get(b))
	}, nil
}

func RequireSortByPath(path string) CompareFunction {
	compareFunction, err := ParseSortByPath(path)
	if err != nil {
		panic(err)
	}
	return compareFunction
}

// MapDeltaMode is the wire form of local map mutations.
type MapDeltaMode int

const (
	// {"@update": {"key": k}, "value": v} and {"@remove": {"key": k}}
	KeyedDeltas MapDeltaMode = iota
	// the value itself, and {"@remove": null, "value": v}. The lane extracts the key.
	// Requires an explicit primary key.
	ValueDeltas
)

type mapEntry struct {
	key   value.Value
	value value.Value
}

// mapState is an ordered sequence of entries with a hash index over string keys.
// The sequence and the index always agree on membership.
type mapState struct {
	entries []*mapEntry
	// string key -> entry
	table map[string]*mapEntry

	primaryKey KeyFunction
	sortBy     CompareFunction
	deltaMode  MapDeltaMode
}

func newMapState(options *DownlinkOptions) *mapState {
	if options.DeltaMode == ValueDeltas && options.PrimaryKey == nil {
		panic(fmt.Errorf("Value deltas require a primary key."))
	}
	primaryKey := options.PrimaryKey
	if primaryKey == nil {
		primaryKey = IdentityKey
	}
	return &mapState{
		entries:    []*mapEntry{},
		table:      map[string]*mapEntry{},
		primaryKey: primaryKey,
		sortBy:     options.SortBy,
		deltaMode:  options.DeltaMode,
	}
}

func (self *mapState) onEventMessage(body value.Value) {
	head := value.Head(body)
	switch tag := value.Tag(body); {
	case tag == updateTag:
		v := value.Normalize(value.Tail(body))
		key := value.Get(head, "key")
		if key == nil {
			key = self.primaryKey(v)
		}
		if key != nil {
			self.set(key, v)
		}
	case tag == removeTag || tag == deleteTag:
		key := value.Get(head, "key")
		if key == nil {
			if tail := value.Tail(body); tail != nil {
				key = self.primaryKey(tail)
			}
		}
		if key != nil {
			self.delete(key)
		}
	case tag == clearTag && value.Size(body) == 1:
		self.clear()
	default:
		if key := self.primaryKey(body); key != nil {
			self.set(key, value.Normalize(body))
		}
	}
}

func (self *mapState) find(key value.Value) (int, *mapEntry) {
	if s, ok := value.TextOf(key); ok {
		entry, ok := self.table[s]
		if !ok {
			return -1, nil
		}
		return slices.Index(self.entries, entry), entry
	}
	for i, entry := range self.entries {
		if value.Equal(key, entry.key) {
			return i, entry
		}
	}
	return -1, nil
}

// set upserts the entry and returns the replaced value, if any
func (self *mapState) set(key value.Value, v value.Value) (value.Value, bool) {
	var oldValue value.Value
	_, entry := self.find(key)
	existed := entry != nil
	if existed {
		oldValue = entry.value
		entry.value = v
	} else {
		entry = &mapEntry{
			key:   key,
			value: v,
		}
		self.entries = append(self.entries, entry)
		if s, ok := value.TextOf(key); ok {
			self.table[s] = entry
		}
	}
	self.sort()
	return oldValue, existed
}

func (self *mapState) delete(key value.Value) (value.Value, bool) {
	i, entry := self.find(key)
	if entry == nil {
		return nil, false
	}
	if s, ok := value.TextOf(entry.key); ok {
		delete(self.table, s)
	}
	self.entries = slices.Delete(self.entries, i, i+1)
	return entry.value, true
}

func (self *mapState) clear() {
	self.entries = []*mapEntry{}
	self.table = map[string]*mapEntry{}
}

func (self *mapState) sort() {
	if self.sortBy != nil {
		slices.SortStableFunc(self.entries, func(a *mapEntry, b *mapEntry) int {
			return self.sortBy(a.value, b.value)
		})
	}
}

// MapDownlink is the map view of a downlink. Entries are ordered by `SortBy` when configured,
// otherwise by insertion.
type MapDownlink struct {
	*Downlink
}

func (self *MapDownlink) data() *mapState {
	return self.Downlink.mapState
}

func (self *MapDownlink) Size() int {
	return len(self.data().entries)
}

func (self *MapDownlink) Has(key value.Value) bool {
	_, entry := self.data().find(key)
	return entry != nil
}

// Get returns the value for `key`, or nil.
func (self *MapDownlink) Get(key value.Value) value.Value {
	_, entry := self.data().find(key)
	if entry == nil {
		return nil
	}
	return entry.value
}

func (self *MapDownlink) Keys() []value.Value {
	entries := self.data().entries
	keys := make([]value.Value, len(entries))
	for i, entry := range entries {
		keys[i] = entry.key
	}
	return keys
}

func (self *MapDownlink) Values() []value.Value {
	entries := self.data().entries
	values := make([]value.Value, len(entries))
	for i, entry := range entries {
		values[i] = entry.value
	}
	return values
}

func (self *MapDownlink) ForEach(fn func(key value.Value, v value.Value)) {
	for _, entry := range slices.Clone(self.data().entries) {
		fn(entry.key, entry.value)
	}
}

func (self *MapDownlink) command(body value.Value) {
	message := warp.NewCommandMessage(self.channel.UnresolveUri(self.nodeUri), self.laneUri, body)
	self.onCommandMessage(message)
	self.channel.Push(message)
}

// Set upserts the entry. A command is sent only when the value changed.
func (self *MapDownlink) Set(key value.Value, v value.Value) {
	state := self.data()
	v = value.Normalize(v)
	oldValue, existed := state.set(key, v)
	if existed && value.Equal(oldValue, v) {
		return
	}
	switch state.deltaMode {
	case ValueDeltas:
		self.command(v)
	default:
		self.command(value.Tagged(updateTag, value.Record("key", key), v))
	}
}

// Delete removes the entry. Returns false and sends nothing if there was no entry.
func (self *MapDownlink) Delete(key value.Value) bool {
	state := self.data()
	oldValue, ok := state.delete(key)
	if !ok {
		return false
	}
	switch state.deltaMode {
	case ValueDeltas:
		self.command(value.Tagged(removeTag, nil, oldValue))
	default:
		self.command(value.Tagged(removeTag, value.Record("key", key), nil))
	}
	return true
}

func (self *MapDownlink) Clear() {
	self.data().clear()
	self.command(value.Tagged(clearTag, nil, nil))
}
