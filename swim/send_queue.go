package swim

import (
	"container/heap"

	"github.com/linkwire/swim/warp"
)

// use this type when counting bytes
type ByteCount = int64

type sendItem struct {
	sequenceNumber uint64
	envelope       *warp.Envelope
	// the encoded envelope, sent as is on flush
	text []byte

	// the index of the item in the heap
	heapIndex int
}

// sendQueue holds envelopes pushed while the channel is disconnected.
// Ordered by sequence number, so removal is FIFO in push order.
// Not safe for concurrent use. The owning channel confines it to the dispatcher.
type sendQueue struct {
	orderedItems []*sendItem
	byteCount    ByteCount

	nextSequenceNumber uint64
}

func newSendQueue() *sendQueue {
	sendQueue := &sendQueue{
		orderedItems: []*sendItem{},
	}
	heap.Init(sendQueue)
	return sendQueue
}

func (self *sendQueue) QueueSize() (int, ByteCount) {
	return len(self.orderedItems), self.byteCount
}

func (self *sendQueue) Add(envelope *warp.Envelope, text []byte) *sendItem {
	item := &sendItem{
		sequenceNumber: self.nextSequenceNumber,
		envelope:       envelope,
		text:           text,
	}
	self.nextSequenceNumber += 1
	heap.Push(self, item)
	self.byteCount += ByteCount(len(item.text))
	return item
}

func (self *sendQueue) RemoveFirst() *sendItem {
	if len(self.orderedItems) == 0 {
		return nil
	}
	item := heap.Remove(self, 0).(*sendItem)
	self.byteCount -= ByteCount(len(item.text))
	return item
}

// RemoveAll drains the queue in order.
func (self *sendQueue) RemoveAll() []*sendItem {
	items := make([]*sendItem, 0, len(self.orderedItems))
	for {
		item := self.RemoveFirst()
		if item == nil {
			return items
		}
		items = append(items, item)
	}
}

// heap.Interface

func (self *sendQueue) Push(x any) {
	item := x.(*sendItem)
	item.heapIndex = len(self.orderedItems)
	self.orderedItems = append(self.orderedItems, item)
}

func (self *sendQueue) Pop() any {
	n := len(self.orderedItems)
	i := n - 1
	item := self.orderedItems[i]
	self.orderedItems[i] = nil
	self.orderedItems = self.orderedItems[:n-1]
	return item
}

// sort.Interface

func (self *sendQueue) Len() int {
	return len(self.orderedItems)
}

func (self *sendQueue) Less(i int, j int) bool {
	return self.orderedItems[i].sequenceNumber < self.orderedItems[j].sequenceNumber
}

func (self *sendQueue) Swap(i int, j int) {
	a := self.orderedItems[i]
	b := self.orderedItems[j]
	b.heapIndex = i
	self.orderedItems[i] = b
	a.heapIndex = j
	self.orderedItems[j] = a
}
