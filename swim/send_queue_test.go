package swim

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

func TestSendQueue(t *testing.T) {
	queue := newSendQueue()

	size, byteSize := queue.QueueSize()
	assert.Equal(t, 0, size)
	assert.Equal(t, ByteCount(0), byteSize)
	assert.Equal(t, queue.RemoveFirst(), nil)

	n := 100

	byteCount := ByteCount(0)
	for i := 0; i < n; i += 1 {
		envelope := warp.NewCommandMessage("/house", "light", value.Int(i))
		text, err := warp.Encode(envelope)
		assert.Equal(t, err, nil)
		queue.Add(envelope, text)
		byteCount += ByteCount(len(text))
	}

	size, byteSize = queue.QueueSize()
	assert.Equal(t, n, size)
	assert.Equal(t, byteCount, byteSize)

	for i := 0; i < n; i += 1 {
		first := queue.RemoveFirst()
		assert.Equal(t, uint64(i), first.sequenceNumber)
		index, _ := value.IntOf(first.envelope.Body)
		assert.Equal(t, i, index)
		// the buffered text is the encoded envelope
		envelope, err := warp.Decode(first.text)
		assert.Equal(t, err, nil)
		assert.Equal(t, value.Equal(envelope.Body, first.envelope.Body), true)
	}
	size, byteSize = queue.QueueSize()
	assert.Equal(t, 0, size)
	assert.Equal(t, ByteCount(0), byteSize)
}

func TestSendQueueRemoveAll(t *testing.T) {
	queue := newSendQueue()
	for i := 0; i < 10; i += 1 {
		queue.Add(warp.NewCommandMessage("/house", "light", value.Int(i)), []byte{'x'})
	}
	items := queue.RemoveAll()
	assert.Equal(t, len(items), 10)
	for i, item := range items {
		index, _ := value.IntOf(item.envelope.Body)
		assert.Equal(t, i, index)
	}
	size, byteSize := queue.QueueSize()
	assert.Equal(t, size, 0)
	assert.Equal(t, byteSize, ByteCount(0))
}
