package ingestion

import "github.com/cyclicism/crunch/core"

// Queue hands out partition keys, each exactly once. It is a buffered
// channel loaded with every key up front and never refilled, so a pop
// holds no lock across the caller's I/O.
type Queue struct {
	keys chan core.PartitionKey
}

// NewQueue creates a queue holding keys in order.
func NewQueue(keys []core.PartitionKey) *Queue {
	ch := make(chan core.PartitionKey, len(keys))
	for _, k := range keys {
		ch <- k
	}
	close(ch)
	return &Queue{keys: ch}
}

// Pop removes and returns the next key. It returns false once the queue is
// empty and keeps returning false after that.
func (q *Queue) Pop() (core.PartitionKey, bool) {
	k, ok := <-q.keys
	return k, ok
}

// Len is the number of keys not yet popped.
func (q *Queue) Len() int {
	return len(q.keys)
}

// Chunk splits items into consecutive slices of at most size elements.
// The last chunk may be shorter. A size below 1 yields a single chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = len(items)
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
