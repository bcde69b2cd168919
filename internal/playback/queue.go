// Package playback serializes decoded clips per destination device.
//
// Each destination owns one Queue and one Worker. The dispatcher is the only
// producer and the worker is the only consumer; clips on one queue render
// strictly one after another in enqueue order.
package playback

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned when enqueuing after the shutdown item.
var ErrQueueClosed = errors.New("playback queue is shut down")

// Request is a decoded clip. Samples are interleaved and never modified after
// construction, so one Request may be rendered by several workers at once.
type Request struct {
	ID         string
	Name       string
	Path       string
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the clip.
func (r *Request) Frames() int {
	if r.Channels <= 0 {
		return 0
	}
	return len(r.Samples) / r.Channels
}

// Duration returns the playback length of the clip.
func (r *Request) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(r.Frames()) * time.Second / time.Duration(r.SampleRate)
}

// Item is a queue entry: either a clip to play or the shutdown marker.
type Item struct {
	request  *Request
	shutdown bool
}

// Play wraps a request in an Item.
func Play(r *Request) Item {
	return Item{request: r}
}

// Shutdown is the item that ends a worker.
func Shutdown() Item {
	return Item{shutdown: true}
}

// IsShutdown reports whether the item is the shutdown marker.
func (i Item) IsShutdown() bool {
	return i.shutdown
}

// Request returns the clip carried by the item, nil for the shutdown marker.
func (i Item) Request() *Request {
	return i.request
}

// Queue is an unbounded FIFO of items. Enqueue never blocks; Dequeue blocks
// until an item is available.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Item
	sealed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item to the tail. After a shutdown item has been accepted
// the queue is sealed and further items are rejected with ErrQueueClosed.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed {
		return ErrQueueClosed
	}
	if item.shutdown {
		q.sealed = true
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// Dequeue removes and returns the head, waiting for one if the queue is empty.
func (q *Queue) Dequeue() Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}

	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return item
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Sealed reports whether the shutdown item has been enqueued.
func (q *Queue) Sealed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sealed
}
