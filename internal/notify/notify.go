// Package notify implements the observer pattern used to publish engine
// events.
//
// A Notifier delivers every published value to each subscriber in
// subscription order. In async mode a single goroutine drains a buffered
// queue, so values are delivered FIFO and never concurrently.
package notify

import (
	"sort"
	"sync"
)

// Observer receives published values.
type Observer[T any] func(v T)

// Subscription represents an active observer subscription.
type Subscription struct {
	id     uint64
	cancel func(id uint64)
	once   sync.Once
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(func() { s.cancel(s.id) })
}

// Notifier manages subscriptions and delivery.
type Notifier[T any] struct {
	mu        sync.RWMutex
	observers map[uint64]Observer[T]
	nextID    uint64

	async  bool
	buffer chan T
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool

	// Serializes synchronous deliveries so order holds across publishers.
	deliverMu sync.Mutex
}

// Option configures a Notifier.
type Option func(*options)

type options struct {
	bufferSize int
}

// WithAsync enables asynchronous FIFO delivery with the given queue size.
func WithAsync(bufferSize int) Option {
	return func(o *options) {
		o.bufferSize = bufferSize
	}
}

// New creates a new Notifier.
func New[T any](opts ...Option) *Notifier[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := &Notifier[T]{
		observers: make(map[uint64]Observer[T]),
		done:      make(chan struct{}),
	}
	if o.bufferSize > 0 {
		n.async = true
		n.buffer = make(chan T, o.bufferSize)
		n.wg.Add(1)
		go n.processAsync()
	}
	return n
}

// Subscribe registers an observer for all published values.
func (n *Notifier[T]) Subscribe(observer Observer[T]) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = observer

	return &Subscription{id: id, cancel: n.unsubscribe}
}

// Len returns the number of active subscriptions.
func (n *Notifier[T]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

// Publish delivers v to every subscriber. In async mode it blocks only
// while the queue is full. Values published after Close are dropped.
func (n *Notifier[T]) Publish(v T) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	n.mu.RUnlock()

	if n.async {
		select {
		case n.buffer <- v:
		case <-n.done:
		}
		return
	}

	n.deliver(v)
}

// Close stops delivery after draining queued values. It is safe to call
// Close multiple times.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier[T]) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

// deliver calls observers in subscription order, outside the lock.
func (n *Notifier[T]) deliver(v T) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	n.mu.RLock()
	ids := make([]uint64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]Observer[T], len(ids))
	for i, id := range ids {
		observers[i] = n.observers[id]
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(v)
	}
}

func (n *Notifier[T]) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case v := <-n.buffer:
			n.deliver(v)
		case <-n.done:
			// Drain remaining buffered values
			for {
				select {
				case v := <-n.buffer:
					n.deliver(v)
				default:
					return
				}
			}
		}
	}
}
