package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notifier fans table-change events out to live feeds. Backends call
// Touch after every committed write; each registered feed then re-runs
// its query on a fresh goroutine and emits the updated list.
type Notifier struct {
	mu       sync.RWMutex
	watchers map[string]map[uuid.UUID]func()
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{watchers: make(map[string]map[uuid.UUID]func())}
}

// Touch signals that rows in the given logical tables changed.
func (n *Notifier) Touch(tables ...string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, table := range tables {
		for _, refresh := range n.watchers[table] {
			go refresh()
		}
	}
}

func (n *Notifier) register(table string, refresh func()) uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New()
	if n.watchers[table] == nil {
		n.watchers[table] = make(map[uuid.UUID]func())
	}
	n.watchers[table][id] = refresh
	return id
}

func (n *Notifier) unregister(table string, id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.watchers[table], id)
}

// Feed is a live result set over one query. It replays the current
// snapshot on subscribe and emits a full up-to-date list after every
// committed write to the watched table. Updates are conflated: a slow
// consumer only ever sees the latest list. A feed never completes on
// its own; Close cancels it without affecting other feeds or in-flight
// writes, and cancelling the subscribe context closes the feed the
// same way, so an abandoned subscription never stays registered.
type Feed[T any] struct {
	query   func(context.Context) ([]T, error)
	updates chan []T
	log     Logger
	ctx     context.Context
	stop    func()
	quit    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewFeed runs query once for the initial snapshot, then keeps the feed
// current by re-running it whenever table is touched on n.
func NewFeed[T any](ctx context.Context, n *Notifier, table string, log Logger, query func(context.Context) ([]T, error)) (*Feed[T], error) {
	if log == nil {
		log = NopLogger()
	}
	f := &Feed[T]{
		query:   query,
		updates: make(chan []T, 1),
		log:     log,
		ctx:     ctx,
		quit:    make(chan struct{}),
	}

	snapshot, err := query(ctx)
	if err != nil {
		return nil, err
	}
	f.updates <- snapshot

	id := n.register(table, f.refresh)
	f.stop = func() { n.unregister(table, id) }

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				f.Close()
			case <-f.quit:
			}
		}()
	}
	return f, nil
}

// Updates returns the channel the feed emits on. The channel is closed
// when the feed is closed.
func (f *Feed[T]) Updates() <-chan []T {
	return f.updates
}

// Close cancels the subscription and closes the updates channel.
// Closing an already-closed feed is a no-op.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.quit)
	f.stop()
	close(f.updates)
}

func (f *Feed[T]) refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	snapshot, err := f.query(f.ctx)
	if err != nil {
		// Keep the previous emission; the next touch retries.
		f.log.Warn("live query refresh failed", "error", err)
		return
	}

	// Conflate: drop the undelivered previous list, if any.
	select {
	case <-f.updates:
	default:
	}
	f.updates <- snapshot
}
