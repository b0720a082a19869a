package mcp

import (
	"log/slog"
	"sync"

	"github.com/gobwas/glob"
)

// notificationQueueDepthPerSubscriber bounds each subscriber's private
// queue. A slow subscriber drops its own oldest unread notification under
// overflow rather than stalling dispatch for every other subscriber.
const notificationQueueDepthPerSubscriber = 32

// NotificationHandler receives one dispatched notification. Handlers run on
// their subscriber's own goroutine, in delivery order, one at a time.
type NotificationHandler func(msg Message)

type notifySubscriber struct {
	id      uint64
	pattern glob.Glob
	raw     string
	handler NotificationHandler
	queue   chan Message
	done    chan struct{}
	logger  *slog.Logger
}

func (s *notifySubscriber) run() {
	for {
		select {
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			s.handler(msg)
		case <-s.done:
			return
		}
	}
}

// enqueue applies drop-oldest-on-overflow: if the queue is full, the
// oldest pending notification is discarded (and logged) to make room for
// the new one. Delivery order for whatever remains is preserved.
func (s *notifySubscriber) enqueue(msg Message) {
	select {
	case s.queue <- msg:
		return
	default:
	}

	select {
	case <-s.queue:
		s.logger.Warn("dropping oldest queued notification, subscriber falling behind",
			slog.String("pattern", s.raw))
	default:
	}

	select {
	case s.queue <- msg:
	default:
		s.logger.Warn("dropping notification, subscriber queue still full", slog.String("pattern", s.raw))
	}
}

// Dispatcher routes server-initiated notifications to per-method
// subscribers (spec.md §4.6). A subscription pattern is a glob
// (github.com/gobwas/glob), so "notifications/resources/*" matches both
// resources/updated and resources/list_changed-style methods without a
// separate prefix-matching path.
type Dispatcher struct {
	mu     sync.Mutex
	subs   map[uint64]*notifySubscriber
	nextID uint64
	logger *slog.Logger
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{subs: make(map[uint64]*notifySubscriber), logger: logger}
}

// Subscribe registers handler for every notification method matching
// pattern. The returned func unsubscribes; it is safe to call more than
// once.
func (d *Dispatcher) Subscribe(pattern string, handler NotificationHandler) (func(), error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, newError(KindNonRetryable, "subscribe", err)
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	sub := &notifySubscriber{
		id:      id,
		pattern: g,
		raw:     pattern,
		handler: handler,
		queue:   make(chan Message, notificationQueueDepthPerSubscriber),
		done:    make(chan struct{}),
		logger:  d.logger,
	}
	d.subs[id] = sub
	d.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(sub.done)
		})
	}, nil
}

// Dispatch routes msg to every subscriber whose pattern matches msg.Method.
// A notification matching no subscriber is logged and dropped — it is
// never an error.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	matched := make([]*notifySubscriber, 0, len(d.subs))
	for _, sub := range d.subs {
		if sub.pattern.Match(msg.Method) {
			matched = append(matched, sub)
		}
	}
	d.mu.Unlock()

	if len(matched) == 0 {
		d.logger.Debug("no subscriber for notification", slog.String("method", msg.Method))
		return
	}
	for _, sub := range matched {
		sub.enqueue(msg)
	}
}

// Shutdown stops every subscriber goroutine without draining pending
// queues.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	subs := d.subs
	d.subs = make(map[uint64]*notifySubscriber)
	d.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}
