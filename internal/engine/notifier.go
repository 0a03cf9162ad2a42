package engine

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// Handler receives the complete set of currently known snapshots on every
// publication. Consumers get the full materialized state rather than a diff,
// so they never have to reconcile incremental changes.
type Handler func(snapshots map[string]domain.MarketSnapshot)

// Notifier fans computed snapshots out to registered handlers. Registration
// and delivery may happen from different goroutines; delivery itself is
// synchronous and follows registration order.
type Notifier struct {
	mu       sync.Mutex
	handlers map[string]Handler
	order    []string
	logger   *slog.Logger

	// deliverMu serializes Publish with SubscribeWithReplay so a new
	// handler cannot receive a fresh set before its replayed one. Handlers
	// must not subscribe from inside a delivery.
	deliverMu sync.Mutex
}

// NewNotifier creates an empty Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		handlers: make(map[string]Handler),
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Subscribe registers a handler and returns its token for Unsubscribe.
func (n *Notifier) Subscribe(h Handler) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	token := uuid.NewString()
	n.handlers[token] = h
	n.order = append(n.order, token)
	n.logger.Debug("handler subscribed", slog.Int("total", len(n.handlers)))
	return token
}

// SubscribeWithReplay registers a handler and, if current returns a non-nil
// set, delivers it to the handler before any concurrent publication can reach
// it. current is evaluated after registration and while publication is held
// off, so the replayed set is never older than a set the handler has already
// seen.
func (n *Notifier) SubscribeWithReplay(h Handler, current func() map[string]domain.MarketSnapshot) string {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	token := n.Subscribe(h)
	if set := current(); set != nil {
		h(set)
	}
	return token
}

// Unsubscribe removes the handler registered under token. Unknown or
// already-removed tokens are a no-op.
func (n *Notifier) Unsubscribe(token string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.handlers[token]; !ok {
		return
	}
	delete(n.handlers, token)
	for i, t := range n.order {
		if t == token {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Publish invokes every registered handler with the given snapshot set, in
// registration order. The handler list is copied before iterating so a
// handler that unsubscribes itself (or subscribes another) during delivery
// cannot corrupt the iteration.
func (n *Notifier) Publish(snapshots map[string]domain.MarketSnapshot) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	n.mu.Lock()
	hs := make([]Handler, 0, len(n.order))
	for _, token := range n.order {
		if h, ok := n.handlers[token]; ok {
			hs = append(hs, h)
		}
	}
	n.mu.Unlock()

	for _, h := range hs {
		h(snapshots)
	}
}

// Len returns the number of registered handlers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers)
}
