// Package cart owns the client-side view of a shopping cart.
//
// Quantity changes are applied to an optimistic overlay immediately and
// written to the remote cart after a quiet period (debounce). Every write,
// removal or add is followed by a full fetch that replaces local state
// wholesale; the remote cart is the only source of truth.
//
// Concurrency: one mutex guards all controller state. Timer callbacks run on
// their own goroutines. Network calls and listener callbacks run outside the
// lock. Lock order is Controller.mu, then the scheduler's mutex.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"storefront-cart/internal/adapter"
	"storefront-cart/internal/debounce"
	"storefront-cart/internal/model"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("cart controller closed")

const (
	DefaultDebounceDelay  = 1200 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
)

// Mirror persists cart snapshots locally. It is never authoritative.
type Mirror interface {
	Save(ctx context.Context, snap model.CartSnapshot) error
	Load(ctx context.Context, owner string) (*model.CartSnapshot, error)
}

// Config holds controller dependencies and tuning.
// Store is required; everything else has a default or is optional.
type Config struct {
	Store          adapter.CartStore
	Catalog        adapter.ProductLookup // Optional; enables optimistic inserts on add
	Mirror         Mirror                // Optional
	Pricing        model.Pricing
	DebounceDelay  time.Duration
	RequestTimeout time.Duration // Bounds timer-driven writes
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Controller coordinates optimistic edits, debounced writes and
// reconciliation for one cart.
type Controller struct {
	store   adapter.CartStore
	catalog adapter.ProductLookup
	mirror  Mirror
	sched   *debounce.Scheduler
	clock   clock.Clock
	logger  *slog.Logger
	pricing model.Pricing
	timeout time.Duration

	mu        sync.Mutex
	state     State
	overlay   map[string]int            // item key → optimistic quantity
	pending   map[string]pendingUpdate  // item key → latest requested write
	updating  map[string]int            // item key → operations in flight
	added     map[string]model.LineItem // optimistic inserts not yet confirmed
	owner     string
	lastUser  string
	listeners []subscription
	nextSubID int
	closed    bool

	inflight sync.WaitGroup
}

type pendingUpdate struct {
	productID int
	quantity  int
}

type subscription struct {
	id int
	fn Listener
}

// New creates a controller. The cart starts empty and owned by the guest
// until Restore, Reconcile or SyncOnUserChange runs.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("cart store is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	delay := cfg.DebounceDelay
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		store:    cfg.Store,
		catalog:  cfg.Catalog,
		mirror:   cfg.Mirror,
		sched:    debounce.New(clk, delay),
		clock:    clk,
		logger:   logger,
		pricing:  cfg.Pricing,
		timeout:  timeout,
		state:    State{Owner: model.GuestOwner, Items: []model.LineItem{}},
		overlay:  make(map[string]int),
		pending:  make(map[string]pendingUpdate),
		updating: make(map[string]int),
		added:    make(map[string]model.LineItem),
		owner:    model.GuestOwner,
	}, nil
}

// Subscribe registers l for events and returns a function that removes it.
// Listeners are called synchronously on the goroutine that caused the event.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.listeners = append(c.listeners, subscription{id: id, fn: l})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(s subscription) bool { return s.id == id })
	}
}

// View returns the cart as it should be displayed right now.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// State returns the last reconciled (authoritative) state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Lookup finds a displayed item by key.
func (c *Controller) Lookup(key string) (ViewItem, bool) {
	view := c.View()
	for _, item := range view.Items {
		if item.Key == key {
			return item, true
		}
	}
	return ViewItem{}, false
}

// Pending reports whether a debounced write is armed for key.
func (c *Controller) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Updating reports whether an operation for key is in flight.
func (c *Controller) Updating(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updating[key] > 0
}

// Close cancels every pending debounced write and waits for in-flight
// operations to finish. Subsequent operations return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dropped := c.sched.CancelAll()
	clear(c.pending)
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Info("dropped pending cart updates on close", slog.Int("count", dropped))
	}
	c.inflight.Wait()
	return nil
}

// beginLocked marks key updating and registers an in-flight operation.
// Must hold c.mu.
func (c *Controller) beginLocked(key string) {
	c.updating[key]++
	c.inflight.Add(1)
}

// finish undoes beginLocked. The optimistic quantity is dropped unless a
// newer change is still waiting or another operation for key is in flight.
func (c *Controller) finish(key string) {
	c.mu.Lock()
	if c.updating[key] <= 1 {
		delete(c.updating, key)
	} else {
		c.updating[key]--
	}
	if _, waiting := c.pending[key]; !waiting && c.updating[key] == 0 {
		delete(c.overlay, key)
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, View: view})
	c.inflight.Done()
}

// viewLocked derives the displayed view. Must hold c.mu.
func (c *Controller) viewLocked() View {
	o := Overlay{
		Quantities: c.overlay,
		Pending:    make(map[string]bool, len(c.pending)),
		Updating:   make(map[string]bool, len(c.updating)),
	}
	for key := range c.pending {
		o.Pending[key] = true
	}
	for key, n := range c.updating {
		if n > 0 {
			o.Updating[key] = true
		}
	}
	o.Added = slices.SortedFunc(maps.Values(c.added), func(a, b model.LineItem) int {
		return strings.Compare(a.Key, b.Key)
	})
	return ViewOf(c.state, o, c.pricing)
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	subs := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// notify emits a transient user-facing message.
func (c *Controller) notify(msg model.Message) {
	msg.IssuedAt = c.clock.Now()
	c.emit(Event{Kind: EventNotice, Notice: &msg})
}
