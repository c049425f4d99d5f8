package cart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/goleak"

	"storefront-cart/internal/adapter"
	"storefront-cart/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDelay = time.Second

// fakeBackend is an in-memory cart API that records every call.
type fakeBackend struct {
	mu       sync.Mutex
	items    []model.LineItem
	products map[int]model.Product
	calls    []string
	nextID   int

	listErr   error
	updateErr error
	removeErr error
	addErr    error

	// Called before a mutation is applied, outside the lock
	beforeUpdate func()
	beforeAdd    func()

	// Called after a mutation is applied; a non-nil error is returned to
	// the caller although the server already holds the change
	afterUpdate func(ctx context.Context) error
	afterRemove func(ctx context.Context) error
	afterAdd    func(ctx context.Context) error
}

// untilDone blocks until ctx ends, like a response that never arrives.
func untilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeBackend) after(ctx context.Context, hook func(context.Context) error, err error) error {
	if err != nil || hook == nil {
		return err
	}
	return hook(ctx)
}

func newFakeBackend(items ...model.LineItem) *fakeBackend {
	return &fakeBackend{
		items:    items,
		products: make(map[int]model.Product),
		nextID:   100,
	}
}

func line(itemID, productID int, title string, price int64, qty int) model.LineItem {
	return model.LineItem{
		Key:       model.ItemKey(productID, title),
		ID:        itemID,
		ProductID: productID,
		Title:     title,
		UnitPrice: price,
		Quantity:  qty,
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeBackend) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeBackend) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeBackend) store() *adapter.Mock {
	return &adapter.Mock{
		ListItemsFunc: func(ctx context.Context) ([]model.LineItem, error) {
			if err := ctx.Err(); err != nil {
				f.record("list-expired")
				return nil, err
			}
			f.record("list")
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.listErr != nil {
				return nil, f.listErr
			}
			return slices.Clone(f.items), nil
		},
		UpdateQuantityFunc: func(ctx context.Context, itemID, quantity int) error {
			f.record(fmt.Sprintf("patch %d %d", itemID, quantity))
			if f.beforeUpdate != nil {
				f.beforeUpdate()
			}
			return f.after(ctx, f.afterUpdate, f.applyUpdate(itemID, quantity))
		},
		RemoveItemFunc: func(ctx context.Context, itemID int) error {
			f.record(fmt.Sprintf("delete %d", itemID))
			return f.after(ctx, f.afterRemove, f.applyRemove(itemID))
		},
		AddItemFunc: func(ctx context.Context, productID, quantity int) error {
			f.record(fmt.Sprintf("post %d %d", productID, quantity))
			if f.beforeAdd != nil {
				f.beforeAdd()
			}
			return f.after(ctx, f.afterAdd, f.applyAdd(productID, quantity))
		},
	}
}

func (f *fakeBackend) applyUpdate(itemID, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.items {
		if f.items[i].ID == itemID {
			f.items[i].Quantity = quantity
			return nil
		}
	}
	return model.NewNotFoundError("line item")
}

func (f *fakeBackend) applyRemove(itemID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	for i := range f.items {
		if f.items[i].ID == itemID {
			f.items = slices.Delete(f.items, i, i+1)
			return nil
		}
	}
	return model.NewNotFoundError("line item")
}

func (f *fakeBackend) applyAdd(productID, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	for i := range f.items {
		if f.items[i].ProductID == productID {
			f.items[i].Quantity += quantity
			return nil
		}
	}
	p, ok := f.products[productID]
	if !ok {
		return model.NewValidationError("productId", "unknown product")
	}
	f.nextID++
	li := model.NewLineItem(p, quantity)
	li.ID = f.nextID
	f.items = append(f.items, li)
	return nil
}

func (f *fakeBackend) catalog() *adapter.MockCatalog {
	return &adapter.MockCatalog{
		ProductFunc: func(ctx context.Context, productID int) (*model.Product, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			p, ok := f.products[productID]
			if !ok {
				return nil, model.NewNotFoundError("product")
			}
			return &p, nil
		},
	}
}

// fakeMirror is an in-memory Mirror.
type fakeMirror struct {
	mu    sync.Mutex
	snaps map[string]model.CartSnapshot
	saves int
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{snaps: make(map[string]model.CartSnapshot)}
}

func (m *fakeMirror) Save(ctx context.Context, snap model.CartSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Owner] = snap
	m.saves++
	return nil
}

func (m *fakeMirror) Load(ctx context.Context, owner string) (*model.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[owner]
	if !ok {
		return nil, model.NewNotFoundError("cart snapshot")
	}
	return &snap, nil
}

func (m *fakeMirror) get(owner string) (model.CartSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[owner]
	return snap, ok
}

func testLogger() *slog.Logger {
	if os.Getenv("CART_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, f *fakeBackend, opts ...func(*Config)) (*Controller, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	cfg := Config{
		Store:         f.store(),
		Clock:         clk,
		DebounceDelay: testDelay,
		Logger:        testLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, clk
}

// idle reports whether no write is armed or in flight.
func (c *Controller) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) == 0 && len(c.updating) == 0
}

func (c *Controller) hasOverlay(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.overlay[key]
	return ok
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// eventLog records events delivered to a listener.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *eventLog) notices() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Message
	for _, ev := range l.events {
		if ev.Kind == EventNotice {
			out = append(out, *ev.Notice)
		}
	}
	return out
}

func (l *eventLog) lastCorrections() *Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Corrections != nil {
			ev := l.events[i]
			return &ev
		}
	}
	return nil
}
