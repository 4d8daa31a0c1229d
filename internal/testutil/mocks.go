package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roboyicecream/kioskpay/internal/domain/notification"
	"github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/coin"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/paylink"
)

// --- Clock ---

type scheduled struct {
	at time.Time
	fn func()
}

// FakeClock is a virtual clock. Sleep advances time instantly and runs any
// callbacks scheduled inside the slept span, at their scheduled instant.
type FakeClock struct {
	mu     sync.Mutex
	start  time.Time
	now    time.Time
	events []scheduled
	sleeps []time.Duration

	SleepFunc func(ctx context.Context, d time.Duration) error
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{start: start, now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// At schedules fn to run when virtual time reaches start+offset.
func (c *FakeClock) At(offset time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, scheduled{at: c.start.Add(offset), fn: fn})
	sort.SliceStable(c.events, func(i, j int) bool { return c.events[i].at.Before(c.events[j].at) })
}

// Every schedules fn at offset, offset+period, ... up to and including until.
func (c *FakeClock) Every(offset, period, until time.Duration, fn func()) {
	for t := offset; t <= until; t += period {
		c.At(t, fn)
	}
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.SleepFunc != nil {
		if err := c.SleepFunc(ctx, d); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if len(c.events) == 0 || c.events[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return nil
		}
		ev := c.events[0]
		c.events = c.events[1:]
		if ev.at.After(c.now) {
			c.now = ev.at
		}
		c.mu.Unlock()

		ev.fn()
	}
}

// Elapsed is the virtual time since the clock was created.
func (c *FakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Sleeps returns every duration passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// --- Oracle ---

// MockOracle is a mock implementation of the payment notification oracle.
type MockOracle struct {
	mu          sync.Mutex
	countCalls  int
	latestCalls int

	PendingCountFunc  func(ctx context.Context, call int) (int, error)
	LatestPaymentFunc func(ctx context.Context) (notification.Record, error)
}

func (m *MockOracle) PendingCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	call := m.countCalls
	m.countCalls++
	m.mu.Unlock()

	if m.PendingCountFunc != nil {
		return m.PendingCountFunc(ctx, call)
	}
	return 0, nil
}

func (m *MockOracle) LatestPayment(ctx context.Context) (notification.Record, error) {
	m.mu.Lock()
	m.latestCalls++
	m.mu.Unlock()

	if m.LatestPaymentFunc != nil {
		return m.LatestPaymentFunc(ctx)
	}
	return notification.Record{}, nil
}

func (m *MockOracle) CountCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countCalls
}

func (m *MockOracle) LatestCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestCalls
}

// --- Presenter ---

// MockPresenter records every display push.
type MockPresenter struct {
	mu     sync.Mutex
	orders []sale.OrderView
	idle   int
	calls  []string
}

func (m *MockPresenter) ShowOrder(ctx context.Context, view sale.OrderView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, view)
	m.calls = append(m.calls, "order")
}

func (m *MockPresenter) ShowIdle(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle++
	m.calls = append(m.calls, "idle")
}

func (m *MockPresenter) Orders() []sale.OrderView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sale.OrderView(nil), m.orders...)
}

func (m *MockPresenter) IdleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle
}

// Calls returns the push sequence, e.g. ["order", "order", "idle"].
func (m *MockPresenter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// --- Linker ---

// MockLinker returns a fixed link unless LinkFunc is set.
type MockLinker struct {
	LinkFunc func(priceCents int64) (paylink.Link, error)
}

func (m *MockLinker) Link(priceCents int64) (paylink.Link, error) {
	if m.LinkFunc != nil {
		return m.LinkFunc(priceCents)
	}
	url, err := paylink.NewLinker("https://pay.example/", 0).URL(priceCents)
	return paylink.Link{URL: url, EncodedQR: "cXI="}, err
}

// --- Pulse counter ---

// PanickingPulses fails Snapshot after the given number of calls, simulating
// a broken counter.
type PanickingPulses struct {
	mu    sync.Mutex
	After int
	Total int64
	calls int
}

func (p *PanickingPulses) Reset() {}

func (p *PanickingPulses) Snapshot() coin.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls > p.After && p.After >= 0 {
		p.After = -1
		panic("coin counter read failed")
	}
	return coin.Snapshot{TotalCents: p.Total}
}
