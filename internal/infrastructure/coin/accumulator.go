package coin

import (
	"sync"
	"time"
)

// DefaultPulseValue is the amount one counter pulse is worth, in cents.
const DefaultPulseValue int64 = 10

// Snapshot is a consistent read of the accumulator.
type Snapshot struct {
	TotalCents int64
	LastPulse  time.Time
}

// Accumulator keeps the running coin total for the current sale. OnPulse is
// called from the hardware event goroutine while the engine reads Snapshot.
type Accumulator struct {
	mu         sync.Mutex
	total      int64
	lastPulse  time.Time
	pulseValue int64
	now        func() time.Time
	onPulse    func(total int64)
}

type AccumulatorOption func(*Accumulator)

// WithPulseValue overrides the per-pulse denomination.
func WithPulseValue(cents int64) AccumulatorOption {
	return func(a *Accumulator) { a.pulseValue = cents }
}

// WithClock sets the time source used to stamp pulses.
func WithClock(now func() time.Time) AccumulatorOption {
	return func(a *Accumulator) { a.now = now }
}

// WithPulseHook registers a callback run after every pulse, outside the lock.
func WithPulseHook(fn func(total int64)) AccumulatorOption {
	return func(a *Accumulator) { a.onPulse = fn }
}

func NewAccumulator(opts ...AccumulatorOption) *Accumulator {
	a := &Accumulator{
		pulseValue: DefaultPulseValue,
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Reset zeroes the total. Pulses that arrived outside a sale are dropped here.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.total = 0
	a.mu.Unlock()
}

// OnPulse records one coin pulse. It never blocks on anything but the
// accumulator's own lock.
func (a *Accumulator) OnPulse() {
	now := a.now()
	a.mu.Lock()
	a.total += a.pulseValue
	a.lastPulse = now
	total := a.total
	a.mu.Unlock()

	if a.onPulse != nil {
		a.onPulse(total)
	}
}

func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{TotalCents: a.total, LastPulse: a.lastPulse}
}
