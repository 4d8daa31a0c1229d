package sale

import (
	"context"
	"time"

	"github.com/roboyicecream/kioskpay/internal/domain/notification"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/coin"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/paylink"
)

// PulseCounter is the coin total fed by the hardware line.
type PulseCounter interface {
	Reset()
	Snapshot() coin.Snapshot
}

// Oracle answers whether a new electronic payment has arrived.
type Oracle interface {
	// PendingCount returns how many payment notifications exist right now.
	PendingCount(ctx context.Context) (int, error)
	// LatestPayment parses the most recent payment notification.
	LatestPayment(ctx context.Context) (notification.Record, error)
}

// Presenter drives the customer display. Calls never fail; delivery
// problems are the presenter's to log.
type Presenter interface {
	ShowOrder(ctx context.Context, view domainSale.OrderView)
	ShowIdle(ctx context.Context)
}

// PaymentLinker renders the electronic payment link for a price.
type PaymentLinker interface {
	Link(priceCents int64) (paylink.Link, error)
}

// Clock abstracts time so polling loops can run on virtual time in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Timing holds the acquisition deadlines.
type Timing struct {
	CoinWait       time.Duration
	ElectronicWait time.Duration
	ExtraWait      time.Duration
	CheckInterval  time.Duration
}

// DefaultTiming mirrors the kiosk's production deadlines.
func DefaultTiming() Timing {
	return Timing{
		CoinWait:       60 * time.Second,
		ElectronicWait: 120 * time.Second,
		ExtraWait:      10 * time.Second,
		CheckInterval:  1 * time.Second,
	}
}
