package sale

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is the payment channel chosen by the customer.
type PaymentMethod int

const (
	MethodCoin       PaymentMethod = 0
	MethodElectronic PaymentMethod = 1
)

func (m PaymentMethod) String() string {
	switch m {
	case MethodCoin:
		return "coin"
	case MethodElectronic:
		return "electronic"
	default:
		return "unknown"
	}
}

// Known reports whether m is one of the supported channels.
func (m PaymentMethod) Known() bool {
	return m == MethodCoin || m == MethodElectronic
}

// Request is one sale handed to the engine. It is not modified while the
// engine runs.
type Request struct {
	ID         uuid.UUID
	Flavors    []string
	Scoops     int
	PriceCents int64
	Method     PaymentMethod
}

// NewRequest creates a sale request with a fresh ID.
func NewRequest(flavors []string, scoops int, priceCents int64, method PaymentMethod) Request {
	return Request{
		ID:         uuid.New(),
		Flavors:    append([]string(nil), flavors...),
		Scoops:     scoops,
		PriceCents: priceCents,
		Method:     method,
	}
}

// Outcome is the terminal result of one sale. Message is empty on a clean
// settlement.
type Outcome struct {
	SaleID      uuid.UUID
	Method      PaymentMethod
	AmountCents int64
	PayerName   string
	Message     string
	Duration    time.Duration
}

// Clean reports whether the sale settled without a diagnostic.
func (o Outcome) Clean() bool {
	return o.Message == ""
}

// FormatCents renders minor units as "<euros>.<cents>".
func FormatCents(cents int64) string {
	whole := cents / 100
	frac := cents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// OrderView is what the customer display shows while a sale is pending.
type OrderView struct {
	Flavors    []string
	Scoops     int
	PriceCents int64
	Method     PaymentMethod
	Timer      time.Duration
	PaidCents  int64
	EncodedQR  string
	PaymentURL string
}

// NewOrderView derives the base display view for a request.
func NewOrderView(req Request, timer time.Duration) OrderView {
	return OrderView{
		Flavors:    req.Flavors,
		Scoops:     req.Scoops,
		PriceCents: req.PriceCents,
		Method:     req.Method,
		Timer:      timer,
	}
}
