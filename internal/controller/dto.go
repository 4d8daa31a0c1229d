package controller

import (
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
)

// --- Request DTOs ---

// CreateSaleRequest is the order the kiosk controller asks us to collect
// payment for. Price is in cents; payment_option 0 is coins, 1 is the
// electronic link. Unknown options are accepted and settle with a
// diagnostic.
type CreateSaleRequest struct {
	Flavors       []string `json:"flavors" validate:"required,min=1,dive,required"`
	Scoops        int      `json:"scoops" validate:"gte=1"`
	Price         *int64   `json:"price" validate:"required,gte=0"`
	PaymentOption *int     `json:"payment_option" validate:"required"`
}

func (r CreateSaleRequest) toDomain() domainSale.Request {
	return domainSale.NewRequest(r.Flavors, r.Scoops, *r.Price, domainSale.PaymentMethod(*r.PaymentOption))
}

// InjectPulsesRequest feeds simulated coin pulses.
type InjectPulsesRequest struct {
	Count int `json:"count" validate:"gte=1,lte=100"`
}

// --- Response DTOs ---

// SaleResponse is the settlement of a sale.
type SaleResponse struct {
	SaleID        string `json:"sale_id"`
	PaymentOption int    `json:"payment_option"`
	Amount        int64  `json:"amount"`
	PayerName     string `json:"payer_name"`
	Message       string `json:"message"`
	DurationMS    int64  `json:"duration_ms"`
}

func FromOutcome(o domainSale.Outcome) SaleResponse {
	return SaleResponse{
		SaleID:        o.SaleID.String(),
		PaymentOption: int(o.Method),
		Amount:        o.AmountCents,
		PayerName:     o.PayerName,
		Message:       o.Message,
		DurationMS:    o.Duration.Milliseconds(),
	}
}

type PulsesResponse struct {
	Injected int `json:"injected"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
