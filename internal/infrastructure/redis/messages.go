package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
)

var validate = validator.New()

// saleFields carries the same rules as the HTTP sale endpoint.
type saleFields struct {
	Flavors []string `validate:"required,min=1,dive,required"`
	Scoops  int      `validate:"gte=1"`
	Price   int64    `validate:"gte=0"`
}

// DecodeSaleRequest reads a sale request from a stream entry. Flavors are a
// JSON array; the remaining fields are decimal strings. A missing sale_id
// gets a fresh one.
func DecodeSaleRequest(msg redis.XMessage) (domainSale.Request, error) {
	var flavors []string
	if raw := field(msg, "flavors"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &flavors); err != nil {
			return domainSale.Request{}, fmt.Errorf("%w: flavors: %w", domainErrors.ErrInvalidInput, err)
		}
	}

	scoops, err := strconv.Atoi(field(msg, "scoops"))
	if err != nil {
		return domainSale.Request{}, fmt.Errorf("%w: scoops: %w", domainErrors.ErrInvalidInput, err)
	}
	price, err := strconv.ParseInt(field(msg, "price"), 10, 64)
	if err != nil {
		return domainSale.Request{}, fmt.Errorf("%w: price: %w", domainErrors.ErrInvalidInput, err)
	}
	option, err := strconv.Atoi(field(msg, "payment_option"))
	if err != nil {
		return domainSale.Request{}, fmt.Errorf("%w: payment_option: %w", domainErrors.ErrInvalidInput, err)
	}

	if err := validate.Struct(saleFields{Flavors: flavors, Scoops: scoops, Price: price}); err != nil {
		return domainSale.Request{}, fmt.Errorf("%w: %w", domainErrors.ErrInvalidInput, err)
	}

	req := domainSale.NewRequest(flavors, scoops, price, domainSale.PaymentMethod(option))
	if raw := field(msg, "sale_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domainSale.Request{}, fmt.Errorf("%w: sale_id: %w", domainErrors.ErrInvalidInput, err)
		}
		req.ID = id
	}
	return req, nil
}

// SettlementValues is the stream entry published for a finished sale.
func SettlementValues(out domainSale.Outcome, settledAt time.Time) map[string]any {
	return map[string]any{
		"sale_id":        out.SaleID.String(),
		"payment_option": int(out.Method),
		"amount":         out.AmountCents,
		"payer_name":     out.PayerName,
		"message":        out.Message,
		"duration_ms":    out.Duration.Milliseconds(),
		"timestamp":      settledAt.Unix(),
	}
}

// DeadLetterValues is the stream entry recorded for a sale request that
// could not be settled. The original fields are kept as JSON.
func DeadLetterValues(msg redis.XMessage, reason string, at time.Time) (map[string]any, error) {
	payload, err := json.Marshal(msg.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DLQ data: %w", err)
	}
	return map[string]any{
		"message_id": msg.ID,
		"reason":     reason,
		"payload":    string(payload),
		"timestamp":  at.Unix(),
	}, nil
}

func field(msg redis.XMessage, key string) string {
	switch v := msg.Values[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
