package testutil

import (
	"time"

	"github.com/roboyicecream/kioskpay/internal/domain/sale"
)

// Epoch is the virtual start time used by engine tests.
var Epoch = time.Date(2026, 7, 14, 15, 0, 0, 0, time.UTC)

func NewCoinRequest(priceCents int64) sale.Request {
	return sale.NewRequest([]string{"vanilla", "chocolate"}, 2, priceCents, sale.MethodCoin)
}

func NewElectronicRequest(priceCents int64) sale.Request {
	return sale.NewRequest([]string{"strawberry"}, 1, priceCents, sale.MethodElectronic)
}
