package controller

import (
	"context"
	"net/http"

	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
)

// SaleSettler runs a sale to completion.
type SaleSettler interface {
	Settle(ctx context.Context, req domainSale.Request) (domainSale.Outcome, error)
}

// SaleController exposes the payment engine to the kiosk controller.
type SaleController struct {
	engine SaleSettler
}

func NewSaleController(engine SaleSettler) *SaleController {
	return &SaleController{engine: engine}
}

// Create handles POST /api/v1/sales. The response is written once the sale
// has settled, which can take the whole payment window.
func (h *SaleController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.engine.Settle(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOutcome(out))
}
