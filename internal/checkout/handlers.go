package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
)

// Handler exposes POST /checkout.
type Handler struct {
	Svc *Service
}

// Checkout places an order from the caller's cart. The route sits behind
// RequireAuth and the idempotency middleware.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var in Input
	if err := common.DecodeAndValidate(r, &in); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.Svc.PlaceOrder(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case common.WriteAppError(w, err):
	case errors.Is(err, ErrInvalidPaymentMethod):
		common.WriteMapped(w, http.StatusBadRequest, "INVALID_PAYMENT_METHOD", err)
	default:
		status, code := cart.StatusFor(err)
		common.WriteMapped(w, status, code, err)
	}
}
