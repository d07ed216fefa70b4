package voucher

import (
	"net/http"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

// Handler exposes read-only voucher endpoints.
type Handler struct {
	Svc *Service
}

// Available lists vouchers a shopper can currently apply.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	rules, err := h.Svc.Available(r.Context())
	if err != nil {
		if resilience.IsUnavailable(err) {
			common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "voucher store unavailable", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list vouchers", nil)
		return
	}
	common.Data(w, http.StatusOK, rules)
}
