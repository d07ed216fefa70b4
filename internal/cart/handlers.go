package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/lock"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type addItemRequest struct {
	ProductID string  `json:"productId" validate:"required,uuid"`
	VariantID *string `json:"variantId" validate:"omitempty,uuid"`
	Quantity  int     `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type applyVoucherRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type shippingRequest struct {
	Method string `json:"method" validate:"required"`
}

// Create starts a new cart. Signed-in callers own the cart immediately.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	sum, err := h.Svc.Create(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, sum)
}

// Get returns the cart summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	sum, err := h.Svc.Get(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// AddItem adds or increments a cart line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	productID := uuid.MustParse(payload.ProductID)
	var variantID *uuid.UUID
	if payload.VariantID != nil && strings.TrimSpace(*payload.VariantID) != "" {
		id := uuid.MustParse(*payload.VariantID)
		variantID = &id
	}
	sum, err := h.Svc.AddItem(r.Context(), cartID, productID, variantID, payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// UpdateItem updates the quantity for a cart line item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	var payload updateItemRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sum, err := h.Svc.UpdateQuantity(r.Context(), cartID, lineID, payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// RemoveItem deletes a cart item. Unknown items are ignored.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	sum, err := h.Svc.RemoveItem(r.Context(), cartID, lineID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// ApplyVoucher applies a voucher to the cart.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload applyVoucherRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sum, res, err := h.Svc.ApplyVoucher(r.Context(), cartID, payload.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.DataWithMeta(w, http.StatusOK, sum, map[string]any{"discount": res.Discount, "eligibleAmount": res.Eligible})
}

// RemoveVoucher removes the applied voucher from the cart.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	sum, err := h.Svc.RemoveVoucher(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// SetShipping selects the shipping method.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload shippingRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sum, err := h.Svc.SetShippingMethod(r.Context(), cartID, payload.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// Claim binds an anonymous cart to the authenticated user.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	sum, err := h.Svc.Claim(r.Context(), cartID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

func (h *Handler) cartID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) lineID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	status, code := StatusFor(err)
	common.WriteMapped(w, status, code, err)
}

// StatusFor maps cart, catalog and voucher errors to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "INVALID_QUANTITY"
	case errors.Is(err, ErrMissingVariant):
		return http.StatusUnprocessableEntity, "MISSING_VARIANT"
	case errors.Is(err, ErrCartFull):
		return http.StatusUnprocessableEntity, "CART_FULL"
	case errors.Is(err, ErrEmpty):
		return http.StatusUnprocessableEntity, "CART_EMPTY"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "CART_NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND"
	case errors.Is(err, catalog.ErrOutOfStock):
		return http.StatusConflict, "OUT_OF_STOCK"
	case errors.Is(err, pricing.ErrInvalidShippingMethod):
		return http.StatusBadRequest, "INVALID_SHIPPING_METHOD"
	case errors.Is(err, voucher.ErrVoucherNotFound):
		return http.StatusNotFound, voucher.Reason(err)
	case errors.Is(err, voucher.ErrAlreadyUsed):
		return http.StatusConflict, voucher.Reason(err)
	case isVoucherRejection(err):
		return http.StatusUnprocessableEntity, voucher.Reason(err)
	case errors.Is(err, lock.ErrBusy):
		return http.StatusConflict, "CART_BUSY"
	case resilience.IsUnavailable(err):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
