package cache

import (
	"strings"

	"github.com/google/uuid"
)

// KeyProduct returns the cache key for a product or one of its variants.
func KeyProduct(productID uuid.UUID, variantID *uuid.UUID) string {
	if variantID == nil {
		return "catalog:product:" + productID.String()
	}
	return "catalog:product:" + productID.String() + ":" + variantID.String()
}

// KeyVoucher returns the cache key for a voucher code, normalised to upper case.
func KeyVoucher(code string) string {
	return "voucher:code:" + strings.ToUpper(strings.TrimSpace(code))
}

// KeyCart returns the session key holding a cart document.
func KeyCart(cartID uuid.UUID) string {
	return "cart:" + cartID.String()
}

// KeyCartLock returns the lock key serialising mutations of a cart.
func KeyCartLock(cartID uuid.UUID) string {
	return "lock:cart:" + cartID.String()
}
