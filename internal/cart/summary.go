package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// LineView is a line item with its derived total.
type LineView struct {
	LineItem
	LineTotal int64 `json:"lineTotal"`
}

// VoucherView describes the applied voucher as evaluated for a summary.
type VoucherView struct {
	Code     string       `json:"code"`
	Kind     voucher.Kind `json:"kind"`
	Value    string       `json:"value"`
	Discount int64        `json:"discount"`
	Valid    bool         `json:"valid"`
	Reason   string       `json:"reason,omitempty"`
}

// Summary is the priced view of a cart. It is derived, never stored.
type Summary struct {
	CartID         uuid.UUID      `json:"cartId"`
	Items          []LineView     `json:"items"`
	TotalQuantity  int            `json:"totalQuantity"`
	Empty          bool           `json:"empty"`
	Subtotal       int64          `json:"subtotal"`
	Discount       int64          `json:"discount"`
	ShippingMethod pricing.Method `json:"shippingMethod"`
	ShippingFee    int64          `json:"shippingFee"`
	GrandTotal     int64          `json:"grandTotal"`
	Voucher        *VoucherView   `json:"voucher,omitempty"`
	Currency       string         `json:"currency,omitempty"`
}

// Summary prices the cart from scratch. An applied voucher that no longer
// qualifies contributes nothing and is reported with Valid false.
func (c *Cart) Summary(now time.Time, fees pricing.FeeTable) Summary {
	method := c.ShippingMethod
	if method == "" {
		method = pricing.DefaultMethod
	}
	fee, err := fees.Fee(method)
	if err != nil {
		method = pricing.DefaultMethod
		fee, _ = fees.Fee(method)
	}

	var (
		discount int64
		view     *VoucherView
	)
	if c.Voucher != nil {
		view = &VoucherView{
			Code:  c.Voucher.Code,
			Kind:  c.Voucher.Kind,
			Value: c.Voucher.Value.String(),
		}
		res, evalErr := c.EvaluateVoucher(now)
		if evalErr != nil {
			view.Reason = voucher.Reason(evalErr)
		} else {
			discount = res.Discount
			view.Valid = true
		}
	}

	totals := pricing.Compute(c.pricingItems(), discount, fee)
	if view != nil {
		view.Discount = totals.Discount
	}

	lines := make([]LineView, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, LineView{LineItem: it, LineTotal: it.LineTotal()})
	}
	return Summary{
		CartID:         c.ID,
		Items:          lines,
		TotalQuantity:  c.TotalQuantity(),
		Empty:          len(c.Items) == 0,
		Subtotal:       totals.Subtotal,
		Discount:       totals.Discount,
		ShippingMethod: method,
		ShippingFee:    totals.Shipping,
		GrandTotal:     totals.Total,
		Voucher:        view,
	}
}
