package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidQuantity is returned for quantities below one or above the per-line cap.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrMissingVariant is returned when a product with variants is added without one.
	ErrMissingVariant = errors.New("variant required")
	// ErrLineItemNotFound is returned when a line reference does not exist in the cart.
	ErrLineItemNotFound = errors.New("line item not found")
	// ErrCartFull is returned when adding a new line would exceed the line cap.
	ErrCartFull = errors.New("cart line limit reached")
	// ErrEmpty is returned when an operation needs at least one line.
	ErrEmpty = errors.New("cart is empty")
	// ErrForbidden is returned when the caller does not own the cart.
	ErrForbidden = errors.New("cart belongs to another user")
)

// Limits bounds the size of a cart. Zero values disable a bound.
type Limits struct {
	MaxLines      int
	MaxQtyPerLine int
}

// LineItem is one product (and optional variant) in a cart. UnitPrice is the
// price captured when the line was first added.
type LineItem struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"productId"`
	VariantID  *uuid.UUID `json:"variantId,omitempty"`
	Name       string     `json:"name"`
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	UnitPrice  int64      `json:"unitPrice"`
	Quantity   int        `json:"quantity"`
	AddedAt    time.Time  `json:"addedAt"`
}

// LineTotal is derived on every read.
func (l LineItem) LineTotal() int64 {
	return pricing.Item{Qty: l.Quantity, UnitPrice: l.UnitPrice}.LineTotal()
}

func (l LineItem) matches(productID uuid.UUID, variantID *uuid.UUID) bool {
	if l.ProductID != productID {
		return false
	}
	if l.VariantID == nil || variantID == nil {
		return l.VariantID == nil && variantID == nil
	}
	return *l.VariantID == *variantID
}

// NewItem carries the inputs of AddItem.
type NewItem struct {
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	Quantity        int
	UnitPrice       int64
	Name            string
	CategoryID      *uuid.UUID
	RequiresVariant bool
}

// Cart is the session state of one shopper. It is mutated by a single actor
// at a time; Service enforces that with a per-cart lock.
type Cart struct {
	ID             uuid.UUID      `json:"id"`
	OwnerID        string         `json:"ownerId,omitempty"`
	Items          []LineItem     `json:"items"`
	Voucher        *voucher.Rule  `json:"voucher,omitempty"`
	ShippingMethod pricing.Method `json:"shippingMethod"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// New returns an empty cart using the default shipping method.
func New(id uuid.UUID, now time.Time) *Cart {
	return &Cart{
		ID:             id,
		Items:          []LineItem{},
		ShippingMethod: pricing.DefaultMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so a failed mutation can be discarded.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = make([]LineItem, len(c.Items))
	copy(out.Items, c.Items)
	if c.Voucher != nil {
		v := *c.Voucher
		out.Voucher = &v
	}
	return &out
}

func (c *Cart) indexOf(lineID uuid.UUID) int {
	for i, it := range c.Items {
		if it.ID == lineID {
			return i
		}
	}
	return -1
}

// Line returns the line with the given id.
func (c *Cart) Line(lineID uuid.UUID) (LineItem, bool) {
	if i := c.indexOf(lineID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

// AddItem appends a line or merges the quantity into the existing line for
// the same product and variant. A merged line keeps its original unit price.
func (c *Cart) AddItem(in NewItem, limits Limits, now time.Time) (LineItem, error) {
	if in.Quantity < 1 {
		return LineItem{}, fmt.Errorf("quantity %d must be at least 1: %w", in.Quantity, ErrInvalidQuantity)
	}
	if in.RequiresVariant && in.VariantID == nil {
		return LineItem{}, ErrMissingVariant
	}
	if in.UnitPrice < 0 {
		return LineItem{}, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}
	for i, it := range c.Items {
		if !it.matches(in.ProductID, in.VariantID) {
			continue
		}
		merged := it.Quantity + in.Quantity
		if limits.MaxQtyPerLine > 0 && merged > limits.MaxQtyPerLine {
			return LineItem{}, fmt.Errorf("quantity %d exceeds %d per line: %w", merged, limits.MaxQtyPerLine, ErrInvalidQuantity)
		}
		c.Items[i].Quantity = merged
		c.UpdatedAt = now
		return c.Items[i], nil
	}
	if limits.MaxQtyPerLine > 0 && in.Quantity > limits.MaxQtyPerLine {
		return LineItem{}, fmt.Errorf("quantity %d exceeds %d per line: %w", in.Quantity, limits.MaxQtyPerLine, ErrInvalidQuantity)
	}
	if limits.MaxLines > 0 && len(c.Items) >= limits.MaxLines {
		return LineItem{}, ErrCartFull
	}
	line := LineItem{
		ID:         uuid.New(),
		ProductID:  in.ProductID,
		VariantID:  in.VariantID,
		Name:       in.Name,
		CategoryID: in.CategoryID,
		UnitPrice:  in.UnitPrice,
		Quantity:   in.Quantity,
		AddedAt:    now,
	}
	c.Items = append(c.Items, line)
	c.UpdatedAt = now
	return line, nil
}

// UpdateQuantity sets the quantity of an existing line. Zero is rejected, not
// treated as removal.
func (c *Cart) UpdateQuantity(lineID uuid.UUID, qty int, limits Limits, now time.Time) (LineItem, error) {
	if qty < 1 {
		return LineItem{}, fmt.Errorf("quantity %d must be at least 1: %w", qty, ErrInvalidQuantity)
	}
	if limits.MaxQtyPerLine > 0 && qty > limits.MaxQtyPerLine {
		return LineItem{}, fmt.Errorf("quantity %d exceeds %d per line: %w", qty, limits.MaxQtyPerLine, ErrInvalidQuantity)
	}
	i := c.indexOf(lineID)
	if i < 0 {
		return LineItem{}, ErrLineItemNotFound
	}
	c.Items[i].Quantity = qty
	c.UpdatedAt = now
	return c.Items[i], nil
}

// RemoveItem deletes a line, preserving the order of the others.
func (c *Cart) RemoveItem(lineID uuid.UUID, now time.Time) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineItemNotFound
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = now
	return nil
}

// ApplyVoucher evaluates rule against the current lines and stores it only
// when it yields a valid discount. A rejected rule leaves the previous voucher
// in place.
func (c *Cart) ApplyVoucher(rule voucher.Rule, now time.Time) (voucher.Result, error) {
	res, err := voucher.Evaluate(rule, c.voucherItems(), now)
	if err != nil {
		return voucher.Result{}, err
	}
	r := rule
	c.Voucher = &r
	c.UpdatedAt = now
	return res, nil
}

// EvaluateVoucher re-evaluates the applied voucher against the current lines.
// A cart without a voucher yields a zero Result and no error.
func (c *Cart) EvaluateVoucher(now time.Time) (voucher.Result, error) {
	if c.Voucher == nil {
		return voucher.Result{}, nil
	}
	return voucher.Evaluate(*c.Voucher, c.voucherItems(), now)
}

// RemoveVoucher clears the applied voucher. It is a no-op without one.
func (c *Cart) RemoveVoucher(now time.Time) {
	if c.Voucher == nil {
		return
	}
	c.Voucher = nil
	c.UpdatedAt = now
}

// SetShippingMethod switches the flat-rate method.
func (c *Cart) SetShippingMethod(m pricing.Method, fees pricing.FeeTable, now time.Time) error {
	if _, err := fees.Fee(m); err != nil {
		return err
	}
	c.ShippingMethod = m
	c.UpdatedAt = now
	return nil
}

// TotalQuantity sums the quantities of all lines.
func (c *Cart) TotalQuantity() int {
	var n int
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) voucherItems() []voucher.Item {
	out := make([]voucher.Item, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, voucher.Item{
			ProductID:  it.ProductID,
			CategoryID: it.CategoryID,
			Subtotal:   it.LineTotal(),
		})
	}
	return out
}

func (c *Cart) pricingItems() []pricing.Item {
	out := make([]pricing.Item, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}
