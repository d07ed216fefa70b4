package voucher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrVoucherNotFound is returned when no voucher matches the submitted code.
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrVoucherInactive is returned when the voucher has been switched off.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrVoucherExpired is returned when the evaluation instant falls outside the validity window.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrMinimumOrderNotMet indicates the eligible subtotal is below the voucher minimum.
	ErrMinimumOrderNotMet = errors.New("voucher minimum order not met")
	// ErrNotApplicable indicates a category-scoped voucher has no matching line in the cart.
	ErrNotApplicable = errors.New("voucher not applicable to cart items")
	// ErrAlreadyUsed indicates the user already redeemed this voucher on a previous order.
	ErrAlreadyUsed = errors.New("voucher already used")
)

// Kind enumerates the discount flavours.
type Kind string

const (
	KindPercentage  Kind = "PERCENTAGE"
	KindFixedAmount Kind = "FIXED_AMOUNT"
)

// ParseKind accepts the canonical kinds case-insensitively.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(value))); k {
	case KindPercentage, KindFixedAmount:
		return k, nil
	default:
		return "", fmt.Errorf("unknown voucher kind %q", value)
	}
}

var hundred = decimal.NewFromInt(100)

// Rule captures the runtime constraints of a voucher.
type Rule struct {
	ID             uuid.UUID       `json:"id"`
	Code           string          `json:"code"`
	Kind           Kind            `json:"kind"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount int64           `json:"minOrderAmount"`
	CategoryID     *uuid.UUID      `json:"applicableCategoryId,omitempty"`
	ValidFrom      *time.Time      `json:"validFrom,omitempty"`
	ValidUntil     *time.Time      `json:"validUntil,omitempty"`
	Active         bool            `json:"active"`
}

// Item represents a line eligible for voucher calculation.
type Item struct {
	ProductID  uuid.UUID
	CategoryID *uuid.UUID
	Subtotal   int64
}

// Result is the outcome of evaluating a rule against cart lines.
type Result struct {
	Eligible int64 `json:"eligibleAmount"`
	Discount int64 `json:"discount"`
}

// NormalizeCode returns the canonical lookup form of a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the rule is switched on and now lies inside its window.
func (r Rule) Validate(now time.Time) error {
	if !r.Active {
		return ErrVoucherInactive
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return fmt.Errorf("not valid before %s: %w", r.ValidFrom.Format(time.RFC3339), ErrVoucherExpired)
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrVoucherExpired
	}
	return nil
}

// Scoped reports whether the rule only discounts a single category.
func (r Rule) Scoped() bool {
	return r.CategoryID != nil && *r.CategoryID != uuid.Nil
}

// EligibleSubtotal calculates the portion of the cart total that is affected by the voucher rule.
func EligibleSubtotal(items []Item, r Rule) int64 {
	var total int64
	for _, it := range items {
		if it.Subtotal <= 0 {
			continue
		}
		if !r.Scoped() || (it.CategoryID != nil && *it.CategoryID == *r.CategoryID) {
			total += it.Subtotal
		}
	}
	return total
}

// Compute determines the discount amount based on the rule and eligible subtotal.
// Percentages are floored to whole minor units; the result never exceeds eligible.
func Compute(eligible int64, r Rule) int64 {
	if eligible <= 0 || !r.Value.IsPositive() {
		return 0
	}
	var discount int64
	switch r.Kind {
	case KindPercentage:
		discount = decimal.NewFromInt(eligible).Mul(r.Value).Div(hundred).Floor().IntPart()
	case KindFixedAmount:
		discount = r.Value.Floor().IntPart()
	default:
		return 0
	}
	if discount > eligible {
		discount = eligible
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// Evaluate runs the full discount algorithm: validity, eligible subtotal,
// minimum order, kind-specific discount, then a clamp to the cart subtotal.
// On any rejection the returned Result carries a zero discount.
func Evaluate(r Rule, items []Item, now time.Time) (Result, error) {
	if err := r.Validate(now); err != nil {
		return Result{}, err
	}
	eligible := EligibleSubtotal(items, r)
	if r.Scoped() && eligible == 0 {
		return Result{}, ErrNotApplicable
	}
	if eligible < r.MinOrderAmount {
		return Result{Eligible: eligible}, fmt.Errorf("eligible %d below minimum %d: %w", eligible, r.MinOrderAmount, ErrMinimumOrderNotMet)
	}
	discount := Compute(eligible, r)
	var subtotal int64
	for _, it := range items {
		if it.Subtotal > 0 {
			subtotal += it.Subtotal
		}
	}
	if discount > subtotal {
		discount = subtotal
	}
	return Result{Eligible: eligible, Discount: discount}, nil
}

// Reason maps a rejection onto the stable code used in API payloads.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrVoucherNotFound):
		return "VOUCHER_NOT_FOUND"
	case errors.Is(err, ErrVoucherInactive):
		return "VOUCHER_INACTIVE"
	case errors.Is(err, ErrVoucherExpired):
		return "VOUCHER_EXPIRED"
	case errors.Is(err, ErrMinimumOrderNotMet):
		return "MINIMUM_ORDER_NOT_MET"
	case errors.Is(err, ErrNotApplicable):
		return "VOUCHER_NOT_APPLICABLE"
	case errors.Is(err, ErrAlreadyUsed):
		return "VOUCHER_ALREADY_USED"
	default:
		return "VOUCHER_INVALID"
	}
}
