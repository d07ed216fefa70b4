package cart

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func percentRule(code string, pct int64, min int64) voucher.Rule {
	return voucher.Rule{
		ID:             uuid.New(),
		Code:           code,
		Kind:           voucher.KindPercentage,
		Value:          decimal.NewFromInt(pct),
		MinOrderAmount: min,
		Active:         true,
	}
}

func TestAddItemMergesSameProductAndVariant(t *testing.T) {
	c := New(uuid.New(), testNow)
	productID := uuid.New()
	variantID := uuid.New()

	first, err := c.AddItem(NewItem{ProductID: productID, VariantID: &variantID, Quantity: 1, UnitPrice: 100}, Limits{}, testNow)
	require.NoError(t, err)
	merged, err := c.AddItem(NewItem{ProductID: productID, VariantID: &variantID, Quantity: 2, UnitPrice: 150}, Limits{}, testNow)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	require.Equal(t, first.ID, merged.ID)
	require.Equal(t, 3, merged.Quantity)
	require.Equal(t, int64(100), merged.UnitPrice, "merged line keeps original price")

	otherVariant := uuid.New()
	_, err = c.AddItem(NewItem{ProductID: productID, VariantID: &otherVariant, Quantity: 1, UnitPrice: 120}, Limits{}, testNow)
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	c := New(uuid.New(), testNow)

	_, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 0, UnitPrice: 100}, Limits{}, testNow)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 100, RequiresVariant: true}, Limits{}, testNow)
	require.ErrorIs(t, err, ErrMissingVariant)
	require.Empty(t, c.Items)
}

func TestAddItemLimits(t *testing.T) {
	c := New(uuid.New(), testNow)
	limits := Limits{MaxLines: 1, MaxQtyPerLine: 5}
	productID := uuid.New()

	_, err := c.AddItem(NewItem{ProductID: productID, Quantity: 4, UnitPrice: 10}, limits, testNow)
	require.NoError(t, err)

	_, err = c.AddItem(NewItem{ProductID: productID, Quantity: 2, UnitPrice: 10}, limits, testNow)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Equal(t, 4, c.Items[0].Quantity)

	_, err = c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 10}, limits, testNow)
	require.ErrorIs(t, err, ErrCartFull)
}

func TestUpdateQuantityRecomputesLineTotal(t *testing.T) {
	c := New(uuid.New(), testNow)
	line, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 2, UnitPrice: 100}, Limits{}, testNow)
	require.NoError(t, err)
	require.Equal(t, int64(200), line.LineTotal())

	updated, err := c.UpdateQuantity(line.ID, 5, Limits{}, testNow)
	require.NoError(t, err)
	require.Equal(t, int64(500), updated.LineTotal())
	require.Equal(t, int64(500), c.Summary(testNow, pricing.DefaultFees()).Subtotal)
}

func TestUpdateQuantityZeroIsRejected(t *testing.T) {
	c := New(uuid.New(), testNow)
	line, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 2, UnitPrice: 100}, Limits{}, testNow)
	require.NoError(t, err)

	_, err = c.UpdateQuantity(line.ID, 0, Limits{}, testNow)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Len(t, c.Items, 1)
	require.Equal(t, 2, c.Items[0].Quantity)

	_, err = c.UpdateQuantity(uuid.New(), 3, Limits{}, testNow)
	require.ErrorIs(t, err, ErrLineItemNotFound)
}

func TestRemoveItemPreservesOrder(t *testing.T) {
	c := New(uuid.New(), testNow)
	a, _ := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 1}, Limits{}, testNow)
	b, _ := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 2}, Limits{}, testNow)
	d, _ := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 3}, Limits{}, testNow)

	require.NoError(t, c.RemoveItem(b.ID, testNow))
	require.Equal(t, []uuid.UUID{a.ID, d.ID}, []uuid.UUID{c.Items[0].ID, c.Items[1].ID})
	require.ErrorIs(t, c.RemoveItem(b.ID, testNow), ErrLineItemNotFound)
}

func TestSummaryWithPercentageVoucher(t *testing.T) {
	c := New(uuid.New(), testNow)
	_, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 2, UnitPrice: 200_000}, Limits{}, testNow)
	require.NoError(t, err)

	res, err := c.ApplyVoucher(percentRule("SAVE10", 10, 100_000), testNow)
	require.NoError(t, err)
	require.Equal(t, int64(40_000), res.Discount)

	sum := c.Summary(testNow, pricing.DefaultFees())
	require.Equal(t, int64(400_000), sum.Subtotal)
	require.Equal(t, int64(40_000), sum.Discount)
	require.Equal(t, pricing.MethodStandard, sum.ShippingMethod)
	require.Equal(t, int64(30_000), sum.ShippingFee)
	require.Equal(t, int64(390_000), sum.GrandTotal)
	require.Equal(t, 2, sum.TotalQuantity)
	require.NotNil(t, sum.Voucher)
	require.True(t, sum.Voucher.Valid)
}

func TestApplyVoucherRejectionKeepsPrevious(t *testing.T) {
	c := New(uuid.New(), testNow)
	_, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 2, UnitPrice: 200_000}, Limits{}, testNow)
	require.NoError(t, err)
	_, err = c.ApplyVoucher(percentRule("SAVE10", 10, 100_000), testNow)
	require.NoError(t, err)

	fixed := voucher.Rule{
		ID:             uuid.New(),
		Code:           "FIXED50K",
		Kind:           voucher.KindFixedAmount,
		Value:          decimal.NewFromInt(50_000),
		MinOrderAmount: 500_000,
		Active:         true,
	}
	_, err = c.ApplyVoucher(fixed, testNow)
	require.ErrorIs(t, err, voucher.ErrMinimumOrderNotMet)
	require.Equal(t, "SAVE10", c.Voucher.Code)
}

func TestApplyVoucherInactiveOrExpiredKeepsPrevious(t *testing.T) {
	c := New(uuid.New(), testNow)
	_, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 2, UnitPrice: 200_000}, Limits{}, testNow)
	require.NoError(t, err)
	_, err = c.ApplyVoucher(percentRule("SAVE10", 10, 100_000), testNow)
	require.NoError(t, err)

	off := percentRule("OFF20", 20, 0)
	off.Active = false
	_, err = c.ApplyVoucher(off, testNow)
	require.ErrorIs(t, err, voucher.ErrVoucherInactive)

	old := percentRule("OLD30", 30, 0)
	until := testNow.Add(-time.Hour)
	old.ValidUntil = &until
	_, err = c.ApplyVoucher(old, testNow)
	require.ErrorIs(t, err, voucher.ErrVoucherExpired)

	require.Equal(t, "SAVE10", c.Voucher.Code)
	sum := c.Summary(testNow, pricing.DefaultFees())
	require.Equal(t, int64(40_000), sum.Discount)
	require.Equal(t, int64(390_000), sum.GrandTotal)
}

func TestSummaryDiscountNeverExceedsSubtotal(t *testing.T) {
	c := New(uuid.New(), testNow)
	_, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 80_000}, Limits{}, testNow)
	require.NoError(t, err)
	_, err = c.ApplyVoucher(percentRule("HUGE", 1000, 0), testNow)
	require.NoError(t, err)

	sum := c.Summary(testNow, pricing.DefaultFees())
	require.Equal(t, int64(80_000), sum.Discount)
	require.Equal(t, int64(30_000), sum.GrandTotal)
}

func TestSummaryReportsVoucherThatStoppedQualifying(t *testing.T) {
	c := New(uuid.New(), testNow)
	line, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 2, UnitPrice: 200_000}, Limits{}, testNow)
	require.NoError(t, err)
	_, err = c.ApplyVoucher(percentRule("SAVE10", 10, 300_000), testNow)
	require.NoError(t, err)

	_, err = c.UpdateQuantity(line.ID, 1, Limits{}, testNow)
	require.NoError(t, err)

	sum := c.Summary(testNow, pricing.DefaultFees())
	require.Zero(t, sum.Discount)
	require.NotNil(t, sum.Voucher)
	require.False(t, sum.Voucher.Valid)
	require.Equal(t, "MINIMUM_ORDER_NOT_MET", sum.Voucher.Reason)
	require.Equal(t, int64(230_000), sum.GrandTotal)
}

func TestEmptySummary(t *testing.T) {
	c := New(uuid.New(), testNow)
	sum := c.Summary(testNow, pricing.DefaultFees())
	require.True(t, sum.Empty)
	require.Zero(t, sum.Subtotal)
	require.NotNil(t, sum.Items)
	require.Equal(t, int64(30_000), sum.GrandTotal)
}

func TestSetShippingMethod(t *testing.T) {
	c := New(uuid.New(), testNow)
	require.NoError(t, c.SetShippingMethod(pricing.MethodExpress, pricing.DefaultFees(), testNow))
	sum := c.Summary(testNow, pricing.DefaultFees())
	require.Equal(t, int64(50_000), sum.ShippingFee)

	err := c.SetShippingMethod(pricing.Method("DRONE"), pricing.DefaultFees(), testNow)
	require.True(t, errors.Is(err, pricing.ErrInvalidShippingMethod))
	require.Equal(t, pricing.MethodExpress, c.ShippingMethod)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New(uuid.New(), testNow)
	_, err := c.AddItem(NewItem{ProductID: uuid.New(), Quantity: 1, UnitPrice: 10}, Limits{}, testNow)
	require.NoError(t, err)
	rule := percentRule("SAVE10", 10, 0)
	c.Voucher = &rule

	cp := c.Clone()
	cp.Items[0].Quantity = 9
	cp.Voucher.Code = "OTHER"

	require.Equal(t, 1, c.Items[0].Quantity)
	require.Equal(t, "SAVE10", c.Voucher.Code)
}
