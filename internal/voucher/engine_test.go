package voucher

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func window() (*time.Time, *time.Time) {
	from := now.AddDate(0, -1, 0)
	until := now.AddDate(0, 1, 0)
	return &from, &until
}

func percentRule(value int64, minOrder int64) Rule {
	from, until := window()
	return Rule{
		Code:           "SAVE10",
		Kind:           KindPercentage,
		Value:          decimal.NewFromInt(value),
		MinOrderAmount: minOrder,
		ValidFrom:      from,
		ValidUntil:     until,
		Active:         true,
	}
}

func TestComputePercent(t *testing.T) {
	rule := Rule{Kind: KindPercentage, Value: decimal.NewFromInt(20)}
	require.Equal(t, int64(20_000), Compute(100_000, rule))
}

func TestComputePercentFloorsFractions(t *testing.T) {
	rule := Rule{Kind: KindPercentage, Value: decimal.RequireFromString("12.5")}
	require.Equal(t, int64(124), Compute(999, rule))
}

func TestComputeFixedCapsAtEligible(t *testing.T) {
	rule := Rule{Kind: KindFixedAmount, Value: decimal.NewFromInt(50_000)}
	require.Equal(t, int64(30_000), Compute(30_000, rule))
	require.Equal(t, int64(50_000), Compute(80_000, rule))
}

func TestComputeNonPositiveValue(t *testing.T) {
	rule := Rule{Kind: KindFixedAmount, Value: decimal.NewFromInt(-10)}
	require.Zero(t, Compute(1_000, rule))
}

func TestEvaluateSave10(t *testing.T) {
	items := []Item{{ProductID: uuid.New(), Subtotal: 400_000}}
	res, err := Evaluate(percentRule(10, 100_000), items, now)
	require.NoError(t, err)
	require.Equal(t, int64(40_000), res.Discount)
	require.Equal(t, int64(400_000), res.Eligible)
}

func TestEvaluateClampsAbsurdPercent(t *testing.T) {
	items := []Item{{ProductID: uuid.New(), Subtotal: 400_000}}
	res, err := Evaluate(percentRule(1000, 0), items, now)
	require.NoError(t, err)
	require.Equal(t, int64(400_000), res.Discount)
}

func TestEvaluateMinimumOrder(t *testing.T) {
	from, until := window()
	rule := Rule{
		Code:           "FIXED50K",
		Kind:           KindFixedAmount,
		Value:          decimal.NewFromInt(50_000),
		MinOrderAmount: 500_000,
		ValidFrom:      from,
		ValidUntil:     until,
		Active:         true,
	}
	res, err := Evaluate(rule, []Item{{Subtotal: 400_000}}, now)
	require.ErrorIs(t, err, ErrMinimumOrderNotMet)
	require.Zero(t, res.Discount)
}

func TestEvaluateValidity(t *testing.T) {
	items := []Item{{Subtotal: 400_000}}

	inactive := percentRule(10, 0)
	inactive.Active = false
	_, err := Evaluate(inactive, items, now)
	require.ErrorIs(t, err, ErrVoucherInactive)

	expired := percentRule(10, 0)
	past := now.Add(-time.Hour)
	expired.ValidUntil = &past
	_, err = Evaluate(expired, items, now)
	require.ErrorIs(t, err, ErrVoucherExpired)

	early := percentRule(10, 0)
	future := now.Add(time.Hour)
	early.ValidFrom = &future
	_, err = Evaluate(early, items, now)
	require.ErrorIs(t, err, ErrVoucherExpired, "not-yet-valid voucher")

	open := percentRule(10, 0)
	open.ValidFrom, open.ValidUntil = nil, nil
	_, err = Evaluate(open, items, now)
	require.NoError(t, err, "unbounded window should be valid")
}

func TestEligibleSubtotalScoped(t *testing.T) {
	fashion := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	gadgets := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	rule := Rule{CategoryID: &fashion}
	items := []Item{
		{CategoryID: &fashion, Subtotal: 50_000},
		{CategoryID: &gadgets, Subtotal: 70_000},
		{Subtotal: 10_000},
	}
	require.Equal(t, int64(50_000), EligibleSubtotal(items, rule))
}

func TestEvaluateScopedNoMatch(t *testing.T) {
	fashion := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	gadgets := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	rule := percentRule(10, 0)
	rule.CategoryID = &fashion
	_, err := Evaluate(rule, []Item{{CategoryID: &gadgets, Subtotal: 70_000}}, now)
	require.ErrorIs(t, err, ErrNotApplicable)
}

func TestEvaluateScopedMinimumUsesEligible(t *testing.T) {
	fashion := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	rule := percentRule(10, 100_000)
	rule.CategoryID = &fashion
	items := []Item{
		{CategoryID: &fashion, Subtotal: 60_000},
		{Subtotal: 500_000},
	}
	_, err := Evaluate(rule, items, now)
	require.ErrorIs(t, err, ErrMinimumOrderNotMet)
}

func TestParseKindAndNormalize(t *testing.T) {
	k, err := ParseKind("percentage")
	require.NoError(t, err)
	require.Equal(t, KindPercentage, k)

	_, err = ParseKind("bogo")
	require.Error(t, err)

	require.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
