package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/lock"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

const (
	ownerA = "2f6b0c1e-8d4a-4f3b-9c2e-7a1d5e6f0a11"
	ownerB = "2f6b0c1e-8d4a-4f3b-9c2e-7a1d5e6f0a22"
)

type stubCatalog struct {
	products map[uuid.UUID]catalog.Product
	err      error
}

func (s *stubCatalog) LookupProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (catalog.Product, error) {
	if s.err != nil {
		return catalog.Product{}, s.err
	}
	p, ok := s.products[productID]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	p.VariantID = variantID
	return p, nil
}

type stubVouchers struct {
	rules map[string]voucher.Rule
	used  bool
}

func (s *stubVouchers) Lookup(ctx context.Context, code string) (voucher.Rule, error) {
	r, ok := s.rules[voucher.NormalizeCode(code)]
	if !ok {
		return voucher.Rule{}, voucher.ErrVoucherNotFound
	}
	return r, nil
}

func (s *stubVouchers) HasUsed(ctx context.Context, voucherID uuid.UUID, userID string) (bool, error) {
	return s.used, nil
}

type serviceFixture struct {
	svc      *Service
	mr       *miniredis.Miniredis
	catalog  *stubCatalog
	vouchers *stubVouchers
	phone    uuid.UUID
	shirt    uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	phone := uuid.New()
	shirt := uuid.New()
	cat := &stubCatalog{products: map[uuid.UUID]catalog.Product{
		phone: {ProductID: phone, Name: "Phone", UnitPrice: 200_000, Stock: 10},
		shirt: {ProductID: shirt, Name: "Shirt", UnitPrice: 100, Stock: 3, RequiresVariant: true},
	}}
	inactive := percentRule("OFF20", 20, 0)
	inactive.Active = false
	expired := percentRule("OLD30", 30, 0)
	until := testNow.AddDate(0, 0, -1)
	expired.ValidUntil = &until
	vouchers := &stubVouchers{rules: map[string]voucher.Rule{
		"SAVE10": percentRule("SAVE10", 10, 100_000),
		"FIXED50K": {
			ID:             uuid.New(),
			Code:           "FIXED50K",
			Kind:           voucher.KindFixedAmount,
			Value:          decimal.NewFromInt(50_000),
			MinOrderAmount: 500_000,
			Active:         true,
		},
		"OFF20": inactive,
		"OLD30": expired,
	}}
	svc := &Service{
		Store:    Store{R: client, TTL: time.Hour},
		Catalog:  cat,
		Vouchers: vouchers,
		Locker:   lock.Locker{R: client, RetryBackoff: time.Millisecond, Wait: 100 * time.Millisecond},
		Fees:     pricing.DefaultFees(),
		Limits:   Limits{MaxLines: 10, MaxQtyPerLine: 99},
		Currency: "VND",
		Now:      func() time.Time { return testNow },
	}
	return &serviceFixture{svc: svc, mr: mr, catalog: cat, vouchers: vouchers, phone: phone, shirt: shirt}
}

func TestServiceCheckoutScenario(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	require.True(t, created.Empty)
	require.Equal(t, "VND", created.Currency)
	require.True(t, f.mr.Exists("cart:"+created.CartID.String()))

	sum, err := f.svc.AddItem(ctx, created.CartID, f.phone, nil, 2)
	require.NoError(t, err)
	require.Equal(t, int64(400_000), sum.Subtotal)

	sum, res, err := f.svc.ApplyVoucher(ctx, created.CartID, "save10")
	require.NoError(t, err)
	require.Equal(t, int64(40_000), res.Discount)
	require.Equal(t, int64(390_000), sum.GrandTotal)

	_, _, err = f.svc.ApplyVoucher(ctx, created.CartID, "FIXED50K")
	require.ErrorIs(t, err, voucher.ErrMinimumOrderNotMet)

	sum, err = f.svc.Get(ctx, created.CartID)
	require.NoError(t, err)
	require.Equal(t, "SAVE10", sum.Voucher.Code)
	require.Equal(t, int64(40_000), sum.Discount)

	sum, err = f.svc.SetShippingMethod(ctx, created.CartID, "express")
	require.NoError(t, err)
	require.Equal(t, int64(410_000), sum.GrandTotal)

	sum, err = f.svc.RemoveVoucher(ctx, created.CartID)
	require.NoError(t, err)
	require.Nil(t, sum.Voucher)
	require.Equal(t, int64(450_000), sum.GrandTotal)
}

func TestServiceRejectedMutationLeavesCartUntouched(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	sum, err := f.svc.AddItem(ctx, created.CartID, f.phone, nil, 2)
	require.NoError(t, err)
	lineID := sum.Items[0].ID

	_, err = f.svc.UpdateQuantity(ctx, created.CartID, lineID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, created.CartID, f.phone, nil, 20)
	require.ErrorIs(t, err, catalog.ErrOutOfStock)

	_, err = f.svc.AddItem(ctx, created.CartID, f.shirt, nil, 1)
	require.ErrorIs(t, err, ErrMissingVariant)

	_, err = f.svc.SetShippingMethod(ctx, created.CartID, "drone")
	require.ErrorIs(t, err, pricing.ErrInvalidShippingMethod)

	sum, err = f.svc.Get(ctx, created.CartID)
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)
	require.Equal(t, 2, sum.Items[0].Quantity)
	require.Equal(t, pricing.MethodStandard, sum.ShippingMethod)
}

func TestServiceUnknownLineIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, created.CartID, f.phone, nil, 1)
	require.NoError(t, err)

	sum, err := f.svc.RemoveItem(ctx, created.CartID, uuid.New())
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)

	sum, err = f.svc.UpdateQuantity(ctx, created.CartID, uuid.New(), 4)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Items[0].Quantity)
}

func TestServiceRemoveItemTwiceIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	sum, err := f.svc.AddItem(ctx, created.CartID, f.phone, nil, 1)
	require.NoError(t, err)
	lineID := sum.Items[0].ID

	first, err := f.svc.RemoveItem(ctx, created.CartID, lineID)
	require.NoError(t, err)
	second, err := f.svc.RemoveItem(ctx, created.CartID, lineID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.True(t, second.Empty)
}

func TestServiceApplyDeadVoucherKeepsApplied(t *testing.T) {
	f := newServiceFixture(t)
	ctx := common.WithUserID(context.Background(), ownerA)

	created, err := f.svc.Create(ctx, ownerA)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, created.CartID, f.phone, nil, 2)
	require.NoError(t, err)
	_, _, err = f.svc.ApplyVoucher(ctx, created.CartID, "SAVE10")
	require.NoError(t, err)

	_, _, err = f.svc.ApplyVoucher(ctx, created.CartID, "off20")
	require.ErrorIs(t, err, voucher.ErrVoucherInactive)
	require.True(t, IsRejection(err))

	_, _, err = f.svc.ApplyVoucher(ctx, created.CartID, "OLD30")
	require.ErrorIs(t, err, voucher.ErrVoucherExpired)
	require.True(t, IsRejection(err))

	sum, err := f.svc.Get(ctx, created.CartID)
	require.NoError(t, err)
	require.Equal(t, "SAVE10", sum.Voucher.Code)
	require.Equal(t, int64(40_000), sum.Discount)
	require.Equal(t, int64(390_000), sum.GrandTotal)
}

func TestServiceUnknownCart(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.AddItem(context.Background(), uuid.New(), f.phone, nil, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceOwnershipAndClaim(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)

	claimed, err := f.svc.Claim(ctx, created.CartID, ownerA)
	require.NoError(t, err)
	require.Equal(t, created.CartID, claimed.CartID)

	_, err = f.svc.Get(ctx, created.CartID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Get(common.WithUserID(ctx, ownerB), created.CartID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Get(common.WithUserID(ctx, ownerA), created.CartID)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, created.CartID, ownerB)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestServiceApplyVoucherAlreadyUsed(t *testing.T) {
	f := newServiceFixture(t)
	f.vouchers.used = true
	ctx := common.WithUserID(context.Background(), ownerA)

	created, err := f.svc.Create(ctx, ownerA)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, created.CartID, f.phone, nil, 2)
	require.NoError(t, err)

	_, _, err = f.svc.ApplyVoucher(ctx, created.CartID, "SAVE10")
	require.ErrorIs(t, err, voucher.ErrAlreadyUsed)
	require.True(t, IsRejection(err))
}

func TestServiceBusyCart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("lock:cart:"+created.CartID.String(), "held"))

	_, err = f.svc.AddItem(ctx, created.CartID, f.phone, nil, 1)
	require.ErrorIs(t, err, lock.ErrBusy)
	require.False(t, IsRejection(err))
}

func TestServiceCatalogFailureSurfaces(t *testing.T) {
	f := newServiceFixture(t)
	f.catalog.err = errors.New("db down")
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, created.CartID, f.phone, nil, 1)
	require.EqualError(t, err, "db down")
}

func TestStoreExpiry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "")
	require.NoError(t, err)
	f.mr.FastForward(2 * time.Hour)

	_, err = f.svc.Get(ctx, created.CartID)
	require.ErrorIs(t, err, ErrNotFound)
}
