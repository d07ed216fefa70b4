package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// ProductLookup resolves catalog data for a line.
type ProductLookup interface {
	LookupProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (catalog.Product, error)
}

// VoucherLookup resolves voucher codes and past usage.
type VoucherLookup interface {
	Lookup(ctx context.Context, code string) (voucher.Rule, error)
	HasUsed(ctx context.Context, voucherID uuid.UUID, userID string) (bool, error)
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations. Every mutation runs under a
// per-cart lock, works on a clone and is persisted only when it succeeds, so
// a failed operation never leaves partial state behind.
type Service struct {
	Store    Store
	Catalog  ProductLookup
	Vouchers VoucherLookup
	Locker   Locker
	LockTTL  time.Duration
	Fees     pricing.FeeTable
	Limits   Limits
	Currency string
	Now      func() time.Time
	Log      zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) fees() pricing.FeeTable {
	if s == nil || len(s.Fees) == 0 {
		return pricing.DefaultFees()
	}
	return s.Fees
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// Summarize prices c for presentation.
func (s *Service) Summarize(c *Cart) Summary {
	sum := c.Summary(s.now(), s.fees())
	sum.Currency = s.Currency
	return sum
}

// Create starts an empty cart, bound to ownerID when the caller is signed in.
func (s *Service) Create(ctx context.Context, ownerID string) (Summary, error) {
	if s == nil || s.Store.R == nil {
		return Summary{}, errors.New("cart service not configured")
	}
	c := New(uuid.New(), s.now())
	c.OwnerID = strings.TrimSpace(ownerID)
	if err := s.Store.Save(ctx, c); err != nil {
		obs.CountCartMutation("create", "error")
		return Summary{}, err
	}
	obs.CountCartMutation("create", "ok")
	s.Log.Info().Str("cart_id", c.ID.String()).Bool("owned", c.OwnerID != "").Msg("cart_created")
	return s.Summarize(c), nil
}

// Get returns the current summary of a cart.
func (s *Service) Get(ctx context.Context, cartID uuid.UUID) (Summary, error) {
	c, err := s.Load(ctx, cartID)
	if err != nil {
		return Summary{}, err
	}
	return s.Summarize(c), nil
}

// Load returns the cart after checking the caller may access it.
func (s *Service) Load(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	if s == nil || s.Store.R == nil {
		return nil, errors.New("cart service not configured")
	}
	c, err := s.Store.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete drops a cart session once it has been turned into an order.
func (s *Service) Delete(ctx context.Context, cartID uuid.UUID) error {
	if s == nil || s.Store.R == nil {
		return errors.New("cart service not configured")
	}
	return s.Store.Delete(ctx, cartID)
}

// AddItem looks the product up, then inserts or increments the matching line.
func (s *Service) AddItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) (Summary, error) {
	return s.mutate(ctx, cartID, "add_item", func(ctx context.Context, c *Cart) error {
		if qty < 1 {
			return fmt.Errorf("quantity %d must be at least 1: %w", qty, ErrInvalidQuantity)
		}
		if s.Catalog == nil {
			return errors.New("catalog lookup not configured")
		}
		p, err := s.Catalog.LookupProduct(ctx, productID, variantID)
		if err != nil {
			return err
		}
		line, err := c.AddItem(NewItem{
			ProductID:       productID,
			VariantID:       variantID,
			Quantity:        qty,
			UnitPrice:       p.UnitPrice,
			Name:            p.Name,
			CategoryID:      p.CategoryID,
			RequiresVariant: p.RequiresVariant,
		}, s.Limits, s.now())
		if err != nil {
			return err
		}
		if int64(line.Quantity) > int64(p.Stock) {
			return fmt.Errorf("requested %d, %d available: %w", line.Quantity, p.Stock, catalog.ErrOutOfStock)
		}
		s.Log.Info().
			Str("cart_id", c.ID.String()).
			Str("line_id", line.ID.String()).
			Str("product_id", productID.String()).
			Int("quantity", line.Quantity).
			Msg("cart_item_added")
		return nil
	})
}

// UpdateQuantity changes a line quantity. Unknown lines leave the cart untouched.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (Summary, error) {
	return s.mutate(ctx, cartID, "update_quantity", func(ctx context.Context, c *Cart) error {
		_, err := c.UpdateQuantity(lineID, qty, s.Limits, s.now())
		return err
	})
}

// RemoveItem deletes a line. Unknown lines leave the cart untouched.
func (s *Service) RemoveItem(ctx context.Context, cartID, lineID uuid.UUID) (Summary, error) {
	return s.mutate(ctx, cartID, "remove_item", func(ctx context.Context, c *Cart) error {
		return c.RemoveItem(lineID, s.now())
	})
}

// ApplyVoucher replaces the applied voucher with code when it qualifies.
// On rejection the previously applied voucher stays in place.
func (s *Service) ApplyVoucher(ctx context.Context, cartID uuid.UUID, code string) (Summary, voucher.Result, error) {
	var res voucher.Result
	sum, err := s.mutate(ctx, cartID, "apply_voucher", func(ctx context.Context, c *Cart) error {
		if s.Vouchers == nil {
			return errors.New("voucher lookup not configured")
		}
		rule, err := s.Vouchers.Lookup(ctx, code)
		if err != nil {
			return err
		}
		if c.OwnerID != "" {
			used, err := s.Vouchers.HasUsed(ctx, rule.ID, c.OwnerID)
			if err != nil {
				return err
			}
			if used {
				return voucher.ErrAlreadyUsed
			}
		}
		res, err = c.ApplyVoucher(rule, s.now())
		return err
	})
	normalized := voucher.NormalizeCode(code)
	switch {
	case err == nil:
		obs.CountVoucherApply("applied")
		s.Log.Info().Str("cart_id", cartID.String()).Str("code", normalized).Int64("discount", res.Discount).Msg("voucher_applied")
	case isVoucherRejection(err):
		obs.CountVoucherApply(strings.ToLower(voucher.Reason(err)))
		s.Log.Info().Str("cart_id", cartID.String()).Str("code", normalized).Str("reason", voucher.Reason(err)).Msg("voucher_rejected")
	default:
		obs.CountVoucherApply("error")
	}
	return sum, res, err
}

// RemoveVoucher clears the applied voucher.
func (s *Service) RemoveVoucher(ctx context.Context, cartID uuid.UUID) (Summary, error) {
	return s.mutate(ctx, cartID, "remove_voucher", func(ctx context.Context, c *Cart) error {
		c.RemoveVoucher(s.now())
		return nil
	})
}

// SetShippingMethod selects STANDARD or EXPRESS shipping.
func (s *Service) SetShippingMethod(ctx context.Context, cartID uuid.UUID, method string) (Summary, error) {
	return s.mutate(ctx, cartID, "set_shipping", func(ctx context.Context, c *Cart) error {
		m, err := pricing.ParseMethod(method)
		if err != nil {
			return err
		}
		return c.SetShippingMethod(m, s.fees(), s.now())
	})
}

// Claim binds an anonymous cart to userID. Claiming one's own cart again is a no-op.
func (s *Service) Claim(ctx context.Context, cartID uuid.UUID, userID string) (Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Summary{}, fmt.Errorf("user id is required: %w", ErrInvalidInput)
	}
	return s.mutate(common.WithUserID(ctx, userID), cartID, "claim", func(ctx context.Context, c *Cart) error {
		c.OwnerID = userID
		c.UpdatedAt = s.now()
		return nil
	})
}

// Consume hands the locked cart and its summary to fn and deletes the cart
// session once fn succeeds. Empty carts are refused with ErrEmpty.
func (s *Service) Consume(ctx context.Context, cartID uuid.UUID, fn func(context.Context, *Cart, Summary) error) error {
	if s == nil || s.Store.R == nil {
		return errors.New("cart service not configured")
	}
	run := func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, cartID)
		if err != nil {
			return err
		}
		if err := authorize(ctx, c); err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return ErrEmpty
		}
		if err := fn(ctx, c, s.Summarize(c)); err != nil {
			return err
		}
		if err := s.Store.Delete(ctx, cartID); err != nil {
			s.Log.Warn().Err(err).Str("cart_id", cartID.String()).Msg("cart_delete_failed")
		}
		return nil
	}
	var err error
	if s.Locker == nil {
		err = run(ctx)
	} else {
		err = s.Locker.WithLock(ctx, cache.KeyCartLock(cartID), s.lockTTL(), run)
	}
	result := "ok"
	switch {
	case err == nil:
	case IsRejection(err):
		result = "rejected"
	default:
		result = "error"
	}
	obs.CountCartMutation("consume", result)
	return err
}

func (s *Service) mutate(ctx context.Context, cartID uuid.UUID, op string, fn func(context.Context, *Cart) error) (Summary, error) {
	if s == nil || s.Store.R == nil {
		return Summary{}, errors.New("cart service not configured")
	}
	var (
		sum    Summary
		result = "ok"
	)
	run := func(ctx context.Context) error {
		current, err := s.Store.Get(ctx, cartID)
		if err != nil {
			return err
		}
		if err := authorize(ctx, current); err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(ctx, next); err != nil {
			if errors.Is(err, ErrLineItemNotFound) {
				result = "noop"
				sum = s.Summarize(current)
				return nil
			}
			return err
		}
		if err := s.Store.Save(ctx, next); err != nil {
			return err
		}
		sum = s.Summarize(next)
		return nil
	}

	var err error
	if s.Locker == nil {
		err = run(ctx)
	} else {
		err = s.Locker.WithLock(ctx, cache.KeyCartLock(cartID), s.lockTTL(), run)
	}
	if err != nil {
		result = "error"
		if IsRejection(err) {
			result = "rejected"
		} else {
			s.Log.Error().Err(err).Str("cart_id", cartID.String()).Str("op", op).Msg("cart_mutation_failed")
		}
		obs.CountCartMutation(op, result)
		return Summary{}, err
	}
	obs.CountCartMutation(op, result)
	return sum, nil
}

// IsRejection reports whether err is a business rule rejection rather than an infrastructure failure.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrMissingVariant),
		errors.Is(err, ErrCartFull),
		errors.Is(err, ErrEmpty),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrOutOfStock),
		errors.Is(err, pricing.ErrInvalidShippingMethod):
		return true
	}
	return isVoucherRejection(err)
}

func isVoucherRejection(err error) bool {
	return errors.Is(err, voucher.ErrVoucherNotFound) ||
		errors.Is(err, voucher.ErrVoucherInactive) ||
		errors.Is(err, voucher.ErrVoucherExpired) ||
		errors.Is(err, voucher.ErrMinimumOrderNotMet) ||
		errors.Is(err, voucher.ErrNotApplicable) ||
		errors.Is(err, voucher.ErrAlreadyUsed)
}

func authorize(ctx context.Context, c *Cart) error {
	if c.OwnerID == "" {
		return nil
	}
	if uid, ok := common.UserID(ctx); ok && uid == c.OwnerID {
		return nil
	}
	return ErrForbidden
}
