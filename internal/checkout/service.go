package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/events"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

const (
	StatusPending        = "PENDING"
	PaymentStatusPending = "PENDING"

	uniqueViolation   = "23505"
	maxNumberAttempts = 3
)

// ErrInvalidPaymentMethod is returned for payment methods outside the supported set.
var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// PaymentMethods lists the accepted payment methods.
var PaymentMethods = []string{"COD", "BANK_TRANSFER", "VNPAY"}

// CartSource hands out a locked cart and drops it once the order exists.
type CartSource interface {
	Consume(ctx context.Context, cartID uuid.UUID, fn func(context.Context, *cart.Cart, cart.Summary) error) error
}

// CatalogInvalidator evicts cached catalog entries whose stock changed.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID)
}

// Input is the checkout request.
type Input struct {
	CartID        string `json:"cartId" validate:"required,uuid"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=COD BANK_TRANSFER VNPAY"`
}

// Output describes the placed order.
type Output struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	Status         string `json:"status"`
	PaymentMethod  string `json:"paymentMethod"`
	PaymentStatus  string `json:"paymentStatus"`
	ShippingMethod string `json:"shippingMethod"`
	Subtotal       int64  `json:"subtotal"`
	Discount       int64  `json:"discount"`
	ShippingFee    int64  `json:"shippingFee"`
	Total          int64  `json:"total"`
	VoucherCode    string `json:"voucherCode,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// Service turns a cart into a persisted order.
type Service struct {
	DB        db.TxStarter
	Carts     CartSource
	Catalog   CatalogInvalidator
	Events    *events.Bus
	Now       func() time.Time
	NewNumber func() string
	Log       zerolog.Logger
}

// NewOrderNumber returns ORD- followed by eight upper-case hex characters.
func NewOrderNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) number() string {
	if s.NewNumber != nil {
		return s.NewNumber()
	}
	return NewOrderNumber()
}

// PlaceOrder prices the cart one final time, persists the order with its
// items, stock movements and voucher usage in a single transaction, then
// drops the cart session and publishes order.created.
func (s *Service) PlaceOrder(ctx context.Context, userID string, in Input) (Output, error) {
	if s == nil || s.DB == nil || s.Carts == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return Output{}, fmt.Errorf("user id: %w", cart.ErrInvalidInput)
	}
	cartID, err := uuid.Parse(strings.TrimSpace(in.CartID))
	if err != nil {
		return Output{}, fmt.Errorf("cart id: %w", cart.ErrInvalidInput)
	}
	method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	if !validPaymentMethod(method) {
		return Output{}, fmt.Errorf("%q: %w", in.PaymentMethod, ErrInvalidPaymentMethod)
	}

	var (
		out      Output
		recorded []db.DomainEvent
		lines    []cart.LineItem
	)
	err = s.Carts.Consume(ctx, cartID, func(ctx context.Context, c *cart.Cart, sum cart.Summary) error {
		if c.Voucher != nil {
			if _, err := c.EvaluateVoucher(s.now()); err != nil {
				return err
			}
		}
		var attemptErr error
		for attempt := 0; attempt < maxNumberAttempts; attempt++ {
			out, recorded, attemptErr = s.persist(ctx, uid, method, c, sum)
			if !errors.Is(attemptErr, errNumberTaken) {
				break
			}
			s.Log.Warn().Int("attempt", attempt+1).Msg("order_number_collision")
		}
		if attemptErr != nil {
			return attemptErr
		}
		lines = c.Items
		return nil
	})
	if err != nil {
		result := "error"
		if cart.IsRejection(err) || errors.Is(err, ErrInvalidPaymentMethod) {
			result = "rejected"
		} else {
			s.Log.Error().Err(err).Str("cart_id", cartID.String()).Msg("checkout_failed")
		}
		obs.CountCheckout(result)
		return Output{}, err
	}

	if s.Catalog != nil {
		for _, it := range lines {
			s.Catalog.Invalidate(ctx, it.ProductID, it.VariantID)
		}
	}
	for _, ev := range recorded {
		if err := s.Events.Publish(ctx, ev); err != nil {
			s.Log.Warn().Err(err).Str("topic", ev.Topic).Str("order_number", out.OrderNumber).Msg("event_dispatch_failed")
		}
	}
	obs.CountCheckout("ok")
	s.Log.Info().
		Str("order_id", out.OrderID).
		Str("order_number", out.OrderNumber).
		Str("cart_id", cartID.String()).
		Int64("total", out.Total).
		Msg("order_placed")
	return out, nil
}

var errNumberTaken = errors.New("order number already taken")

// recheckVoucher reads the voucher row inside the order transaction so a
// voucher switched off after it was applied (or still cached) is refused.
func (s *Service) recheckVoucher(ctx context.Context, q *db.Queries, code string) error {
	row, err := q.GetVoucherByCode(ctx, code)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", code, voucher.ErrVoucherNotFound)
	}
	if err != nil {
		return err
	}
	rule, err := voucher.RuleFromModel(row)
	if err != nil {
		return err
	}
	return rule.Validate(s.now())
}

func (s *Service) persist(ctx context.Context, uid uuid.UUID, method string, c *cart.Cart, sum cart.Summary) (Output, []db.DomainEvent, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Output{}, nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := db.New(tx)

	if c.Voucher != nil {
		if err := s.recheckVoucher(ctx, qtx, c.Voucher.Code); err != nil {
			return Output{}, nil, err
		}
	}

	for _, it := range c.Items {
		params := db.DecrementStockParams{Qty: int32(it.Quantity)}
		var rows int64
		if it.VariantID != nil {
			params.ID = pgUUID(*it.VariantID)
			rows, err = qtx.DecrementVariantStock(ctx, params)
		} else {
			params.ID = pgUUID(it.ProductID)
			rows, err = qtx.DecrementProductStock(ctx, params)
		}
		if err != nil {
			return Output{}, nil, err
		}
		if rows == 0 {
			return Output{}, nil, fmt.Errorf("%s: %w", it.Name, catalog.ErrOutOfStock)
		}
	}

	var voucherCode pgtype.Text
	if c.Voucher != nil {
		voucherCode = pgtype.Text{String: c.Voucher.Code, Valid: true}
	}
	order, err := qtx.CreateOrder(ctx, db.CreateOrderParams{
		Number:         s.number(),
		UserID:         pgUUID(uid),
		Status:         StatusPending,
		PaymentMethod:  method,
		PaymentStatus:  PaymentStatusPending,
		ShippingMethod: string(sum.ShippingMethod),
		Subtotal:       sum.Subtotal,
		Discount:       sum.Discount,
		ShippingFee:    sum.ShippingFee,
		Total:          sum.GrandTotal,
		VoucherCode:    voucherCode,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Output{}, nil, errNumberTaken
		}
		return Output{}, nil, err
	}

	for _, it := range c.Items {
		var variant pgtype.UUID
		if it.VariantID != nil {
			variant = pgUUID(*it.VariantID)
		}
		if err := qtx.CreateOrderItem(ctx, db.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: pgUUID(it.ProductID),
			VariantID: variant,
			Name:      it.Name,
			Qty:       int32(it.Quantity),
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal(),
		}); err != nil {
			return Output{}, nil, err
		}
	}

	bus := s.Events.WithStore(qtx)
	var recorded []db.DomainEvent
	if c.Voucher != nil {
		if err := qtx.InsertVoucherUsage(ctx, db.InsertVoucherUsageParams{
			VoucherID: pgUUID(c.Voucher.ID),
			UserID:    pgUUID(uid),
			OrderID:   order.ID,
			Amount:    sum.Discount,
		}); err != nil {
			if isUniqueViolation(err) {
				return Output{}, nil, voucher.ErrAlreadyUsed
			}
			return Output{}, nil, err
		}
		ev, err := bus.Record(ctx, events.TopicVoucherRedeemed, pgUUID(c.Voucher.ID), map[string]any{
			"voucherId":   c.Voucher.ID.String(),
			"code":        c.Voucher.Code,
			"userId":      uid.String(),
			"orderNumber": order.Number,
			"amount":      sum.Discount,
		})
		if err != nil {
			return Output{}, nil, err
		}
		recorded = append(recorded, ev)
	}

	out := Output{
		OrderID:        uuid.UUID(order.ID.Bytes).String(),
		OrderNumber:    order.Number,
		Status:         order.Status,
		PaymentMethod:  order.PaymentMethod,
		PaymentStatus:  order.PaymentStatus,
		ShippingMethod: order.ShippingMethod,
		Subtotal:       order.Subtotal,
		Discount:       order.Discount,
		ShippingFee:    order.ShippingFee,
		Total:          order.Total,
		VoucherCode:    voucherCode.String,
		Currency:       sum.Currency,
	}
	ev, err := bus.Record(ctx, events.TopicOrderCreated, order.ID, map[string]any{
		"orderId":     out.OrderID,
		"orderNumber": out.OrderNumber,
		"userId":      uid.String(),
		"total":       out.Total,
		"itemCount":   len(c.Items),
	})
	if err != nil {
		return Output{}, nil, err
	}
	recorded = append(recorded, ev)

	if err := tx.Commit(ctx); err != nil {
		return Output{}, nil, err
	}
	return out, recorded, nil
}

func validPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
