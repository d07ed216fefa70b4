package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
  number, user_id, status, payment_method, payment_status, shipping_method,
  subtotal, discount, shipping_fee, total, voucher_code
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at
`

type CreateOrderParams struct {
	Number         string
	UserID         pgtype.UUID
	Status         string
	PaymentMethod  string
	PaymentStatus  string
	ShippingMethod string
	Subtotal       int64
	Discount       int64
	ShippingFee    int64
	Total          int64
	VoucherCode    pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.Number,
		arg.UserID,
		arg.Status,
		arg.PaymentMethod,
		arg.PaymentStatus,
		arg.ShippingMethod,
		arg.Subtotal,
		arg.Discount,
		arg.ShippingFee,
		arg.Total,
		arg.VoucherCode,
	)
	i := Order{
		Number:         arg.Number,
		UserID:         arg.UserID,
		Status:         arg.Status,
		PaymentMethod:  arg.PaymentMethod,
		PaymentStatus:  arg.PaymentStatus,
		ShippingMethod: arg.ShippingMethod,
		Subtotal:       arg.Subtotal,
		Discount:       arg.Discount,
		ShippingFee:    arg.ShippingFee,
		Total:          arg.Total,
		VoucherCode:    arg.VoucherCode,
	}
	err := row.Scan(&i.ID, &i.CreatedAt)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :exec
INSERT INTO order_items (order_id, product_id, variant_id, name, qty, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type CreateOrderItemParams struct {
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	VariantID pgtype.UUID
	Name      string
	Qty       int32
	UnitPrice int64
	LineTotal int64
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.Exec(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.VariantID,
		arg.Name,
		arg.Qty,
		arg.UnitPrice,
		arg.LineTotal,
	)
	return err
}
