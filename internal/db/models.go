package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          pgtype.UUID
	Name        string
	Slug        string
	Price       int64
	CategoryID  pgtype.UUID
	Stock       int32
	HasVariants bool
	Active      bool
}

type ProductVariant struct {
	ID        pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	Price     int64
	Stock     int32
}

type Voucher struct {
	ID             pgtype.UUID
	Code           string
	Kind           string
	Value          decimal.Decimal
	MinOrderAmount int64
	CategoryID     pgtype.UUID
	ValidFrom      pgtype.Timestamptz
	ValidUntil     pgtype.Timestamptz
	Active         bool
}

type VoucherUsage struct {
	ID        pgtype.UUID
	VoucherID pgtype.UUID
	UserID    pgtype.UUID
	OrderID   pgtype.UUID
	Amount    int64
	UsedAt    pgtype.Timestamptz
}

type Order struct {
	ID             pgtype.UUID
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
	CreatedAt      pgtype.Timestamptz
}

type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	VariantID pgtype.UUID
	Name      string
	Qty       int32
	UnitPrice int64
	LineTotal int64
}

type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
