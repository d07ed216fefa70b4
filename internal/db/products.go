package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getProductForCart = `-- name: GetProductForCart :one
SELECT id, name, slug, price, category_id, stock, has_variants, active
FROM products
WHERE id = $1 AND deleted_at IS NULL
`

func (q *Queries) GetProductForCart(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, getProductForCart, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.Price,
		&i.CategoryID,
		&i.Stock,
		&i.HasVariants,
		&i.Active,
	)
	return i, err
}

const getVariantForCart = `-- name: GetVariantForCart :one
SELECT id, product_id, name, price, stock
FROM product_variants
WHERE id = $1
`

func (q *Queries) GetVariantForCart(ctx context.Context, id pgtype.UUID) (ProductVariant, error) {
	row := q.db.QueryRow(ctx, getVariantForCart, id)
	var i ProductVariant
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.Name,
		&i.Price,
		&i.Stock,
	)
	return i, err
}

const decrementProductStock = `-- name: DecrementProductStock :execrows
UPDATE products SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2
`

type DecrementStockParams struct {
	ID  pgtype.UUID
	Qty int32
}

// DecrementProductStock returns the number of rows touched; zero means insufficient stock.
func (q *Queries) DecrementProductStock(ctx context.Context, arg DecrementStockParams) (int64, error) {
	result, err := q.db.Exec(ctx, decrementProductStock, arg.ID, arg.Qty)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const decrementVariantStock = `-- name: DecrementVariantStock :execrows
UPDATE product_variants SET stock = stock - $2
WHERE id = $1 AND stock >= $2
`

func (q *Queries) DecrementVariantStock(ctx context.Context, arg DecrementStockParams) (int64, error) {
	result, err := q.db.Exec(ctx, decrementVariantStock, arg.ID, arg.Qty)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
