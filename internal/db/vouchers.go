package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const voucherColumns = `id, code, kind, value::text, min_order_amount, category_id, valid_from, valid_until, active`

const getVoucherByCode = `-- name: GetVoucherByCode :one
SELECT ` + voucherColumns + `
FROM vouchers
WHERE upper(code) = upper($1)
`

func (q *Queries) GetVoucherByCode(ctx context.Context, code string) (Voucher, error) {
	row := q.db.QueryRow(ctx, getVoucherByCode, code)
	return scanVoucher(row)
}

const listAvailableVouchers = `-- name: ListAvailableVouchers :many
SELECT ` + voucherColumns + `
FROM vouchers
WHERE active
  AND (valid_from IS NULL OR valid_from <= $1)
  AND (valid_until IS NULL OR valid_until >= $1)
ORDER BY valid_until NULLS LAST, code
`

func (q *Queries) ListAvailableVouchers(ctx context.Context, at time.Time) ([]Voucher, error) {
	rows, err := q.db.Query(ctx, listAvailableVouchers, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Voucher
	for rows.Next() {
		i, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countVoucherUsageByUser = `-- name: CountVoucherUsageByUser :one
SELECT count(*) FROM voucher_usages
WHERE voucher_id = $1 AND user_id = $2
`

type CountVoucherUsageByUserParams struct {
	VoucherID pgtype.UUID
	UserID    pgtype.UUID
}

func (q *Queries) CountVoucherUsageByUser(ctx context.Context, arg CountVoucherUsageByUserParams) (int64, error) {
	row := q.db.QueryRow(ctx, countVoucherUsageByUser, arg.VoucherID, arg.UserID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const insertVoucherUsage = `-- name: InsertVoucherUsage :exec
INSERT INTO voucher_usages (voucher_id, user_id, order_id, amount)
VALUES ($1, $2, $3, $4)
`

type InsertVoucherUsageParams struct {
	VoucherID pgtype.UUID
	UserID    pgtype.UUID
	OrderID   pgtype.UUID
	Amount    int64
}

func (q *Queries) InsertVoucherUsage(ctx context.Context, arg InsertVoucherUsageParams) error {
	_, err := q.db.Exec(ctx, insertVoucherUsage, arg.VoucherID, arg.UserID, arg.OrderID, arg.Amount)
	return err
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var (
		i     Voucher
		value string
	)
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Kind,
		&value,
		&i.MinOrderAmount,
		&i.CategoryID,
		&i.ValidFrom,
		&i.ValidUntil,
		&i.Active,
	)
	if err != nil {
		return Voucher{}, err
	}
	i.Value, err = decimal.NewFromString(value)
	if err != nil {
		return Voucher{}, fmt.Errorf("voucher %s value %q: %w", i.Code, value, err)
	}
	return i, nil
}
