package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

// Querier captures the database methods required by the voucher service.
type Querier interface {
	GetVoucherByCode(ctx context.Context, code string) (db.Voucher, error)
	ListAvailableVouchers(ctx context.Context, at time.Time) ([]db.Voucher, error)
	CountVoucherUsageByUser(ctx context.Context, arg db.CountVoucherUsageByUserParams) (int64, error)
}

// Service resolves voucher codes for the cart engine.
type Service struct {
	Q     Querier
	Cache *cache.Cache
	Guard *resilience.Guard
	Now   func() time.Time
	Log   zerolog.Logger
}

// Lookup resolves code to its rule. Codes match case-insensitively.
func (s *Service) Lookup(ctx context.Context, code string) (Rule, error) {
	if s == nil || s.Q == nil {
		return Rule{}, errors.New("voucher service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Rule{}, fmt.Errorf("code is required: %w", ErrVoucherNotFound)
	}
	start := time.Now()
	key := cache.KeyVoucher(normalized)
	var cached Rule
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err != nil {
		s.Log.Warn().Err(err).Str("code", normalized).Msg("voucher_cache_read_failed")
	} else if ok {
		obs.ObserveLookup("voucher", "cache", start)
		return cached, nil
	}

	var row db.Voucher
	err := s.Guard.Do(ctx, func(ctx context.Context) error {
		var err error
		row, err = s.Q.GetVoucherByCode(ctx, normalized)
		return err
	})
	obs.ObserveLookup("voucher", "db", start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrVoucherNotFound
		}
		return Rule{}, fmt.Errorf("lookup voucher %s: %w", normalized, err)
	}
	rule, err := RuleFromModel(row)
	if err != nil {
		return Rule{}, err
	}
	if err := s.Cache.SetJSON(ctx, key, rule); err != nil {
		s.Log.Warn().Err(err).Str("code", normalized).Msg("voucher_cache_write_failed")
	}
	return rule, nil
}

// HasUsed reports whether userID already redeemed the voucher.
func (s *Service) HasUsed(ctx context.Context, voucherID uuid.UUID, userID string) (bool, error) {
	if s == nil || s.Q == nil {
		return false, errors.New("voucher service not configured")
	}
	if strings.TrimSpace(userID) == "" || voucherID == uuid.Nil {
		return false, nil
	}
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return false, fmt.Errorf("invalid user id: %w", err)
	}
	var used int64
	err = s.Guard.Do(ctx, func(ctx context.Context) error {
		var err error
		used, err = s.Q.CountVoucherUsageByUser(ctx, db.CountVoucherUsageByUserParams{
			VoucherID: pgtype.UUID{Bytes: voucherID, Valid: true},
			UserID:    pgtype.UUID{Bytes: uid, Valid: true},
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return used > 0, nil
}

// Available lists vouchers that are active and inside their window right now.
func (s *Service) Available(ctx context.Context) ([]Rule, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("voucher service not configured")
	}
	var rows []db.Voucher
	err := s.Guard.Do(ctx, func(ctx context.Context) error {
		var err error
		rows, err = s.Q.ListAvailableVouchers(ctx, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := RuleFromModel(row)
		if err != nil {
			s.Log.Warn().Err(err).Str("code", row.Code).Msg("voucher_row_skipped")
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RuleFromModel converts the database row into a Rule used for evaluation.
func RuleFromModel(v db.Voucher) (Rule, error) {
	kind, err := ParseKind(v.Kind)
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{
		Code:           NormalizeCode(v.Code),
		Kind:           kind,
		Value:          v.Value,
		MinOrderAmount: v.MinOrderAmount,
		Active:         v.Active,
	}
	if v.ID.Valid {
		rule.ID = uuid.UUID(v.ID.Bytes)
	}
	if v.CategoryID.Valid {
		id := uuid.UUID(v.CategoryID.Bytes)
		rule.CategoryID = &id
	}
	if v.ValidFrom.Valid {
		from := v.ValidFrom.Time
		rule.ValidFrom = &from
	}
	if v.ValidUntil.Valid {
		until := v.ValidUntil.Time
		rule.ValidUntil = &until
	}
	return rule, nil
}
