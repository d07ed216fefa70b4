package catalog

import (
	"context"
	"errors"
	"fmt"
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

var (
	// ErrProductNotFound is returned when the product or variant does not exist or is unlisted.
	ErrProductNotFound = errors.New("product not found")
	// ErrOutOfStock is returned when the product or variant has no sellable stock.
	ErrOutOfStock = errors.New("product out of stock")
)

type queryProvider interface {
	GetProductForCart(ctx context.Context, id pgtype.UUID) (db.Product, error)
	GetVariantForCart(ctx context.Context, id pgtype.UUID) (db.ProductVariant, error)
}

// Product is the pricing snapshot a cart needs for one product or variant.
type Product struct {
	ProductID       uuid.UUID  `json:"productId"`
	VariantID       *uuid.UUID `json:"variantId,omitempty"`
	Name            string     `json:"name"`
	UnitPrice       int64      `json:"unitPrice"`
	CategoryID      *uuid.UUID `json:"categoryId,omitempty"`
	Stock           int32      `json:"stock"`
	RequiresVariant bool       `json:"requiresVariant"`
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Service answers product lookups for the cart.
type Service struct {
	queries queryProvider
	cache   *cache.Cache
	guard   *resilience.Guard
	log     zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries queryProvider
	Cache   *cache.Cache
	Guard   *resilience.Guard
	Logger  zerolog.Logger
}

// NewService constructs a catalog Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		queries: cfg.Queries,
		cache:   cfg.Cache,
		guard:   cfg.Guard,
		log:     cfg.Logger,
	}
}

// LookupProduct resolves price, category and stock for a product and optional
// variant. A product that requires a variant but was looked up without one is
// returned with RequiresVariant set and no error.
func (s *Service) LookupProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (Product, error) {
	if s == nil || s.queries == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	start := time.Now()
	key := cache.KeyProduct(productID, variantID)

	var p Product
	ok, err := s.cache.GetJSON(ctx, key, &p)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if ok {
		obs.ObserveLookup("catalog", "cache", start)
	} else {
		p, err = s.load(ctx, productID, variantID)
		obs.ObserveLookup("catalog", "db", start)
		if err != nil {
			return Product{}, err
		}
		if err := s.cache.SetJSON(ctx, key, p); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
		}
	}
	if p.RequiresVariant {
		return p, nil
	}
	if !p.InStock() {
		return p, ErrOutOfStock
	}
	return p, nil
}

// Invalidate drops cached snapshots, e.g. after stock was decremented.
func (s *Service) Invalidate(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) {
	if s == nil {
		return
	}
	keys := []string{cache.KeyProduct(productID, nil)}
	if variantID != nil {
		keys = append(keys, cache.KeyProduct(productID, variantID))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Str("product_id", productID.String()).Msg("catalog_cache_invalidate_failed")
	}
}

func (s *Service) load(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (Product, error) {
	var (
		product db.Product
		variant db.ProductVariant
	)
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		product, err = s.queries.GetProductForCart(ctx, toPgUUID(productID))
		if err != nil {
			return err
		}
		if variantID == nil {
			return nil
		}
		variant, err = s.queries.GetVariantForCart(ctx, toPgUUID(*variantID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("lookup product %s: %w", productID, err)
	}
	if !product.Active {
		return Product{}, ErrProductNotFound
	}

	p := Product{
		ProductID:  productID,
		Name:       product.Name,
		UnitPrice:  product.Price,
		CategoryID: fromPgUUID(product.CategoryID),
		Stock:      product.Stock,
	}
	if variantID == nil {
		p.RequiresVariant = product.HasVariants
		return p, nil
	}
	if !variant.ProductID.Valid || uuid.UUID(variant.ProductID.Bytes) != productID {
		return Product{}, fmt.Errorf("variant %s does not belong to product: %w", variantID, ErrProductNotFound)
	}
	id := *variantID
	p.VariantID = &id
	p.Name = product.Name + " - " + variant.Name
	p.UnitPrice = variant.Price
	p.Stock = variant.Stock
	return p, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPgUUID(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
