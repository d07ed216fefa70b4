package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-cart/internal/cache"
)

// Store persists cart sessions as JSON documents in Redis.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Get loads a cart. ErrNotFound is returned for unknown or expired carts.
func (s Store) Get(ctx context.Context, id uuid.UUID) (*Cart, error) {
	if s.R == nil {
		return nil, errors.New("cart store not configured")
	}
	data, err := s.R.Get(ctx, cache.KeyCart(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load cart %s: %w", id, err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", id, err)
	}
	if c.Items == nil {
		c.Items = []LineItem{}
	}
	return &c, nil
}

// Save writes the cart and refreshes its expiry.
func (s Store) Save(ctx context.Context, c *Cart) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", c.ID, err)
	}
	return s.R.Set(ctx, cache.KeyCart(c.ID), data, s.ttl()).Err()
}

// Delete removes the cart session.
func (s Store) Delete(ctx context.Context, id uuid.UUID) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	return s.R.Del(ctx, cache.KeyCart(id)).Err()
}
