package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
)

// Store persists session carts.
type Store interface {
	// Load returns the customer's cart and whether one was stored.
	Load(ctx context.Context, customerID string) ([]LineItem, bool, error)
	Save(ctx context.Context, customerID string, items []LineItem) error
}

// RedisStore keeps carts as JSON documents with a sliding expiry.
type RedisStore struct {
	R   *redis.Client
	TTL time.Duration
}

type storedCart struct {
	Items     []LineItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Load reads the cart and extends its expiry.
func (s RedisStore) Load(ctx context.Context, customerID string) ([]LineItem, bool, error) {
	if s.R == nil {
		return nil, false, errors.New("cart: redis client not configured")
	}
	key := cache.KeyCart(customerID)
	data, err := s.R.GetEx(ctx, key, s.ttl()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cart: load: %w", err)
	}
	var doc storedCart
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("cart: decode: %w", err)
	}
	if doc.Items == nil {
		doc.Items = []LineItem{}
	}
	return doc.Items, true, nil
}

// Save replaces the cart. An empty cart is still stored so that it is not
// reseeded from the bookstore API.
func (s RedisStore) Save(ctx context.Context, customerID string, items []LineItem) error {
	if s.R == nil {
		return errors.New("cart: redis client not configured")
	}
	if items == nil {
		items = []LineItem{}
	}
	data, err := json.Marshal(storedCart{Items: items, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	if err := s.R.Set(ctx, cache.KeyCart(customerID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}
