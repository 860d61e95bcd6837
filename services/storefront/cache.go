package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedCatalog is a read-through cache in front of the product store. Stock
// values served from it are snapshots; quantity clamping against them is a UX
// guard, never the authority. The database remains the system of record.
type CachedCatalog struct {
	primary Catalog
	client  *redis.Client
	ttl     time.Duration
}

func NewCachedCatalog(primary Catalog, client *redis.Client, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{primary: primary, client: client, ttl: ttl}
}

const productsCacheKey = "catalog:products"

func productCacheKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}

func (c *CachedCatalog) ListProducts(ctx context.Context) ([]Product, error) {
	cached, err := c.client.Get(ctx, productsCacheKey).Bytes()
	if err == nil {
		var products []Product
		if err := json.Unmarshal(cached, &products); err == nil {
			return products, nil
		}
	}

	products, err := c.primary.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(products); err == nil {
		c.client.Set(ctx, productsCacheKey, data, c.ttl)
	}
	return products, nil
}

func (c *CachedCatalog) GetProduct(ctx context.Context, id int64) (Product, error) {
	key := productCacheKey(id)
	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p Product
		if err := json.Unmarshal(cached, &p); err == nil {
			return p, nil
		}
	}

	p, err := c.primary.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}

	if data, err := json.Marshal(p); err == nil {
		c.client.Set(ctx, key, data, c.ttl)
	}
	return p, nil
}

// Invalidate drops cached entries after stock changed, so the next view sees a
// fresher snapshot.
func (c *CachedCatalog) Invalidate(ctx context.Context, id int64) {
	c.client.Del(ctx, productsCacheKey, productCacheKey(id))
}
