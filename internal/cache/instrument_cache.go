// Package cache fronts storage.Adapter.LookupInstrument with an LRU cache,
// grounded on EggsyOnCode-anomi/core/orderbook/registry.go's BuyerCache
// wrapper around github.com/hashicorp/golang-lru.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"tochka-exchange/internal/models"
)

// InstrumentLookuper is the subset of storage.Adapter the cache wraps.
type InstrumentLookuper interface {
	LookupInstrument(ctx context.Context, ticker string) (*models.Instrument, error)
}

// InstrumentCache caches instrument metadata by ticker. Instruments are
// rarely created or deleted relative to how often they're read on the
// admission path (§4.4 validates ticker existence on every order), so a
// small bounded LRU in front of the lookup avoids a roundtrip per order.
type InstrumentCache struct {
	store InstrumentLookuper
	cache *lru.Cache
}

// New builds an InstrumentCache holding up to size entries.
func New(store InstrumentLookuper, size int) (*InstrumentCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument cache: %w", err)
	}
	return &InstrumentCache{store: store, cache: c}, nil
}

// Lookup returns the instrument for ticker, consulting the cache before
// the store. Misses and the not-found case both pass through untouched.
func (c *InstrumentCache) Lookup(ctx context.Context, ticker string) (*models.Instrument, error) {
	if v, ok := c.cache.Get(ticker); ok {
		return v.(*models.Instrument), nil
	}
	ins, err := c.store.LookupInstrument(ctx, ticker)
	if err != nil {
		return nil, err
	}
	c.cache.Add(ticker, ins)
	return ins, nil
}

// Invalidate drops ticker from the cache, called after the admin
// delete-instrument operation (§6.1 DELETE /admin/instrument/{ticker}).
func (c *InstrumentCache) Invalidate(ticker string) {
	c.cache.Remove(ticker)
}
