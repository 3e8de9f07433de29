package catalog

import (
	"context"
	"sync"

	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// MemoryCatalog prices gifts from a fixed table, usually loaded from config.
type MemoryCatalog struct {
	mu     sync.RWMutex
	prices map[shared.GiftID]int64
}

func NewMemoryCatalog(prices map[string]int64) *MemoryCatalog {
	c := &MemoryCatalog{prices: make(map[shared.GiftID]int64, len(prices))}
	for id, price := range prices {
		if price > 0 {
			c.prices[shared.GiftID(id)] = price
		}
	}
	return c
}

func (c *MemoryCatalog) Price(ctx context.Context, gift shared.GiftID) (int64, error) {
	if err := gift.Validate(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	price, exists := c.prices[gift]
	if !exists {
		return 0, economy.ErrGiftNotFound
	}
	return price, nil
}

// Set adds or reprices a gift.
func (c *MemoryCatalog) Set(gift shared.GiftID, price int64) error {
	if err := gift.Validate(); err != nil {
		return err
	}
	if price <= 0 {
		return economy.ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[gift] = price
	return nil
}
