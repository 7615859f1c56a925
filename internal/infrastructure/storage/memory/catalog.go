package memory

import (
	"context"
	"sync"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/domain/catalog"
)

// Catalog is a read-mostly product registry implementing catalog.Provider.
// It is not part of the transactional state.
type Catalog struct {
	mu       sync.RWMutex
	products map[id.ID]catalog.Product
}

func newCatalog() *Catalog { return &Catalog{products: make(map[id.ID]catalog.Product)} }

// Catalog returns the product registry.
func (s *Store) Catalog() *Catalog { return s.catalog }

// AddProduct registers or replaces a product.
func (c *Catalog) AddProduct(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *Catalog) GetProducts(_ context.Context, storeID id.ID, ids []id.ID) (map[id.ID]catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[id.ID]catalog.Product, len(ids))
	for _, pid := range ids {
		p, ok := c.products[pid]
		if !ok || p.StoreID != storeID {
			return nil, apperror.NewNotFound("product", pid.String())
		}
		out[pid] = p
	}
	return out, nil
}
