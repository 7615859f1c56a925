// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sompos/internal/core/id"
	"sompos/internal/domain/catalog"
	"sompos/pkg/logger"
)

// ProductsChannel is notified by the products table trigger.
// Payload is the product id, or empty to flush everything.
const ProductsChannel = "products_changed"

// ProductCache is a read-through catalog.Provider. Entries are dropped when
// the catalog service changes a product, so settlement never sees a stale
// unit descriptor for longer than the NOTIFY round-trip.
type ProductCache struct {
	source catalog.Provider
	pool   *pgxpool.Pool

	mu       sync.RWMutex
	products map[id.ID]catalog.Product

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ catalog.Provider = (*ProductCache)(nil)

// NewProductCache wraps source. pool may be nil, in which case Start is a
// no-op and entries live until Flush.
func NewProductCache(source catalog.Provider, pool *pgxpool.Pool) *ProductCache {
	return &ProductCache{
		source:   source,
		pool:     pool,
		products: make(map[id.ID]catalog.Product),
	}
}

// GetProducts serves cached products and loads the rest from source in one call.
func (c *ProductCache) GetProducts(ctx context.Context, storeID id.ID, ids []id.ID) (map[id.ID]catalog.Product, error) {
	out := make(map[id.ID]catalog.Product, len(ids))
	var missing []id.ID

	c.mu.RLock()
	for _, pid := range ids {
		if p, ok := c.products[pid]; ok && p.StoreID == storeID {
			out[pid] = p
			continue
		}
		missing = append(missing, pid)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.source.GetProducts(ctx, storeID, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for pid, p := range loaded {
		c.products[pid] = p
		out[pid] = p
	}
	c.mu.Unlock()
	return out, nil
}

// Invalidate drops one product.
func (c *ProductCache) Invalidate(productID id.ID) {
	c.mu.Lock()
	delete(c.products, productID)
	c.mu.Unlock()
}

// Flush drops every entry.
func (c *ProductCache) Flush() {
	c.mu.Lock()
	c.products = make(map[id.ID]catalog.Product)
	c.mu.Unlock()
}

// Len returns the number of cached products.
func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Start begins listening for invalidations.
func (c *ProductCache) Start(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "product cache started")
	return nil
}

// Stop gracefully stops the listener.
func (c *ProductCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Info(context.Background(), "product cache stopped")
}

func (c *ProductCache) listenLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			sleep(c.ctx, time.Second)
			continue
		}

		if _, err := conn.Exec(c.ctx, "LISTEN "+ProductsChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			sleep(c.ctx, time.Second)
			continue
		}

		// Anything cached before LISTEN may already be stale.
		c.Flush()
		logger.Info(c.ctx, "listening for product changes", "channel", ProductsChannel)

		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *ProductCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// idle timeout
				continue
			}
			logger.Warn(c.ctx, "notification wait failed, reconnecting", "error", err)
			return
		}
		c.handleNotification(n.Channel, n.Payload)
	}
}

func (c *ProductCache) handleNotification(channel, payload string) {
	if channel != ProductsChannel {
		return
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		c.Flush()
		return
	}
	pid, err := id.Parse(payload)
	if err != nil {
		logger.Warn(context.Background(), "malformed product notification, flushing cache", "payload", payload)
		c.Flush()
		return
	}
	c.Invalidate(pid)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
