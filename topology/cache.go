package topology

import (
	"context"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/retrospect/gateway"
)

// DefaultCacheTTL is the default *minimum* period of time to keep topologies
// in memory after they were last used.
const DefaultCacheTTL = 1 * time.Hour

// Cache is an in-memory cache of gateway topologies, keyed by process
// definition ID.
//
// Topologies change only when a new definition version is deployed, so they
// are cached aggressively and evicted on a TTL rather than invalidated.
type Cache struct {
	// Provider is the upstream provider used to resolve topologies that are
	// not already in the cache.
	Provider Provider

	// TTL is the *minimum* period of time to keep topologies in memory after
	// they were last used. If it is non-positive, DefaultCacheTTL is used.
	TTL time.Duration

	// Logger is the target for log messages about modifications to the
	// cache.
	Logger logging.Logger

	records sync.Map
}

// GetGatewayTopology returns the gateway nodes of the process definition
// with the given ID, resolving them via the upstream provider on a cache
// miss.
//
// The returned slice is shared between callers and must not be modified.
func (c *Cache) GetGatewayTopology(
	ctx context.Context,
	definitionID string,
) ([]gateway.Node, error) {
	rec, err := c.acquire(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	defer rec.release()

	if !rec.populated {
		nodes, err := c.Provider.GetGatewayTopology(ctx, definitionID)
		if err != nil {
			// The record is released without being kept alive, so the
			// failed resolution is not cached.
			return nil, err
		}

		rec.nodes = nodes
		rec.populated = true
	}

	rec.keepAlive()

	return rec.nodes, nil
}

// Run manages evicting idle topologies from the cache until ctx is
// canceled.
func (c *Cache) Run(ctx context.Context) error {
	for {
		if err := linger.Sleep(ctx, c.TTL, DefaultCacheTTL); err != nil {
			return err
		}

		c.records.Range(
			func(_, x interface{}) bool {
				rec := x.(*record)
				rec.evict()
				return true
			},
		)
	}
}

// acquire locks and returns the cache record for the given definition ID.
//
// If the record has already been acquired, it blocks until the record is
// released or ctx is canceled.
func (c *Cache) acquire(ctx context.Context, id string) (*record, error) {
	for {
		rec := &record{
			id:    id,
			cache: c,
		}

		if x, loaded := c.records.LoadOrStore(id, rec); loaded {
			rec = x.(*record)
		} else if logging.IsDebug(c.Logger) {
			logging.Debug(
				c.Logger,
				"topology record added: %s (%p)",
				id,
				rec,
			)
		}

		if err := rec.m.Lock(ctx); err != nil {
			return nil, err
		}

		if rec.state != removed {
			return rec, nil
		}

		// We finally got the lock, but this specific record has been removed
		// from the cache, so we try again, creating a new record if
		// necessary. We still need to unlock the mutex in case there are
		// more blocked acquirers waiting on this record.
		rec.m.Unlock()
	}
}
