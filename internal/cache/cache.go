// Package cache exposes typed operations over the wire client. All state the
// admission core keeps lives behind these operations as TTL-bearing entries.
//
// Error policy: a failed read degrades to "not found" so callers re-validate,
// a failed write is logged and swallowed. Nothing here surfaces a cache
// failure to the admission path.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tenantgate/internal/resp"
	"tenantgate/pkg/log"
)

// Value is the tri-state result of a Get: absent, boolean, or raw string.
type Value struct {
	Present bool
	IsBool  bool
	Bool    bool
	Raw     string
}

type Cache struct {
	pool *Pool
	log  log.Logger
}

func New(pool *Pool, logger log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		pool: pool,
		log:  logger,
	}
}

// Get reads key. "true"/"false" payloads decode to booleans, anything else
// passes through raw. Errors degrade to an absent Value.
func (c *Cache) Get(ctx context.Context, key string) Value {
	reply, err := c.execute(ctx, "GET", key)
	if err != nil {
		c.log.Warnf("Cache get %s failed, treating as miss: %v", key, err)
		return Value{}
	}

	raw, ok := reply.(string)
	if !ok {
		return Value{}
	}

	switch raw {
	case "true":
		return Value{Present: true, IsBool: true, Bool: true, Raw: raw}
	case "false":
		return Value{Present: true, IsBool: true, Bool: false, Raw: raw}
	default:
		return Value{Present: true, Raw: raw}
	}
}

// Set replaces key's value and resets its TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if _, err := c.execute(ctx, "SETEX", key, seconds(ttl), value); err != nil {
		c.log.Errorf("Cache set %s failed: %v", key, err)
	}
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	reply, err := c.execute(ctx, "EXISTS", key)
	if err != nil {
		c.log.Warnf("Cache exists %s failed, treating as miss: %v", key, err)
		return false
	}
	n, ok := reply.(int64)
	return ok && n > 0
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if _, err := c.execute(ctx, "DEL", key); err != nil {
		c.log.Errorf("Cache delete %s failed: %v", key, err)
	}
}

// SetAdd adds member to the set at key. A positive ttl is applied with a
// separate EXPIRE round trip; the pair is not atomic.
func (c *Cache) SetAdd(ctx context.Context, key, member string, ttl time.Duration) {
	if _, err := c.execute(ctx, "SADD", key, member); err != nil {
		c.log.Errorf("Cache set-add %s failed: %v", key, err)
		return
	}
	if ttl > 0 {
		c.Expire(ctx, key, ttl)
	}
}

func (c *Cache) SetCard(ctx context.Context, key string) int {
	reply, err := c.execute(ctx, "SCARD", key)
	if err != nil {
		c.log.Warnf("Cache set-card %s failed, treating as empty: %v", key, err)
		return 0
	}
	n, ok := reply.(int64)
	if !ok {
		return 0
	}
	return int(n)
}

func (c *Cache) SetIsMember(ctx context.Context, key, member string) bool {
	reply, err := c.execute(ctx, "SISMEMBER", key, member)
	if err != nil {
		c.log.Warnf("Cache set-is-member %s failed, treating as miss: %v", key, err)
		return false
	}
	n, ok := reply.(int64)
	return ok && n == 1
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) {
	if _, err := c.execute(ctx, "EXPIRE", key, seconds(ttl)); err != nil {
		c.log.Errorf("Cache expire %s failed: %v", key, err)
	}
}

// Ping checks backend reachability. Unlike the typed operations it returns
// the error, for health reporting.
func (c *Cache) Ping(ctx context.Context) error {
	reply, err := c.execute(ctx, "PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected ping reply %v", reply)
	}
	return nil
}

func (c *Cache) execute(ctx context.Context, args ...string) (interface{}, error) {
	client, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	reply, err := client.Execute(ctx, args...)
	broken := err != nil && !resp.IsServerError(err)
	c.pool.Release(client, broken)

	return reply, err
}

func seconds(ttl time.Duration) string {
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
