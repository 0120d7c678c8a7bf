// Package redis shares endpoint reachability between processes through Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// DefaultStateTTL is how long an endpoint mark lives without being refreshed.
const DefaultStateTTL = 24 * time.Hour

// Client wraps Redis operations for endpoint state.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	KeyPrefix string        `yaml:"key_prefix"`
	StateTTL  time.Duration `yaml:"state_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg Config) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "framerpc"
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &Client{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) endpointKey(address string) string {
	return fmt.Sprintf("%s:endpoint:%s", c.prefix, address)
}

// Save stores an endpoint's reachability marks. It implements routing.StateStore.
func (c *Client) Save(ctx context.Context, ep domain.Endpoint) error {
	key := c.endpointKey(ep.Address)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeEndpoint(ep))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// Load returns the stored marks for address. It implements routing.StateStore.
func (c *Client) Load(ctx context.Context, address string) (domain.Endpoint, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, c.endpointKey(address)).Result()
	if err != nil {
		return domain.Endpoint{}, false, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return domain.Endpoint{}, false, nil
	}

	ep, err := decodeEndpoint(address, fields)
	if err != nil {
		return domain.Endpoint{}, false, err
	}
	return ep, true, nil
}

// Forget removes the stored marks for address.
func (c *Client) Forget(ctx context.Context, address string) error {
	return c.rdb.Del(ctx, c.endpointKey(address)).Err()
}

func encodeEndpoint(ep domain.Endpoint) map[string]any {
	var failedAt int64
	if !ep.LastFailureAt.IsZero() {
		failedAt = ep.LastFailureAt.UnixMilli()
	}
	return map[string]any{
		"reachable":       strconv.FormatBool(ep.Reachable),
		"last_failure_at": strconv.FormatInt(failedAt, 10),
	}
}

func decodeEndpoint(address string, fields map[string]string) (domain.Endpoint, error) {
	ep := domain.Endpoint{Address: address, Reachable: true}

	if v, ok := fields["reachable"]; ok {
		reachable, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Endpoint{}, fmt.Errorf("invalid reachable flag %q: %w", v, err)
		}
		ep.Reachable = reachable
	}
	if v, ok := fields["last_failure_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Endpoint{}, fmt.Errorf("invalid last_failure_at %q: %w", v, err)
		}
		if ms > 0 {
			ep.LastFailureAt = time.UnixMilli(ms)
		}
	}

	return ep, nil
}
