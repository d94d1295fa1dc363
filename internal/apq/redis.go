package apq

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces registry entries in a shared Redis database.
const keyPrefix = "apq:"

// RedisRegistry shares persisted-query registrations across gateway
// instances. Entries carry no TTL: a registered hash stays valid for the
// lifetime of the deployment's query set.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry backed by the given Redis address.
func NewRedisRegistry(addr string) *RedisRegistry {
	return &RedisRegistry{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisRegistryWithClient wraps an existing client, for tests and for
// hosts that manage their own connection options.
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Register implements Registry.
func (r *RedisRegistry) Register(ctx context.Context, hash, queryText string) error {
	if err := r.client.Set(ctx, keyPrefix+hash, queryText, 0).Err(); err != nil {
		return fmt.Errorf("register persisted query: %w", err)
	}
	return nil
}

// Lookup implements Registry.
func (r *RedisRegistry) Lookup(ctx context.Context, hash string) (string, bool, error) {
	text, err := r.client.Get(ctx, keyPrefix+hash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup persisted query: %w", err)
	}
	return text, true, nil
}

// IsRegistered implements Registry.
func (r *RedisRegistry) IsRegistered(ctx context.Context, hash string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+hash).Result()
	if err != nil {
		return false, fmt.Errorf("check persisted query: %w", err)
	}
	return n > 0, nil
}

// CheckReadiness implements observability.ReadinessChecker.
func (r *RedisRegistry) CheckReadiness(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
