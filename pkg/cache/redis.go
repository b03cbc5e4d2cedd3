// ==============================================================================
// REDIS CONNECTION - pkg/cache/redis.go
// ==============================================================================
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect dials Redis and verifies the connection. The returned client is
// shared by the snapshot cache and the rate limiter.
func Connect(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
