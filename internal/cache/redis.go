package cache

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

// InitRedis connects the market data cache. The cache is optional: an empty
// URL leaves Client nil and callers fall back to direct platform reads.
func InitRedis(ctx context.Context, redisURL string) {
	if redisURL == "" {
		log.Println("Redis not configured, market data cache disabled")
		return
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	Client = redis.NewClient(opts)
	if err := Client.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
}
