package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// paymentStatusTTL covers the client's 2s/120s polling loop with headroom.
const paymentStatusTTL = 10 * time.Minute

// SetupCache initializes the connection to the Dragonfly cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Dragonfly cache: %v", err)
	} else {
		log.Printf("Successfully connected to Dragonfly cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

func paymentStatusKey(outTradeNo string) string {
	return "payment:status:" + outTradeNo
}

// SetPaymentStatus records the latest observed status for an in-flight
// payment so the status poll endpoint can answer without a store round trip.
func SetPaymentStatus(outTradeNo, status string) error {
	return Set(paymentStatusKey(outTradeNo), status, paymentStatusTTL)
}

// GetPaymentStatus returns the cached status, or redis.Nil when unknown.
func GetPaymentStatus(outTradeNo string) (string, error) {
	return Get(paymentStatusKey(outTradeNo))
}
