package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var Redis *redis.Client

// InitRedis initializes the shared redis client used for the price
// last-value cache and the event cursor mirror.
func InitRedis() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal(fmt.Sprintf("Failed to connect to redis at %s:", addr), err)
	}

	Redis = client
	log.Printf("Successfully connected to redis at %s", addr)
}
