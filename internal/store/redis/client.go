package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// ClientConfig configures the Redis connection.
type ClientConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// NewClient creates a Redis client and pings the server.
func NewClient(cfg ClientConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := ping(client); err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// NewClientFromURL creates a Redis client from a redis:// URL such as
// "redis://localhost:6379/0" and pings the server.
func NewClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := ping(client); err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("[redis] connected to %s db=%d", opts.Addr, opts.DB)
	return client, nil
}

func ping(client *goredis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
