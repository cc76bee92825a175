// Package redis owns the go-redis dependency. Adapters take Cmdable and
// never import the driver themselves.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Cmdable is the command surface adapters use.
type Cmdable = redis.Cmdable

// Config holds the parameters needed to connect to a Redis instance.
type Config struct {
	Addr         string
	Password     string
	DB           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client wraps a go-redis client. RDB is the handle adapters issue
// commands through.
type Client struct {
	RDB *redis.Client

	embedded *miniredis.Miniredis
}

// NewClient creates a new Redis client configured from cfg.
func NewClient(cfg Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &Client{RDB: rdb}
}

// NewEmbeddedClient starts an in-process Redis and connects to it. Local
// runs use it when no Redis address is configured; state is lost on Close.
func NewEmbeddedClient(cfg Config) (*Client, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start embedded redis: %w", err)
	}
	cfg.Addr = mr.Addr()
	c := NewClient(cfg)
	c.embedded = mr
	return c, nil
}

// Embedded reports whether the client talks to an in-process server.
func (c *Client) Embedded() bool {
	return c.embedded != nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.RDB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection and stops the embedded server, if any.
func (c *Client) Close() error {
	err := c.RDB.Close()
	if c.embedded != nil {
		c.embedded.Close()
	}
	return err
}
