package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// EventChannel is the pub/sub channel carrying live events for topic.
func EventChannel(topic string) string {
	return fmt.Sprintf("events:%s", topic)
}

// RevokedGrantKey is the denylist key for sessions minted from a revoked grant.
func RevokedGrantKey(grantID string) string {
	return fmt.Sprintf("revoked_grant:%s", grantID)
}

// RevokeGrant denylists a grant for ttl, which should cover the longest session minted from it.
func (c *Client) RevokeGrant(ctx context.Context, grantID string, ttl time.Duration) error {
	return c.Set(ctx, RevokedGrantKey(grantID), "1", ttl).Err()
}

func (c *Client) IsGrantRevoked(ctx context.Context, grantID string) (bool, error) {
	n, err := c.Exists(ctx, RevokedGrantKey(grantID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
