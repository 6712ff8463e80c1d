package activity

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher PUBLISHes activity on "<prefix><room>". Nothing in this
// process subscribes; fan-out to members stays in the hub.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Channel(room string) string {
	return p.prefix + room
}

func (p *RedisPublisher) Publish(ctx context.Context, room string, payload []byte) error {
	return p.client.Publish(ctx, p.Channel(room), payload).Err()
}
