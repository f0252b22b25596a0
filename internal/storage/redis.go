package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maneesh/musicbox/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisClient publishes upload events on a Redis pub/sub channel
type RedisClient struct {
	client  *redis.Client
	channel string
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int, channel string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisPublisher(client, channel), nil
}

// NewRedisPublisher wraps an existing client
func NewRedisPublisher(client *redis.Client, channel string) *RedisClient {
	return &RedisClient{client: client, channel: channel}
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// PublishUploadEvent publishes the event as JSON with tracing
func (rc *RedisClient) PublishUploadEvent(ctx context.Context, event *models.UploadEvent) error {
	ctx, span := tracer.Start(ctx, "redis.publish_upload_event",
		trace.WithAttributes(
			attribute.String("channel", rc.channel),
			attribute.String("upload_id", event.UploadID),
			attribute.String("mirror", string(event.Mirror)),
		),
	)
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := rc.client.Publish(ctx, rc.channel, data).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	span.SetAttributes(attribute.Int64("receivers", receivers))
	return nil
}

// Subscribe returns a channel of decoded upload events. The subscription
// ends when ctx is cancelled.
func (rc *RedisClient) Subscribe(ctx context.Context) (<-chan *models.UploadEvent, error) {
	sub := rc.client.Subscribe(ctx, rc.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *models.UploadEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.UploadEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
