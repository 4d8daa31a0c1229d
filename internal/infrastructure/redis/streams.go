package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
)

// SettlementProducer publishes sale outcomes for the kiosk controller, and
// sale requests that could not be read to a dead-letter stream.
type SettlementProducer struct {
	client      *redis.Client
	stream      string
	deadLetters string
}

func NewSettlementProducer(client *redis.Client, stream string, deadLetters string) *SettlementProducer {
	return &SettlementProducer{client: client, stream: stream, deadLetters: deadLetters}
}

func (p *SettlementProducer) PublishSettlement(ctx context.Context, out domainSale.Outcome) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: SettlementValues(out, time.Now()),
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish settlement: %w", err)
	}
	return nil
}

func (p *SettlementProducer) PublishDeadLetter(ctx context.Context, msg redis.XMessage, reason string) error {
	values, err := DeadLetterValues(msg, reason, time.Now())
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.deadLetters,
		Values: values,
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// StreamConsumer reads sale requests through a consumer group.
type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string {
	return c.stream
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns at most one new message; sales run one at a time.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ReadPending returns the entries this consumer was given but never acked,
// oldest first. After a restart these are the sales the previous run did
// not finish.
func (c *StreamConsumer) ReadPending(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, "0"},
		Block:    -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending entries: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

// Claim takes over entries any consumer of the group has left pending for
// at least minIdle.
func (c *StreamConsumer) Claim(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	var claimed []redis.XMessage
	start := "0-0"
	for {
		messages, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim messages: %w", err)
		}
		claimed = append(claimed, messages...)
		if next == "" || next == "0-0" {
			return claimed, nil
		}
		start = next
	}
}
