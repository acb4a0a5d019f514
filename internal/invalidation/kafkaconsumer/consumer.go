// Package kafkaconsumer expires cache timestamps in response to
// invalidation events published by remote writers.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/openpoi/placecache/internal/core/observability"
	"github.com/openpoi/placecache/internal/invalidation"
)

// TimestampDropper is the slice of the local store the consumer needs.
type TimestampDropper interface {
	DropTimestamp(ctx context.Context, key string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	store  TimestampDropper
}

func New(cfg Config, logger *slog.Logger, store TimestampDropper) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, store: store}
}

// Start consumes invalidation events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("kafkaconsumer: missing store")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne, logger: c.logger}

	c.logger.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single invalidation message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveInvalidation("unknown", "decode_error")
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.ObserveInvalidation(ev.Entry, "invalid")
		return fmt.Errorf("invalid event: %w", err)
	}

	if err := c.store.DropTimestamp(ctx, ev.Entry); err != nil {
		observability.ObserveInvalidation(ev.Entry, "store_error")
		return fmt.Errorf("drop timestamp %q: %w", ev.Entry, err)
	}

	observability.ObserveInvalidation(ev.Entry, "ok")
	c.logger.Debug("cache entry invalidated",
		"entry", ev.Entry, "op", ev.Op, "source", ev.Source,
		"partition", msg.Partition, "offset", msg.Offset)
	return nil
}
