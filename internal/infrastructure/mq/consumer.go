package mq

import (
	"context"
	"errors"
	"fmt"

	"monetcore/internal/config"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Handler 处理单条消息；返回错误时不提交 offset，消息会被重新投递
type Handler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer 消费者组封装
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	log    zerolog.Logger
}

// NewConsumer 创建消费者组
func NewConsumer(cfg *config.KafkaConfig, log zerolog.Logger) (*Consumer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = sarama.V2_8_0_0
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 消费者组失败: %w", err)
	}
	return &Consumer{
		group:  group,
		topics: []string{cfg.Topic.TransactionCompleted},
		log:    log,
	}, nil
}

// Run 阻塞消费直到 ctx 取消
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Error().Err(err).Msg("消费者组错误")
		}
	}()

	h := &groupHandler{handler: handler, log: c.log}
	for {
		if err := c.group.Consume(ctx, c.topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler Handler
	log     zerolog.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler(session.Context(), msg); err != nil {
				// 不标记 offset，rebalance 或重启后重新消费
				h.log.Error().Err(err).
					Str("topic", msg.Topic).
					Int32("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("消息处理失败")
				return err
			}
			session.MarkMessage(msg, "")
		}
	}
}
