package mq

import (
	"fmt"

	"monetcore/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 消息发送接口，OutboxSender 依赖它而不是具体的 Kafka 实现
type Publisher interface {
	Publish(topic, key string, value []byte) error
	Close() error
}

// KafkaPublisher 基于 sarama SyncProducer
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher 创建 Kafka 生产者
func NewKafkaPublisher(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1
	kafkaConfig.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return &KafkaPublisher{producer: producer}, nil
}

// NewKafkaPublisherFromProducer 包装已有的 producer（测试用 mocks.SyncProducer）
func NewKafkaPublisherFromProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish 发送消息，同一 key 进入同一分区以保证顺序
func (p *KafkaPublisher) Publish(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
