package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"monetcore/internal/config"
	"monetcore/internal/infrastructure/database"
	"monetcore/internal/infrastructure/mq"
	"monetcore/internal/logger"
	"monetcore/internal/service"
	"monetcore/pkg/idgen"

	"github.com/IBM/sarama"
)

// 佣金 worker：消费交易完成事件并入账推广佣金
// 与 API 进程内的监听器互为兜底，重复投递由 transaction_id 唯一约束去重
func main() {
	configPath := os.Getenv("MONET_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg, "monetcore-worker")

	if !cfg.Kafka.Enabled {
		log.Fatal().Msg("kafka.enabled 为 false，worker 无事可做")
	}

	if err := idgen.Init(2); err != nil {
		log.Fatal().Err(err).Msg("初始化 ID 生成器失败")
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化数据库失败")
	}

	// worker 不处理兑换码，不需要 Redis
	svcs := service.New(db, nil, cfg, log)

	consumer, err := mq.NewConsumer(&cfg.Kafka, logger.Component(log, "consumer"))
	if err != nil {
		log.Fatal().Err(err).Msg("初始化 Kafka 消费者失败")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("topic", cfg.Kafka.Topic.TransactionCompleted).Msg("佣金 worker 启动")

	err = consumer.Run(ctx, func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		return svcs.Affiliate.HandleEvent(ctx, msg.Value)
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("消费异常退出")
	}

	if err := consumer.Close(); err != nil {
		log.Error().Err(err).Msg("关闭消费者失败")
	}
	log.Info().Msg("worker 已退出")
}
