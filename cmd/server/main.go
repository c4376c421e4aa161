package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monetcore/internal/config"
	"monetcore/internal/handler"
	"monetcore/internal/infrastructure/cache"
	"monetcore/internal/infrastructure/database"
	"monetcore/internal/infrastructure/mq"
	"monetcore/internal/job"
	"monetcore/internal/logger"
	"monetcore/internal/service"
	"monetcore/pkg/idgen"

	"github.com/google/uuid"
)

func main() {
	// 加载配置
	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg, "monetcore-api")

	// 初始化 ID 生成器
	if err := idgen.Init(1); err != nil {
		log.Fatal().Err(err).Msg("初始化 ID 生成器失败")
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化数据库失败")
	}

	rdb, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化 Redis 失败")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	svcs := service.New(db, rdb, cfg, log)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	if cfg.Kafka.Enabled {
		publisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("初始化 Kafka 生产者失败")
		}
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(db, publisher, cfg, logger.Component(log, "outbox"))
		go outboxSender.Start(ctx)
	} else {
		log.Warn().Msg("Kafka 未启用，事件保留在 outbox 表中")
	}

	sweeper := job.NewSweeper(svcs.Ledger, rdb, instanceID(), cfg, logger.Component(log, "sweeper"))
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("启动交易补偿任务失败")
	}

	router := handler.SetupRouter(svcs, cfg, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("服务启动失败")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("正在关闭服务...")

	cancel()
	<-sweeper.Stop().Done()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务关闭异常")
	}

	log.Info().Msg("服务已关闭")
}

func configPath() string {
	if p := os.Getenv("MONET_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

// instanceID 作为任务锁的持有者标识
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "monetcore"
	}
	return host + "-" + uuid.NewString()[:8]
}
