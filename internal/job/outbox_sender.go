package job

import (
	"context"
	"time"

	"monetcore/internal/config"
	"monetcore/internal/infrastructure/mq"
	"monetcore/internal/metrics"
	"monetcore/internal/model"
	"monetcore/internal/repository"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox 表，把已提交的交易事件投递到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	log        zerolog.Logger
	m          *metrics.Metrics
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config, log zerolog.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		m:          metrics.Get(),
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info().Msg("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// Flush 发送一批待发送消息，返回成功条数
func (s *OutboxSender) Flush(ctx context.Context) int {
	messages, err := s.outboxRepo.ListByStatus(ctx, model.OutboxStatusPending, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("查询待发送消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, []byte(msg.Payload))
	if err == nil {
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			// 已发出但未标记，下一轮会重复投递，消费端幂等
			s.log.Error().Err(err).Int64("id", msg.ID).Msg("更新消息状态失败")
			return false
		}
		s.m.OutboxPublishTotal.WithLabelValues("sent").Inc()
		s.log.Debug().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Msg("消息发送成功")
		return true
	}

	giveUp, rerr := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.MaxRetryCount)
	if rerr != nil {
		s.log.Error().Err(rerr).Int64("id", msg.ID).Msg("记录发送失败次数失败")
		return false
	}
	if giveUp {
		s.m.OutboxPublishTotal.WithLabelValues("failed").Inc()
		s.log.Error().Err(err).Int64("id", msg.ID).Int("retry", msg.RetryCount+1).Msg("消息超过最大重试次数，标记为失败")
	} else {
		s.m.OutboxPublishTotal.WithLabelValues("retry").Inc()
		s.log.Warn().Err(err).Int64("id", msg.ID).Msg("消息发送失败，稍后重试")
	}
	return false
}
