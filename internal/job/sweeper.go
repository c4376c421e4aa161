package job

import (
	"context"
	"errors"
	"time"

	"monetcore/internal/config"
	"monetcore/internal/infrastructure/lock"
	"monetcore/internal/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Settler 由 LedgerService 实现
type Settler interface {
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ResettleUnsettled(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

const (
	sweepJobName   = "transaction-sweeper"
	sweepBatchSize = 100
	sweepTimeout   = 50 * time.Second
)

// Sweeper 定时处理停留在 PENDING 的交易：
// 超时未回调的标记 EXPIRED，已回调但结算中断的按保存的结果码重新结算
type Sweeper struct {
	settler Settler
	rdb     *redis.Client
	owner   string
	cfg     *config.Config
	log     zerolog.Logger
	m       *metrics.Metrics
	cron    *cron.Cron
}

// NewSweeper rdb 为 nil 时不加锁，适用于单实例部署
func NewSweeper(settler Settler, rdb *redis.Client, owner string, cfg *config.Config, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		settler: settler,
		rdb:     rdb,
		owner:   owner,
		cfg:     cfg,
		log:     log,
		m:       metrics.Get(),
		cron:    cron.New(cron.WithSeconds()),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Business.SweepCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.cfg.Business.SweepCron).Msg("交易补偿任务启动")
	return nil
}

// Stop 等待正在执行的任务结束
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.rdb != nil {
		jobLock := lock.NewJobLock(s.rdb, sweepJobName, s.owner, sweepTimeout)
		if err := jobLock.TryLock(ctx); err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				s.m.JobRunsTotal.WithLabelValues(sweepJobName, "skipped").Inc()
				return
			}
			s.log.Error().Err(err).Msg("获取任务锁失败")
			s.m.JobRunsTotal.WithLabelValues(sweepJobName, "error").Inc()
			return
		}
		defer func() {
			if err := jobLock.Unlock(context.Background()); err != nil {
				s.log.Warn().Err(err).Msg("释放任务锁失败")
			}
		}()
	}

	pendingTimeout := time.Duration(s.cfg.Business.PendingTimeoutMinutes) * time.Minute
	expired, err := s.settler.ExpireStale(ctx, pendingTimeout, sweepBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("关闭超时交易失败")
	}

	compensateAfter := time.Duration(s.cfg.Business.CompensateAfterSecond) * time.Second
	settled, rerr := s.settler.ResettleUnsettled(ctx, compensateAfter, sweepBatchSize)
	if rerr != nil {
		s.log.Error().Err(rerr).Msg("补偿结算失败")
	}

	result := "ok"
	if err != nil || rerr != nil {
		result = "error"
	}
	s.m.JobRunsTotal.WithLabelValues(sweepJobName, result).Inc()
	if expired > 0 || settled > 0 {
		s.log.Info().Int("expired", expired).Int("resettled", settled).Msg("交易补偿完成")
	}
}
