package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 结算核心指标
type Metrics struct {
	// 回调
	IngestTotal    *prometheus.CounterVec   // 按渠道、结果
	SettleDuration *prometheus.HistogramVec // 结算事务耗时

	// 钱包
	WalletOpsTotal *prometheus.CounterVec // 按操作、结果
	GoldMoved      *prometheus.CounterVec // 按操作累计金币

	// 兑换码
	RedeemTotal *prometheus.CounterVec // 按结果

	// 推广佣金
	CommissionTotal  prometheus.Counter
	CommissionAmount prometheus.Counter
	PayoutTotal      *prometheus.CounterVec // 按目标状态

	// 后台任务
	OutboxPublishTotal *prometheus.CounterVec // 按结果
	JobRunsTotal       *prometheus.CounterVec // 按任务、结果
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_ingest_total",
				Help: "Total number of provider notifications processed",
			},
			[]string{"provider", "result"}, // result: completed/failed/replayed/rejected/error
		),
		SettleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monetcore_settle_duration_seconds",
				Help:    "Duration of settlement transactions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		WalletOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_wallet_ops_total",
				Help: "Total number of wallet credit/debit operations",
			},
			[]string{"operation", "result"},
		),
		GoldMoved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_wallet_gold_total",
				Help: "Total gold credited or debited",
			},
			[]string{"operation"},
		),

		RedeemTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_redeem_total",
				Help: "Total number of exchange code redemption attempts",
			},
			[]string{"result"},
		),

		CommissionTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monetcore_commission_total",
				Help: "Total number of commissions accrued",
			},
		),
		CommissionAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monetcore_commission_amount_total",
				Help: "Total commission amount accrued",
			},
		),
		PayoutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_payout_total",
				Help: "Total number of payout state changes",
			},
			[]string{"status"},
		),

		OutboxPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_outbox_publish_total",
				Help: "Total number of outbox publish attempts",
			},
			[]string{"result"}, // result: sent/retry/failed
		),
		JobRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monetcore_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "result"},
		),
	}
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Get 全局指标实例，promauto 只能注册一次
func Get() *Metrics {
	once.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}
