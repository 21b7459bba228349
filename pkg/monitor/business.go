package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义交易生命周期的业务指标
type BusinessMetrics struct {
	TxOutcomeTotal      *prometheus.CounterVec
	TxConfirmDuration   *prometheus.HistogramVec
	SignerRetryTotal    *prometheus.CounterVec
	FeeEstimateTotal    *prometheus.CounterVec
	ActiveFlows         prometheus.Gauge
	OutboxRelayedTotal  *prometheus.CounterVec
	ConstantsRefreshErr *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxOutcomeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_tx_outcome_total",
			Help: "Terminal transaction outcomes",
		}, []string{"chain", "action", "status"}),
		TxConfirmDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_tx_confirm_duration_seconds",
			Help:    "Time from confirm to terminal state",
			Buckets: []float64{1, 6, 12, 30, 60, 120, 300},
		}, []string{"action"}),
		SignerRetryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_tx_signer_retry_total",
			Help: "Signing attempts that asked the user to retry",
		}, []string{"kind"}),
		FeeEstimateTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_fee_estimate_total",
			Help: "Fee estimate queries",
		}, []string{"chain"}),
		ActiveFlows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_tx_active_flows",
			Help: "Confirmation flows that have not reached a terminal state",
		}),
		OutboxRelayedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_outbox_relayed_total",
			Help: "Outbox messages published to MQ",
		}, []string{"topic"}),
		ConstantsRefreshErr: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_chain_constants_refresh_errors_total",
			Help: "Failed chain constant refreshes",
		}, []string{"chain"}),
	}
}

// 以下 helper 在指标未初始化时 (单元测试、CLI) 静默跳过

func ObserveOutcome(chain, action, status string, elapsed time.Duration) {
	if Business == nil {
		return
	}
	Business.TxOutcomeTotal.WithLabelValues(chain, action, status).Inc()
	Business.TxConfirmDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func SignerRetry(kind string) {
	if Business != nil {
		Business.SignerRetryTotal.WithLabelValues(kind).Inc()
	}
}

func FeeEstimate(chain string) {
	if Business != nil {
		Business.FeeEstimateTotal.WithLabelValues(chain).Inc()
	}
}

func FlowStarted() {
	if Business != nil {
		Business.ActiveFlows.Inc()
	}
}

func FlowFinished() {
	if Business != nil {
		Business.ActiveFlows.Dec()
	}
}

func OutboxRelayed(topic string) {
	if Business != nil {
		Business.OutboxRelayedTotal.WithLabelValues(topic).Inc()
	}
}

func ConstantsRefreshFailed(chain string) {
	if Business != nil {
		Business.ConstantsRefreshErr.WithLabelValues(chain).Inc()
	}
}
