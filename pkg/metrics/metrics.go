package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operations 交易核心每次操作的結果，outcome 為 "ok" 或 ResultKind 字串
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bank_core_operations_total",
		Help: "Total number of transaction core operations by outcome",
	},
	[]string{"op", "outcome"},
)

// OperationLatency 交易核心操作耗時 (含重試)
var OperationLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "bank_core_operation_latency_seconds",
		Help:    "Latency in seconds of transaction core operations, retries included",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"},
)

// CASRetries 條件更新版本衝突後的重試次數
var CASRetries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bank_core_cas_retries_total",
		Help: "Number of read-validate-write cycles retried after a version conflict",
	},
	[]string{"op"},
)

// Compensations 轉帳補償結果，result 為 "ok" 或 "failed"
var Compensations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bank_core_compensations_total",
		Help: "Number of transfer debit legs reversed after a failed credit leg",
	},
	[]string{"result"},
)

// HTTP request metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bank_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(Operations, OperationLatency, CASRetries, Compensations)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
}

// Handler 回傳 /metrics 使用的 http.Handler
func Handler() http.Handler {
	return promhttp.Handler()
}
