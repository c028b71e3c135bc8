// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "section_studio_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// TurnsTotal 按结果统计对话轮次：ok、deduplicated、generation_failed、error。
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "section_studio_conversation_turns_total",
		Help: "Conversation turns by result.",
	}, []string{"result"})

	StaleWriteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "section_studio_stale_write_retries_total",
		Help: "Message writes retried after a concurrent update.",
	})

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "section_studio_embed_gate_decisions_total",
		Help: "Embed gate decisions per section.",
	}, []string{"decision"})

	IndexTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "section_studio_index_tasks_total",
		Help: "Conversation index tasks processed by action and result.",
	}, []string{"action", "result"})
)

// Handler 返回 /metrics 的处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
