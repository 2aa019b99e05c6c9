package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 推送投递结果计数
	PushDeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_delivery_total",
			Help: "Total number of push delivery attempts",
		},
		[]string{"source", "result"}, // result: sent, failed, gone
	)

	// 被清理的无效订阅计数
	PushSubscriptionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_subscriptions_pruned_total",
			Help: "Total number of push subscriptions deleted after the push service reported them gone",
		},
	)

	// 提醒检查运行耗时（秒）
	ReminderCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reminder_check_duration_seconds",
			Help:    "Duration of reminder check runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"check", "status"},
	)

	// 意图完成计数
	IntentionCompletionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intention_completion_total",
			Help: "Total number of intention completion requests",
		},
		[]string{"result"}, // result: recorded, already_completed
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12.8s
		},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementPushDelivery 增加推送投递计数
func IncrementPushDelivery(source, result string) {
	PushDeliveryCount.WithLabelValues(source, result).Inc()
}

// AddSubscriptionsPruned 记录被删除的订阅数量
func AddSubscriptionsPruned(n int) {
	PushSubscriptionsPruned.Add(float64(n))
}

// RecordReminderCheck 记录提醒检查耗时
func RecordReminderCheck(check, status string, duration time.Duration) {
	ReminderCheckDuration.WithLabelValues(check, status).Observe(duration.Seconds())
}

// IncrementIntentionCompletion 增加意图完成计数
func IncrementIntentionCompletion(result string) {
	IntentionCompletionCount.WithLabelValues(result).Inc()
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}
