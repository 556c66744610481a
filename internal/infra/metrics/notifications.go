package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsSentTotal, lockContentionTotal) }

var (
	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Launch notifications by channel, level and delivery status.",
		},
		[]string{"channel", "level", "status"}, // status: sent|error
	)

	lockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "launch_lock_contention_total",
			Help: "Total number of times a launch was already being driven by another instance.",
		},
	)
)

func IncNotification(channel, level, status string) {
	notificationsSentTotal.WithLabelValues(norm(channel), norm(level), norm(status)).Inc()
}

func IncLockContention() {
	lockContentionTotal.Inc()
}
