package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privmsg_messages_sent_total",
			Help: "Total number of messages sent",
		},
		[]string{"kind"}, // kind: compose, reply
	)

	MessageRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privmsg_message_rows_written_total",
			Help: "Total number of per-participant message copies written",
		},
	)

	MessagesTrashed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privmsg_messages_trashed_total",
			Help: "Total number of message copies moved to the trash",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privmsg_notifications_total",
			Help: "Notifications delivered per sink",
		},
		[]string{"sink", "status"}, // status: success, failed
	)

	MessagesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privmsg_purged_rows_total",
			Help: "Total number of message rows removed by the purge job",
		},
	)
)

// RecordSend counts one logical send and the rows it produced.
func RecordSend(kind string, rows int) {
	MessagesSent.WithLabelValues(kind).Inc()
	MessageRowsWritten.Add(float64(rows))
}

func RecordNotification(sink string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	NotificationsSent.WithLabelValues(sink, status).Inc()
}
