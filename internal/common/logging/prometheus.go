package logging

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	logMessagesOnce    sync.Once
	logMessagesCounter *prometheus.CounterVec
)

// PrometheusHook implements logrus.Hook, counting log lines by level.
type PrometheusHook struct {
	counter *prometheus.CounterVec
}

// NewPrometheusHook returns a hook backed by a process-wide counter vector, registering it on first use.
func NewPrometheusHook() *PrometheusHook {
	logMessagesOnce.Do(func() {
		logMessagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "log_messages",
			Help: "Total number of log lines logged by level",
		}, []string{"level"})
		prometheus.MustRegister(logMessagesCounter)
	})
	return &PrometheusHook{counter: logMessagesCounter}
}

func (h *PrometheusHook) Levels() []log.Level {
	return []log.Level{log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel}
}

func (h *PrometheusHook) Fire(entry *log.Entry) error {
	h.counter.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
