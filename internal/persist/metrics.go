package persist

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/world-persist/internal/logging"
)

// Metrics экспортирует метрики очереди и worker-а в Prometheus.
//
// Метрики:
// * persist_queue_length — gauge, текущая длина очереди
// * persist_queue_capacity — gauge, текущая ёмкость кольцевого буфера
// * persist_queue_grows_total — counter, число удвоений буфера
// * persist_commands_applied_total{kind} — counter, применённые команды
// * persist_store_errors_total{op} — counter, ошибки Store
// * persist_apply_duration_seconds — histogram, длительность применения команды
type Metrics struct {
	queueLength   prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueGrows    prometheus.Counter
	applied       *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	applyDuration prometheus.Histogram
}

// NewMetrics создает метрики и регистрирует их в дефолтном регистре.
func NewMetrics() *Metrics {
	m := &Metrics{
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "persist",
			Name:      "queue_length",
			Help:      "Текущее количество команд в очереди.",
		}),
		queueCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "persist",
			Name:      "queue_capacity",
			Help:      "Текущая ёмкость кольцевого буфера.",
		}),
		queueGrows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "persist",
			Name:      "queue_grows_total",
			Help:      "Число удвоений кольцевого буфера.",
		}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "persist",
			Name:      "commands_applied_total",
			Help:      "Применённые команды по типам.",
		}, []string{"kind"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "persist",
			Name:      "store_errors_total",
			Help:      "Ошибки операций Store по типам.",
		}, []string{"op"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "persist",
			Name:      "apply_duration_seconds",
			Help:      "Длительность применения одной команды к Store.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}

	prometheus.MustRegister(
		m.queueLength, m.queueCapacity, m.queueGrows,
		m.applied, m.storeErrors, m.applyDuration,
	)
	return m
}

// ServeMetrics поднимает HTTP endpoint /metrics на указанном порту.
func ServeMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		logging.Info("Prometheus metrics на %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Error("Metrics endpoint завершился: %v", err)
		}
	}()
}
