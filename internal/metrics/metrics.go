package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/droplet-predictor/internal/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	predictionsTotal    *prometheus.CounterVec
	predictionDuration  *prometheus.HistogramVec
	modelLoadsTotal     *prometheus.CounterVec
	modelLoadDuration   *prometheus.HistogramVec
	cachedModels        prometheus.Gauge
	circuitBreakerState *prometheus.GaugeVec
	historyWritesTotal  *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New builds a Metrics with its own registry. Get should be used outside
// tests so every component reports to the same registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_predictions_total",
				Help: "Predictions served, by configuration and outcome kind",
			},
			[]string{"data_type", "outcome"},
		),
		predictionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predictor_prediction_duration_seconds",
				Help:    "End-to-end prediction latency including any first load",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"data_type"},
		),
		modelLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_model_loads_total",
				Help: "Model and scaler load attempts, by configuration and outcome",
			},
			[]string{"data_type", "outcome"},
		),
		modelLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predictor_model_load_duration_seconds",
				Help:    "Duration of scaler fit plus weight load",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"data_type"},
		),
		cachedModels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predictor_cached_models",
			Help: "Configurations with a cached model and scaler",
		}),
		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "predictor_circuit_breaker_state",
				Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
			},
			[]string{"name"},
		),
		historyWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_history_writes_total",
				Help: "Prediction history writes, by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.predictionsTotal,
		m.predictionDuration,
		m.modelLoadsTotal,
		m.modelLoadDuration,
		m.cachedModels,
		m.circuitBreakerState,
		m.historyWritesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObservePrediction(dataType, outcome string, d time.Duration) {
	m.predictionsTotal.WithLabelValues(dataType, outcome).Inc()
	m.predictionDuration.WithLabelValues(dataType).Observe(d.Seconds())
}

func (m *Metrics) ObserveModelLoad(dataType, outcome string, d time.Duration) {
	m.modelLoadsTotal.WithLabelValues(dataType, outcome).Inc()
	m.modelLoadDuration.WithLabelValues(dataType).Observe(d.Seconds())
}

func (m *Metrics) SetCachedModels(n int) {
	m.cachedModels.Set(float64(n))
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) IncHistoryWrites(outcome string) {
	m.historyWritesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Get().Handler())

	addr := ":" + strconv.Itoa(port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
	return srv
}
