package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the contract domain. All observers are nil-receiver safe so
// wiring metrics stays optional.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	contractsCreated   prometheus.Counter
	contractsSigned    *prometheus.CounterVec
	contractsActivated prometheus.Counter
	contractsExpired   prometheus.Counter
	paymentsRecorded   prometheus.Counter
	paymentsAmount     prometheus.Counter
	overdueSwept       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	contractsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contracts_created_total",
		Help: "Total contracts created",
	})

	contractsSigned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contracts_signed_total",
		Help: "Total signature slots filled, by signer role",
	}, []string{"role"})

	contractsActivated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contracts_activated_total",
		Help: "Total contracts activated by dual signature",
	})

	contractsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contracts_expired_total",
		Help: "Total contracts expired past their approval deadline",
	})

	paymentsRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Total installment payments recorded",
	})

	paymentsAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_amount_minor_units_total",
		Help: "Sum of recorded payment amounts in minor currency units",
	})

	overdueSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "installments_overdue_total",
		Help: "Total installments reclassified as overdue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, contractsCreated, contractsSigned,
		contractsActivated, contractsExpired, paymentsRecorded, paymentsAmount, overdueSwept, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		contractsCreated:   contractsCreated,
		contractsSigned:    contractsSigned,
		contractsActivated: contractsActivated,
		contractsExpired:   contractsExpired,
		paymentsRecorded:   paymentsRecorded,
		paymentsAmount:     paymentsAmount,
		overdueSwept:       overdueSwept,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveContractCreated counts a new contract.
func (m *MetricsService) ObserveContractCreated() {
	if m == nil {
		return
	}
	m.contractsCreated.Inc()
}

// ObserveContractSigned counts a filled signature slot for the role.
func (m *MetricsService) ObserveContractSigned(role string) {
	if m == nil {
		return
	}
	m.contractsSigned.WithLabelValues(role).Inc()
}

// ObserveContractActivated counts a dual-signed activation.
func (m *MetricsService) ObserveContractActivated() {
	if m == nil {
		return
	}
	m.contractsActivated.Inc()
}

// ObserveContractsExpired counts contracts swept past their deadline.
func (m *MetricsService) ObserveContractsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.contractsExpired.Add(float64(n))
}

// ObservePaymentRecorded counts a settled installment and its amount.
func (m *MetricsService) ObservePaymentRecorded(amount int64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	m.paymentsAmount.Add(float64(amount))
}

// ObserveOverdueSwept counts installments reclassified as overdue.
func (m *MetricsService) ObserveOverdueSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueSwept.Add(float64(n))
}
