package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute - метка пути для запросов мимо маршрутов
const unmatchedRoute = "unmatched"

// PrometheusMiddleware считает HTTP-запросы по шаблону маршрута Gin:
//
//	<service>_http_request_duration_seconds{method,path,status}
//	<service>_http_requests_inflight
//	<service>_http_request_errors_total{method,path,status} (только 4xx/5xx)
//	<service>_http_response_size_bytes{path}
type PrometheusMiddleware struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	errors   *prometheus.CounterVec
	size     *prometheus.HistogramVec
}

// NewPrometheusMiddleware создаёт middleware и регистрирует метрики в reg (nil - без регистрации).
func NewPrometheusMiddleware(service string, reg prometheus.Registerer) *PrometheusMiddleware {
	labels := []string{"method", "path", "status"}
	pm := &PrometheusMiddleware{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность обработки запроса REST API.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, labels),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Запросов REST API в обработке.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Ответов REST API с кодом 4xx/5xx.",
		}, labels),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_response_size_bytes",
			Help:      "Размер тела ответа REST API.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 6),
		}, []string{"path"}),
	}

	if reg != nil {
		reg.MustRegister(pm.duration, pm.inflight, pm.errors, pm.size)
	}
	return pm
}

// Handler возвращает gin.HandlerFunc для router.Use()
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.inflight.Inc()
		defer pm.inflight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		pm.duration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			pm.size.WithLabelValues(route).Observe(float64(size))
		}
		if code >= 400 {
			pm.errors.WithLabelValues(c.Request.Method, route, status).Inc()
		}
	}
}

// Errors возвращает счетчик ошибочных ответов маршрута
func (pm *PrometheusMiddleware) Errors(method, path, status string) prometheus.Counter {
	return pm.errors.WithLabelValues(method, path, status)
}
