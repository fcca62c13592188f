// Package metrics exposes request and setup counters in Prometheus format.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 持有独立的 Registry，每个 Server 一份，避免重复注册。
type Recorder struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	steps    *prometheus.CounterVec
}

// NewRecorder 注册请求与 Configure 步骤相关的指标。
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trame_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trame_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trame_setup_steps_total",
			Help: "Configure steps executed, by step and result",
		}, []string{"step", "result"}),
	}
}

// Registry 返回底层 Registry，供测试或额外 collector 使用。
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep 记录一次 Configure 步骤结果。
func (r *Recorder) ObserveStep(step string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.steps.WithLabelValues(step, result).Inc()
}

// Middleware 统计每个请求的状态码与耗时；route 标签取匹配到的路由模板。
func (r *Recorder) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := "unmatched"
		if rt := c.Route(); rt != nil && rt.Path != "" {
			route = rt.Path
		}

		r.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		r.duration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler 以 Fiber handler 的形式暴露 /metrics 输出。
func (r *Recorder) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}
