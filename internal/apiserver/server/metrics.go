package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus 指标集合
//
// 指标注册在私有 Registry 上，多个 Handler 实例（测试）互不冲突。
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsConnections       prometheus.Gauge
	postsTotal          prometheus.Gauge
	mediaTotal          prometheus.Gauge
	modulesActive       prometheus.Gauge
	hookDispatchTotal   *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_http_requests_total",
			Help: "HTTP 请求总数",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cms_http_request_duration_seconds",
			Help:    "HTTP 请求耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cms_ws_connections",
			Help: "当前 WebSocket 连接数",
		}),
		postsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cms_posts_total",
			Help: "文章总数",
		}),
		mediaTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cms_media_total",
			Help: "媒体条目总数",
		}),
		modulesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cms_modules_active",
			Help: "激活中的模块数",
		}),
		hookDispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_hook_dispatch_total",
			Help: "模块钩子分发次数",
		}, []string{"hook"}),
	}
}

// Handler 返回 /metrics 抓取端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetDomainCounts 刷新内容域规模指标（定时任务调用）
func (m *Metrics) SetDomainCounts(posts, media, activeModules int) {
	m.postsTotal.Set(float64(posts))
	m.mediaTotal.Set(float64(media))
	m.modulesActive.Set(float64(activeModules))
}

// CountHookDispatch 记录一次钩子分发
func (m *Metrics) CountHookDispatch(hook string) {
	m.hookDispatchTotal.WithLabelValues(hook).Inc()
}

// ============================================================================
// HTTP 中间件
// ============================================================================

// responseWriter 捕获响应状态码
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Middleware 按请求记录计数与耗时
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := normalizePath(r.URL.Path)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath 将路径中的资源 ID 归一化，控制标签基数
//
// /api/v1/posts/post-abc123 → /api/v1/posts/{id}
// /api/modules/analytics/stats → /api/modules/{slug}/...
func normalizePath(path string) string {
	parts := strings.Split(path, "/")

	// 模块子树按 slug 归并
	if strings.HasPrefix(path, "/api/modules/") && len(parts) > 3 {
		return "/api/modules/{slug}/..."
	}

	for i, part := range parts {
		if i < 4 {
			continue // 保留 /api/v1/{resource} 前缀
		}
		if looksLikeID(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// looksLikeID 判断路径段是否为资源 ID（前缀-hex 或纯长随机串）
func looksLikeID(s string) bool {
	if idx := strings.IndexByte(s, '-'); idx > 0 {
		suffix := s[idx+1:]
		if len(suffix) >= 6 && isHex(suffix) {
			return true
		}
	}
	return len(s) >= 16 && isHex(s)
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}
