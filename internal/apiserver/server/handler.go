package server

import (
	"net/http"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/apiserver/media"
	"vyral-cms/internal/apiserver/module"
	"vyral-cms/internal/apiserver/oauth"
	"vyral-cms/internal/apiserver/post"
	"vyral-cms/internal/apiserver/setting"
	"vyral-cms/internal/apiserver/setup"
	"vyral-cms/internal/apiserver/user"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/config"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/infra"
	"vyral-cms/internal/shared/objstore"
	"vyral-cms/internal/shared/storage"
)

// Handler API 服务器
type Handler struct {
	cfg     *config.Config
	store   storage.PersistentStore
	cache   cache.Cache
	events  eventbus.EventBus
	objects *objstore.Client
	manager *cmsmodule.Manager
	metrics *Metrics
}

// NewHandler 创建 API 服务器
//
// objects 可为 nil（对象存储不可用时媒体上传降级为 503）。
func NewHandler(cfg *config.Config, inf *infra.Infrastructure, objects *objstore.Client, manager *cmsmodule.Manager) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   inf.Storage,
		cache:   inf.Cache,
		events:  inf.EventBus,
		objects: objects,
		manager: manager,
		metrics: NewMetrics(),
	}
}

// Metrics 返回指标集合（定时刷新域指标用）
func (h *Handler) Metrics() *Metrics {
	return h.metrics
}

// Router 组装完整路由
//
// 中间件层次（外到内）：CORS → 认证 → 指标 → 业务路由。
// /ws/ 走认证但跳过指标中间件，长连接不应计入请求耗时直方图。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.manager.Hooks().SetObserver(h.metrics.CountHookDispatch)

	// 域处理器
	auth.NewHandler(h.store, h.cache, h.cfg.Auth).RegisterRoutes(mux)
	post.NewHandler(h.store, h.manager.Hooks(), h.events).RegisterRoutes(mux)
	user.NewHandler(h.store, h.cache).RegisterRoutes(mux)
	setting.NewHandler(h.store, h.cache, h.events).RegisterRoutes(mux)
	setup.NewHandler(h.store, h.cfg.Site.DataDir, Version).RegisterRoutes(mux)
	module.NewHandler(h.manager).RegisterRoutes(mux)
	oauth.NewHandler(h.store, h.cache, h.cache, h.events, h.cfg.OAuth, h.cfg.Auth).RegisterRoutes(mux)

	var objects media.ObjectStore
	if h.objects != nil {
		objects = h.objects
	}
	media.NewHandler(h.store, objects, h.manager.Hooks(), h.events).RegisterRoutes(mux)

	// 模块动态路由子树
	mux.Handle(cmsmodule.RoutePrefix, h.manager.Routes())

	// 运维端点
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /api/v1/activity", h.ActivityHistory)

	// /ws/ 绕过指标中间件
	metered := h.metrics.Middleware(mux)
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("GET /ws/activity", h.ActivityWS)

	root := http.NewServeMux()
	root.Handle("/ws/", wsMux)
	root.Handle("/", metered)

	authed := auth.Middleware(h.cfg.Auth)(root)
	return corsMiddleware(authed)
}

// corsMiddleware 管理后台跨域访问
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
