// Vyral CMS API 服务器入口
//
// 启动顺序：
//  1. 加载配置
//  2. 连接 MongoDB / Redis / MinIO（Redis、MinIO 失败时降级运行）
//  3. 初始化管理员账号、模块子系统
//  4. 启动 HTTP 服务，等待信号优雅退出
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/apiserver/server"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/cmsmodule/builtin"
	"vyral-cms/internal/config"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/infra"
	"vyral-cms/internal/shared/license"
	"vyral-cms/internal/shared/objstore"
	"vyral-cms/internal/shared/storage"
	"vyral-cms/internal/shared/storage/mongostore"
)

func main() {
	cfg := config.Load()
	log.Printf("[main] Starting Vyral CMS API server: %s", cfg)

	// ------------------------------------------------------------------
	// 基础设施
	// ------------------------------------------------------------------

	store, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("[main] MongoDB connection failed: %v", err)
	}

	inf := &infra.Infrastructure{Storage: store}

	var redisInfra *infra.RedisInfra
	if redisInfra, err = infra.NewRedisInfra(cfg.RedisURL); err != nil {
		// 无 Redis 降级为内存实现：会话不跨进程、事件不持久
		log.Printf("[main] Redis unavailable, using in-memory cache/eventbus: %v", err)
		inf.Cache = cache.NewMemCache()
		inf.EventBus = eventbus.NewMemEventBus()
	} else {
		inf.Cache = redisInfra.CacheStore
		inf.EventBus = redisInfra.EventBusStore
	}

	objects := setupObjectStore(cfg)

	// ------------------------------------------------------------------
	// 账号与模块子系统
	// ------------------------------------------------------------------

	if err := auth.EnsureAdminUser(store, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("[main] EnsureAdminUser failed: %v", err)
	}

	registry := cmsmodule.NewRegistry()
	builtin.Register(registry)

	host := &cmsmodule.Host{
		Store:       store,
		Objects:     objects,
		Cache:       inf.Cache,
		Events:      inf.EventBus,
		SiteBaseURL: cfg.Site.BaseURL,
	}
	manager := cmsmodule.NewManager(host, registry, cfg.Modules.Dir)

	ctx := context.Background()
	if discovered, err := manager.Scan(ctx); err != nil {
		log.Printf("[main] module scan failed: %v", err)
	} else if len(discovered) > 0 {
		log.Printf("[main] Discovered modules: %v", discovered)
	}
	if cfg.Modules.AutoRestore {
		if err := manager.RestoreModules(ctx); err != nil {
			log.Printf("[main] module restore finished with errors: %v", err)
		}
	}

	// 许可证只影响日志里的版本标识，校验失败不阻断启动
	verifier := license.NewVerifier(cfg.License, cfg.Site.BaseURL)
	if verdict, err := verifier.Verify(ctx); err != nil {
		log.Printf("[main] License check failed: %v", err)
	} else if verdict.Valid {
		log.Printf("[main] License plan: %s", verdict.Plan)
	} else {
		log.Printf("[main] License invalid, running community edition: %s", verdict.Message)
	}

	// ------------------------------------------------------------------
	// HTTP 服务
	// ------------------------------------------------------------------

	apiServer := server.NewHandler(cfg, inf, objects, manager)

	httpServer := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket 长连接
		IdleTimeout:  120 * time.Second,
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	go refreshDomainMetrics(metricsCtx, apiServer.Metrics(), store)

	go func() {
		log.Printf("[main] Listening on :%s", cfg.APIPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] HTTP server error: %v", err)
		}
	}()

	// ------------------------------------------------------------------
	// 优雅退出
	// ------------------------------------------------------------------

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[main] Shutting down...")

	stopMetrics()

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] HTTP shutdown error: %v", err)
	}

	manager.Shutdown(shutdownCtx)

	if err := inf.Close(); err != nil {
		log.Printf("[main] infrastructure close error: %v", err)
	}
	log.Println("[main] Bye")
}

// setupObjectStore 初始化 MinIO，不可用时返回 nil（媒体上传降级）
func setupObjectStore(cfg *config.Config) *objstore.Client {
	client, err := objstore.NewClient(cfg.MinIO)
	if err != nil {
		log.Printf("[main] MinIO disabled: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureBucket(ctx); err != nil {
		log.Printf("[main] MinIO unreachable, media uploads disabled: %v", err)
		return nil
	}
	return client
}

// refreshDomainMetrics 周期性刷新内容域规模指标
func refreshDomainMetrics(ctx context.Context, metrics *server.Metrics, store storage.PersistentStore) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	refresh := func() {
		opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		_, posts, err := store.ListPosts(opCtx, storage.PostFilter{Limit: 1})
		if err != nil {
			return
		}
		_, media, err := store.ListMedia(opCtx, storage.MediaFilter{Limit: 1})
		if err != nil {
			return
		}
		active, err := store.ListModulesByStatus(opCtx, "active")
		if err != nil {
			return
		}
		metrics.SetDomainCounts(posts, media, len(active))
	}

	refresh()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}
