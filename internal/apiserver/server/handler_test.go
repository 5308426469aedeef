package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/config"
	"vyral-cms/internal/shared/infra"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

func newTestServer(t *testing.T, jwtSecret string) (*Handler, http.Handler) {
	t.Helper()

	inf := infra.NewMemInfrastructure()
	inf.Storage = memstore.NewStore()

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:       jwtSecret,
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Site: config.SiteConfig{DataDir: t.TempDir()},
	}

	host := &cmsmodule.Host{Store: inf.Storage, Cache: inf.Cache, Events: inf.EventBus}
	manager := cmsmodule.NewManager(host, cmsmodule.NewRegistry(), t.TempDir())

	h := NewHandler(cfg, inf, nil, manager)
	return h, h.Router()
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "ok" || resp["service"] != "vyral-cms" {
		t.Errorf("resp = %v", resp)
	}
}

func TestNoAuthMode(t *testing.T) {
	// JWT 密钥为空：开发用无认证模式，请求直接放行
	_, router := newTestServer(t, "")

	body, _ := json.Marshal(map[string]string{"title": "Open Access"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/posts", bytes.NewReader(body)))
	// 无认证模式下没有用户上下文，创建接口应拒绝
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401（无用户上下文）", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/posts", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", rec.Code)
	}
}

func TestAuthEnforced(t *testing.T) {
	h, router := newTestServer(t, "test-secret")

	t.Run("无令牌401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/posts", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("公开路由放行", func(t *testing.T) {
		for _, path := range []string{
			"/health",
			"/api/v1/setup/status",
			"/api/v1/settings/public",
			"/api/v1/public/posts",
			"/api/v1/oauth/providers",
		} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code == http.StatusUnauthorized {
				t.Errorf("%s 被认证中间件拦截", path)
			}
		}
	})

	t.Run("有效令牌进入业务路由", func(t *testing.T) {
		token, err := auth.GenerateAccessToken(h.cfg.Auth, "usr-1", "a@b.c", "admin")
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest("GET", "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestFullPostFlow(t *testing.T) {
	h, router := newTestServer(t, "test-secret")
	token, _ := auth.GenerateAccessToken(h.cfg.Auth, "usr-admin", "a@b.c", "admin")

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do("POST", "/api/v1/posts", map[string]string{"title": "Wired Up"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var p model.Post
	json.Unmarshal(rec.Body.Bytes(), &p)

	rec = do("POST", "/api/v1/posts/"+p.ID+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d: %s", rec.Code, rec.Body.String())
	}

	// 公开读取无需令牌
	pub := httptest.NewRecorder()
	router.ServeHTTP(pub, httptest.NewRequest("GET", "/api/v1/public/posts/wired-up", nil))
	if pub.Code != http.StatusOK {
		t.Errorf("public status = %d", pub.Code)
	}

	// 发布事件进入活动流
	rec = do("GET", "/api/v1/activity", nil)
	var activity struct {
		Events []map[string]interface{} `json:"events"`
	}
	json.Unmarshal(rec.Body.Bytes(), &activity)
	if len(activity.Events) != 1 {
		t.Errorf("activity events = %d, want 1", len(activity.Events))
	}
}

func TestModuleSubtree(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/modules/nothing/here", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, 模块子树 404 应为 JSON", ct)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, router := newTestServer(t, "test-secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/v1/posts", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("缺少 CORS 头")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/posts", "/api/v1/posts"},
		{"/api/v1/posts/post-a1b2c3d4e5f6", "/api/v1/posts/{id}"},
		{"/api/v1/posts/post-a1b2c3d4e5f6/publish", "/api/v1/posts/{id}/publish"},
		{"/api/v1/media/med-0123456789ab/url", "/api/v1/media/{id}/url"},
		{"/api/modules/analytics/stats", "/api/modules/{slug}/..."},
		{"/health", "/health"},
		{"/api/v1/settings/public", "/api/v1/settings/public"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
