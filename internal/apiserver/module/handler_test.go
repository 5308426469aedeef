package module

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

// pingModule 测试用模块实现
type pingModule struct {
	reply string
}

func (m *pingModule) Slug() string { return "ping" }
func (m *pingModule) Initialize(_ context.Context, _ *cmsmodule.Host, config map[string]json.RawMessage) error {
	m.reply = "pong"
	if raw, ok := config["reply"]; ok {
		json.Unmarshal(raw, &m.reply)
	}
	return nil
}
func (m *pingModule) Activate(context.Context) error   { return nil }
func (m *pingModule) Deactivate(context.Context) error { return nil }
func (m *pingModule) Routes() map[string]http.Handler {
	return map[string]http.Handler{
		"ping": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(m.reply))
		}),
	}
}
func (m *pingModule) HandleHook(context.Context, string, *cmsmodule.HookPayload) error { return nil }

const pingManifest = `{
  "name": "Ping",
  "slug": "ping",
  "version": "1.0.0",
  "routes": [{"method": "GET", "path": "/ping", "handler": "ping"}],
  "menu": [{"title": "Ping", "path": "/modules/ping"}],
  "settings": {
    "reply": {"type": "string", "default": "pong"}
  }
}`

type testEnv struct {
	manager *cmsmodule.Manager
	mux     *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "ping")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "manifest.json"), []byte(pingManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := cmsmodule.NewRegistry()
	registry.Register("ping", func() cmsmodule.Module { return &pingModule{} })

	host := &cmsmodule.Host{Store: memstore.NewStore()}
	env := &testEnv{manager: cmsmodule.NewManager(host, registry, dir)}

	env.mux = http.NewServeMux()
	NewHandler(env.manager).RegisterRoutes(env.mux)
	return env
}

var adminUser = &auth.AuthUser{ID: "usr-admin", Role: "admin"}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, user *auth.AuthUser) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != nil {
		req = req.WithContext(auth.WithAuthUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decodeModule(t *testing.T, rec *httptest.ResponseRecorder) *model.Module {
	t.Helper()
	var m model.Module
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("解析响应失败: %v (body=%s)", err, rec.Body.String())
	}
	return &m
}

func TestAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	editor := &auth.AuthUser{ID: "usr-e", Role: "editor"}

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/modules"},
		{"POST", "/api/v1/modules/scan"},
		{"POST", "/api/v1/modules/ping/activate"},
	} {
		rec := env.do(t, tc.method, tc.path, nil, editor)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s status = %d, want 403", tc.method, tc.path, rec.Code)
		}
	}
}

func TestScanAndLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/modules/scan", nil, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan status = %d: %s", rec.Code, rec.Body.String())
	}
	var scanResp struct {
		Discovered []string `json:"discovered"`
	}
	json.Unmarshal(rec.Body.Bytes(), &scanResp)
	if len(scanResp.Discovered) != 1 || scanResp.Discovered[0] != "ping" {
		t.Fatalf("discovered = %v", scanResp.Discovered)
	}

	t.Run("列表包含新模块", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/modules", nil, adminUser)
		var resp struct {
			Modules []*model.Module `json:"modules"`
			Total   int             `json:"total"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 || resp.Modules[0].Status != model.ModuleStatusInstalled {
			t.Errorf("resp = %+v", resp)
		}
	})

	rec = env.do(t, "POST", "/api/v1/modules/ping/activate", nil, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeModule(t, rec).Status; got != model.ModuleStatusActive {
		t.Errorf("status = %q, want active", got)
	}

	t.Run("模块路由已挂载", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.manager.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/modules/ping/ping", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
			t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("菜单聚合", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/modules/menu", nil, adminUser)
		var resp struct {
			Menu []model.ManifestMenuItem `json:"menu"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if len(resp.Menu) != 1 || resp.Menu[0].Title != "Ping" {
			t.Errorf("menu = %+v", resp.Menu)
		}
	})

	t.Run("重复激活报冲突", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/modules/ping/activate", nil, adminUser)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("激活中不能卸载", func(t *testing.T) {
		rec := env.do(t, "DELETE", "/api/v1/modules/ping", nil, adminUser)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("配置更新即时生效", func(t *testing.T) {
		rec := env.do(t, "PUT", "/api/v1/modules/ping/config",
			map[string]json.RawMessage{"reply": json.RawMessage(`"hello"`)}, adminUser)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		routeRec := httptest.NewRecorder()
		env.manager.Routes().ServeHTTP(routeRec, httptest.NewRequest("GET", "/api/modules/ping/ping", nil))
		if routeRec.Body.String() != "hello" {
			t.Errorf("body = %q, want hello", routeRec.Body.String())
		}
	})

	t.Run("未知配置键被拒", func(t *testing.T) {
		rec := env.do(t, "PUT", "/api/v1/modules/ping/config",
			map[string]json.RawMessage{"bogus": json.RawMessage(`1`)}, adminUser)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	rec = env.do(t, "POST", "/api/v1/modules/ping/deactivate", nil, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("停用后路由下线", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.manager.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/modules/ping/ping", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	rec = env.do(t, "DELETE", "/api/v1/modules/ping", nil, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("uninstall status = %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("卸载后404", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/modules/ping", nil, adminUser)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestUnknownModule(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/modules/nope/activate", nil, adminUser)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
