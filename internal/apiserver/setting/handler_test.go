package setting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

type testEnv struct {
	store  *memstore.Store
	cache  *cache.MemCache
	events *eventbus.MemEventBus
	mux    *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memstore.NewStore(),
		cache:  cache.NewMemCache(),
		events: eventbus.NewMemEventBus(),
	}
	h := NewHandler(env.store, env.cache, env.events)
	env.mux = http.NewServeMux()
	h.RegisterRoutes(env.mux)
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

func TestBulkSetAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "PUT", "/api/v1/settings", bulkSetRequest{Settings: []settingInput{
		{Key: "site.title", Value: json.RawMessage(`"My Blog"`), Group: "site", Autoload: true},
		{Key: "media.max_upload_mb", Value: json.RawMessage(`64`), Group: "media"},
	}}, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	t.Run("按key读取", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/settings/site.title", nil, adminUser)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var s model.Setting
		json.Unmarshal(rec.Body.Bytes(), &s)
		if string(s.Value) != `"My Blog"` {
			t.Errorf("value = %s", s.Value)
		}
		if !s.Autoload {
			t.Error("autoload 丢失")
		}
	})

	t.Run("按组过滤", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/settings?group=media", nil, adminUser)
		var resp struct {
			Settings []*model.Setting `json:"settings"`
			Total    int              `json:"total"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 || resp.Settings[0].Key != "media.max_upload_mb" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("活动事件", func(t *testing.T) {
		events, _ := env.events.GetActivities(context.Background(), "", 10)
		if len(events) != 1 || events[0].Type != eventbus.ActivitySettingsChanged {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("非管理员不能写", func(t *testing.T) {
		editor := &auth.AuthUser{ID: "usr-e", Role: "editor"}
		rec := env.do(t, "PUT", "/api/v1/settings", bulkSetRequest{Settings: []settingInput{
			{Key: "x", Value: json.RawMessage(`1`)},
		}}, editor)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("空数组报错", func(t *testing.T) {
		rec := env.do(t, "PUT", "/api/v1/settings", bulkSetRequest{}, adminUser)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestPublicBundle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 预置：一个 autoload、一个非 autoload
	now := time.Now()
	env.store.SetSetting(ctx, &model.Setting{
		Key: "site.title", Value: json.RawMessage(`"Vyral"`), Autoload: true, UpdatedAt: now,
	})
	env.store.SetSetting(ctx, &model.Setting{
		Key: "smtp.password", Value: json.RawMessage(`"secret"`), UpdatedAt: now,
	})

	rec := env.do(t, "GET", "/api/v1/settings/public", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var bundle map[string]json.RawMessage
	json.Unmarshal(rec.Body.Bytes(), &bundle)
	if string(bundle["site.title"]) != `"Vyral"` {
		t.Errorf("site.title = %s", bundle["site.title"])
	}
	if _, ok := bundle["smtp.password"]; ok {
		t.Error("非 autoload 设置泄露到公开设置包")
	}

	t.Run("回填缓存", func(t *testing.T) {
		cached, err := env.cache.GetSettingsBundle(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if cached == nil || cached["site.title"] != `"Vyral"` {
			t.Errorf("cached = %v", cached)
		}
	})

	t.Run("写入后缓存失效", func(t *testing.T) {
		env.do(t, "PUT", "/api/v1/settings", bulkSetRequest{Settings: []settingInput{
			{Key: "site.title", Value: json.RawMessage(`"Renamed"`), Autoload: true},
		}}, adminUser)

		cached, _ := env.cache.GetSettingsBundle(ctx)
		if cached != nil {
			t.Errorf("写入后缓存应失效, got %v", cached)
		}

		rec := env.do(t, "GET", "/api/v1/settings/public", nil, nil)
		var bundle map[string]json.RawMessage
		json.Unmarshal(rec.Body.Bytes(), &bundle)
		if string(bundle["site.title"]) != `"Renamed"` {
			t.Errorf("site.title = %s", bundle["site.title"])
		}
	})
}

func TestDeleteSetting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.SetSetting(ctx, &model.Setting{
		Key: "tmp", Value: json.RawMessage(`true`), UpdatedAt: time.Now(),
	})

	rec := env.do(t, "DELETE", "/api/v1/settings/tmp", nil, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/v1/settings/tmp", nil, adminUser)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
