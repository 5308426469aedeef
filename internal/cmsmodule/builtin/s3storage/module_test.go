package s3storage

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

func newHost() *cmsmodule.Host {
	return &cmsmodule.Host{Store: memstore.NewStore(), SiteBaseURL: "http://localhost:8080"}
}

func TestPublicURLRewrite(t *testing.T) {
	m := New()
	ctx := context.Background()

	err := m.Initialize(ctx, newHost(), map[string]json.RawMessage{
		"public_base_url": json.RawMessage(`"https://cdn.example.com/"`),
	})
	if err != nil {
		t.Fatalf("Initialize 失败: %v", err)
	}
	if err := m.Activate(ctx); err != nil {
		t.Fatalf("Activate 失败: %v", err)
	}

	payload := &cmsmodule.HookPayload{
		Media: &model.Media{ID: "med-1", ObjectKey: "2026/08/cover.png", FileName: "cover.png"},
		URL:   "/api/media/med-1/download",
	}
	if err := m.HandleHook(ctx, cmsmodule.HookURLGenerate, payload); err != nil {
		t.Fatalf("HandleHook 失败: %v", err)
	}
	if payload.URL != "https://cdn.example.com/2026/08/cover.png" {
		t.Errorf("URL = %q", payload.URL)
	}
}

func TestActivateRequiresBackend(t *testing.T) {
	m := New()
	ctx := context.Background()

	// 既无对象存储又无公开直链，激活应失败
	if err := m.Initialize(ctx, newHost(), nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(ctx); err == nil {
		t.Error("无后端时 Activate 应失败")
	}
}

func TestIgnoresOtherHooks(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.Initialize(ctx, newHost(), map[string]json.RawMessage{
		"public_base_url": json.RawMessage(`"https://cdn.example.com"`),
	})

	payload := &cmsmodule.HookPayload{URL: "/original"}
	if err := m.HandleHook(ctx, cmsmodule.HookMediaUpload, payload); err != nil {
		t.Fatalf("其他钩子不应出错: %v", err)
	}
	if payload.URL != "/original" {
		t.Errorf("其他钩子不应改写 URL: %q", payload.URL)
	}
}

func TestStatusRoute(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.Initialize(ctx, newHost(), map[string]json.RawMessage{
		"public_base_url": json.RawMessage(`"https://cdn.example.com"`),
	})

	handler, ok := m.Routes()["status"]
	if !ok {
		t.Fatal("缺少 status 处理器")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/modules/s3-storage/status", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["mode"] != "public" {
		t.Errorf("mode = %v, want public", body["mode"])
	}
}
