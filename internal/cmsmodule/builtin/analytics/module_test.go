package analytics

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

func newInitialized(t *testing.T) cmsmodule.Module {
	t.Helper()
	m := New()
	host := &cmsmodule.Host{Store: memstore.NewStore()}
	if err := m.Initialize(context.Background(), host, nil); err != nil {
		t.Fatalf("Initialize 失败: %v", err)
	}
	return m
}

func TestRecordsHookEvents(t *testing.T) {
	m := newInitialized(t)
	ctx := context.Background()

	media := &model.Media{ID: "med-1", MimeType: "image/png"}
	post := &model.Post{ID: "post-1", Slug: "hello-world"}

	hooks := []struct {
		hook    string
		payload *cmsmodule.HookPayload
	}{
		{cmsmodule.HookMediaUpload, &cmsmodule.HookPayload{Media: media}},
		{cmsmodule.HookMediaUpload, &cmsmodule.HookPayload{Media: media}},
		{cmsmodule.HookMediaDelete, &cmsmodule.HookPayload{Media: media}},
		{cmsmodule.HookPostPublish, &cmsmodule.HookPayload{Post: post}},
		{cmsmodule.HookPostView, &cmsmodule.HookPayload{Post: post}},
		{cmsmodule.HookPostView, &cmsmodule.HookPayload{Post: post}},
		{cmsmodule.HookPostView, &cmsmodule.HookPayload{Post: post}},
	}
	for _, h := range hooks {
		if err := m.HandleHook(ctx, h.hook, h.payload); err != nil {
			t.Fatalf("HandleHook(%s) 失败: %v", h.hook, err)
		}
	}

	// 空载荷与未知钩子被忽略
	if err := m.HandleHook(ctx, cmsmodule.HookMediaUpload, &cmsmodule.HookPayload{}); err != nil {
		t.Fatalf("空载荷不应出错: %v", err)
	}
	if err := m.HandleHook(ctx, cmsmodule.HookURLGenerate, &cmsmodule.HookPayload{Media: media}); err != nil {
		t.Fatalf("未订阅的钩子不应出错: %v", err)
	}

	handler := m.Routes()["stats"]
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/modules/analytics/stats", nil))
	if rec.Code != 200 {
		t.Fatalf("stats status = %d", rec.Code)
	}

	var body struct {
		Module        string           `json:"module"`
		RetentionDays int              `json:"retention_days"`
		Counts        map[string]int64 `json:"counts"`
		ViewsByDay    []struct {
			Day   string `json:"day"`
			Views int64  `json:"views"`
		} `json:"views_by_day"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}

	if body.Module != Slug {
		t.Errorf("module = %q", body.Module)
	}
	if body.RetentionDays != 90 {
		t.Errorf("retention_days = %d, want 默认 90", body.RetentionDays)
	}
	if body.Counts[cmsmodule.HookMediaUpload] != 2 {
		t.Errorf("media.upload 计数 = %d, want 2", body.Counts[cmsmodule.HookMediaUpload])
	}
	if body.Counts[cmsmodule.HookMediaDelete] != 1 {
		t.Errorf("media.delete 计数 = %d, want 1", body.Counts[cmsmodule.HookMediaDelete])
	}
	if body.Counts[cmsmodule.HookPostPublish] != 1 {
		t.Errorf("post.publish 计数 = %d, want 1", body.Counts[cmsmodule.HookPostPublish])
	}
	if body.Counts[cmsmodule.HookPostView] != 3 {
		t.Errorf("post.view 计数 = %d, want 3", body.Counts[cmsmodule.HookPostView])
	}

	// 三次浏览发生在同一天，按天聚合应只有一个桶
	if len(body.ViewsByDay) != 1 {
		t.Fatalf("views_by_day = %+v, want 单日一条", body.ViewsByDay)
	}
	if body.ViewsByDay[0].Day != time.Now().Format("2006-01-02") {
		t.Errorf("day = %q", body.ViewsByDay[0].Day)
	}
	if body.ViewsByDay[0].Views != 3 {
		t.Errorf("views = %d, want 3", body.ViewsByDay[0].Views)
	}
}

func TestTopPosts(t *testing.T) {
	m := newInitialized(t)
	ctx := context.Background()

	view := func(id, slug string, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			err := m.HandleHook(ctx, cmsmodule.HookPostView, &cmsmodule.HookPayload{
				Post: &model.Post{ID: id, Slug: slug},
			})
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	view("post-a", "first-post", 2)
	view("post-b", "second-post", 5)
	view("post-c", "third-post", 1)

	// 发布事件不计入浏览榜
	err := m.HandleHook(ctx, cmsmodule.HookPostPublish, &cmsmodule.HookPayload{
		Post: &model.Post{ID: "post-c", Slug: "third-post"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	m.Routes()["top"].ServeHTTP(rec, httptest.NewRequest("GET", "/api/modules/analytics/top", nil))
	if rec.Code != 200 {
		t.Fatalf("top status = %d", rec.Code)
	}

	var body struct {
		Module string `json:"module"`
		Posts  []struct {
			PostID string `json:"post_id"`
			Slug   string `json:"slug"`
			Views  int64  `json:"views"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}

	if len(body.Posts) != 3 {
		t.Fatalf("posts = %+v, want 3 条", body.Posts)
	}
	if body.Posts[0].PostID != "post-b" || body.Posts[0].Views != 5 {
		t.Errorf("榜首 = %+v, want post-b/5", body.Posts[0])
	}
	if body.Posts[0].Slug != "second-post" {
		t.Errorf("榜首 slug = %q", body.Posts[0].Slug)
	}
	if body.Posts[1].PostID != "post-a" || body.Posts[2].PostID != "post-c" {
		t.Errorf("榜单顺序 = %+v", body.Posts)
	}
}

func TestCustomRetention(t *testing.T) {
	m := New()
	host := &cmsmodule.Host{Store: memstore.NewStore()}
	err := m.Initialize(context.Background(), host, map[string]json.RawMessage{
		"retention_days": json.RawMessage(`30`),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	m.Routes()["stats"].ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	var body struct {
		RetentionDays int `json:"retention_days"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.RetentionDays != 30 {
		t.Errorf("retention_days = %d, want 30", body.RetentionDays)
	}
}
