package post

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

// hookRecorder 记录钩子调用的最小模块实现
type hookRecorder struct {
	calls []string
}

func (m *hookRecorder) Slug() string { return "hook-recorder" }
func (m *hookRecorder) Initialize(context.Context, *cmsmodule.Host, map[string]json.RawMessage) error {
	return nil
}
func (m *hookRecorder) Activate(context.Context) error            { return nil }
func (m *hookRecorder) Deactivate(context.Context) error          { return nil }
func (m *hookRecorder) Routes() map[string]http.Handler           { return nil }
func (m *hookRecorder) HandleHook(_ context.Context, hook string, _ *cmsmodule.HookPayload) error {
	m.calls = append(m.calls, hook)
	return nil
}

type testEnv struct {
	store   *memstore.Store
	events  *eventbus.MemEventBus
	hooks   *cmsmodule.HookBus
	mux     *http.ServeMux
	handler *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memstore.NewStore(),
		events: eventbus.NewMemEventBus(),
		hooks:  cmsmodule.NewHookBus(),
	}
	env.handler = NewHandler(env.store, env.hooks, env.events)
	env.mux = http.NewServeMux()
	env.handler.RegisterRoutes(env.mux)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, user *auth.AuthUser) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != nil {
		req = req.WithContext(auth.WithAuthUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

var (
	adminUser  = &auth.AuthUser{ID: "usr-admin", Email: "admin@example.com", Role: "admin"}
	authorUser = &auth.AuthUser{ID: "usr-author", Email: "author@example.com", Role: "author"}
)

func decodePost(t *testing.T, rec *httptest.ResponseRecorder) *model.Post {
	t.Helper()
	var p model.Post
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("解析响应失败: %v (body=%s)", err, rec.Body.String())
	}
	return &p
}

func TestCreatePost(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Hello World", Content: "body"}, authorUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	p := decodePost(t, rec)

	if p.Slug != "hello-world" {
		t.Errorf("slug = %q, want hello-world", p.Slug)
	}
	if p.Status != model.PostStatusDraft {
		t.Errorf("status = %q, want draft", p.Status)
	}
	if p.AuthorID != authorUser.ID {
		t.Errorf("author_id = %q", p.AuthorID)
	}

	t.Run("缺少标题", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/posts", postRequest{Content: "x"}, authorUser)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("slug冲突自动加后缀", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Hello World"}, authorUser)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodePost(t, rec).Slug; got != "hello-world-2" {
			t.Errorf("slug = %q, want hello-world-2", got)
		}

		rec = env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Hello World"}, authorUser)
		if got := decodePost(t, rec).Slug; got != "hello-world-3" {
			t.Errorf("slug = %q, want hello-world-3", got)
		}
	})
}

func TestAuthorOwnership(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Admin Post"}, adminUser)
	adminPost := decodePost(t, rec)

	t.Run("作者不能编辑他人文章", func(t *testing.T) {
		rec := env.do(t, "PUT", "/api/v1/posts/"+adminPost.ID, postRequest{Title: "Hijacked"}, authorUser)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("作者不能删除他人文章", func(t *testing.T) {
		rec := env.do(t, "DELETE", "/api/v1/posts/"+adminPost.ID, nil, authorUser)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("编辑可以编辑他人文章", func(t *testing.T) {
		editor := &auth.AuthUser{ID: "usr-editor", Role: "editor"}
		rec := env.do(t, "PUT", "/api/v1/posts/"+adminPost.ID, postRequest{Title: "Edited"}, editor)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("作者列表只含自己的文章", func(t *testing.T) {
		env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Mine"}, authorUser)

		rec := env.do(t, "GET", "/api/v1/posts", nil, authorUser)
		var resp listResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 {
			t.Fatalf("total = %d, want 1", resp.Total)
		}
		if resp.Posts[0].AuthorID != authorUser.ID {
			t.Errorf("author_id = %q", resp.Posts[0].AuthorID)
		}
	})
}

func TestPublishLifecycle(t *testing.T) {
	env := newTestEnv(t)
	recorder := &hookRecorder{}
	env.hooks.Subscribe(recorder.Slug(), recorder, []string{cmsmodule.HookPostPublish})

	rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Launch"}, adminUser)
	p := decodePost(t, rec)

	t.Run("公开接口看不到草稿", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/public/posts/launch", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	rec = env.do(t, "POST", "/api/v1/posts/"+p.ID+"/publish", nil, adminUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d: %s", rec.Code, rec.Body.String())
	}
	published := decodePost(t, rec)
	if published.Status != model.PostStatusPublished {
		t.Errorf("status = %q", published.Status)
	}
	if published.PublishedAt == nil {
		t.Fatal("published_at 未设置")
	}
	firstPublished := *published.PublishedAt

	if len(recorder.calls) != 1 || recorder.calls[0] != cmsmodule.HookPostPublish {
		t.Errorf("hook calls = %v", recorder.calls)
	}

	events, err := env.events.GetActivities(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != eventbus.ActivityPostPublished {
		t.Errorf("activity events = %+v", events)
	}

	t.Run("重复发布报冲突", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/posts/"+p.ID+"/publish", nil, adminUser)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("公开接口可见已发布文章", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/public/posts/launch", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if decodePost(t, rec).ID != p.ID {
			t.Error("返回了错误的文章")
		}
	})

	t.Run("撤回后重新发布保留首次发布时间", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/posts/"+p.ID+"/unpublish", nil, adminUser)
		if rec.Code != http.StatusOK {
			t.Fatalf("unpublish status = %d", rec.Code)
		}

		time.Sleep(5 * time.Millisecond)
		rec = env.do(t, "POST", "/api/v1/posts/"+p.ID+"/publish", nil, adminUser)
		republished := decodePost(t, rec)
		if republished.PublishedAt == nil || !republished.PublishedAt.Equal(firstPublished) {
			t.Errorf("published_at = %v, want %v", republished.PublishedAt, firstPublished)
		}
	})

	t.Run("归档后公开不可见", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/posts/"+p.ID+"/archive", nil, adminUser)
		if rec.Code != http.StatusOK {
			t.Fatalf("archive status = %d", rec.Code)
		}
		rec = env.do(t, "GET", "/api/v1/public/posts/launch", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestPublicGetDispatchesViewHook(t *testing.T) {
	env := newTestEnv(t)
	recorder := &hookRecorder{}
	env.hooks.Subscribe(recorder.Slug(), recorder, []string{cmsmodule.HookPostView})

	rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Tracked"}, adminUser)
	p := decodePost(t, rec)
	env.do(t, "POST", "/api/v1/posts/"+p.ID+"/publish", nil, adminUser)

	for i := 0; i < 2; i++ {
		rec := env.do(t, "GET", "/api/v1/public/posts/tracked", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if len(recorder.calls) != 2 {
		t.Fatalf("hook calls = %v, want 两次 post.view", recorder.calls)
	}
	for _, hook := range recorder.calls {
		if hook != cmsmodule.HookPostView {
			t.Errorf("hook = %q", hook)
		}
	}

	t.Run("404不产生浏览事件", func(t *testing.T) {
		before := len(recorder.calls)
		env.do(t, "GET", "/api/v1/public/posts/nope", nil, nil)
		if len(recorder.calls) != before {
			t.Errorf("hook calls = %v", recorder.calls)
		}
	})
}

func TestPublicList(t *testing.T) {
	env := newTestEnv(t)

	for _, title := range []string{"One", "Two", "Three"} {
		rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: title}, adminUser)
		p := decodePost(t, rec)
		if title != "Three" { // Three 保持草稿
			env.do(t, "POST", "/api/v1/posts/"+p.ID+"/publish", nil, adminUser)
		}
	}

	rec := env.do(t, "GET", "/api/v1/public/posts", nil, nil)
	var resp listResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2（草稿不计入）", resp.Total)
	}
	for _, p := range resp.Posts {
		if !p.IsPublished() {
			t.Errorf("公开列表出现未发布文章 %s", p.ID)
		}
	}
}

func TestUpdateSlugConflict(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/api/v1/posts", postRequest{Title: "First"}, adminUser)
	rec := env.do(t, "POST", "/api/v1/posts", postRequest{Title: "Second"}, adminUser)
	second := decodePost(t, rec)

	rec = env.do(t, "PUT", "/api/v1/posts/"+second.ID, postRequest{Title: "Second", Slug: "first"}, adminUser)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetMissing(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/v1/posts/post-nope", nil, adminUser)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
