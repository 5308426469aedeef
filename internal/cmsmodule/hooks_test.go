package cmsmodule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"vyral-cms/internal/shared/model"
)

// fakeModule 测试用模块实现
type fakeModule struct {
	slug       string
	initErr    error
	activErr   error
	hookErr    error
	rewriteURL string
	handlers   map[string]http.Handler

	initCount   int
	activeCount int
	deactCount  int
	hookCalls   []string
	lastConfig  map[string]json.RawMessage
}

func (f *fakeModule) Slug() string { return f.slug }

func (f *fakeModule) Initialize(ctx context.Context, host *Host, config map[string]json.RawMessage) error {
	f.initCount++
	f.lastConfig = config
	return f.initErr
}

func (f *fakeModule) Activate(ctx context.Context) error {
	f.activeCount++
	return f.activErr
}

func (f *fakeModule) Deactivate(ctx context.Context) error {
	f.deactCount++
	return nil
}

func (f *fakeModule) Routes() map[string]http.Handler {
	if f.handlers != nil {
		return f.handlers
	}
	return map[string]http.Handler{}
}

func (f *fakeModule) HandleHook(ctx context.Context, hook string, payload *HookPayload) error {
	f.hookCalls = append(f.hookCalls, hook)
	if f.hookErr != nil {
		return f.hookErr
	}
	if hook == HookURLGenerate && f.rewriteURL != "" {
		payload.URL = f.rewriteURL
	}
	return nil
}

func TestHookBusDispatch(t *testing.T) {
	bus := NewHookBus()
	a := &fakeModule{slug: "a"}
	b := &fakeModule{slug: "b", hookErr: errors.New("boom")}
	c := &fakeModule{slug: "c"}

	bus.Subscribe("a", a, []string{HookMediaUpload})
	bus.Subscribe("b", b, []string{HookMediaUpload, HookPostPublish})
	bus.Subscribe("c", c, []string{HookMediaUpload})

	err := bus.Dispatch(context.Background(), HookMediaUpload, &HookPayload{
		Media: &model.Media{ID: "med-1"},
	})

	// b 失败不应阻断 c
	if len(a.hookCalls) != 1 || len(c.hookCalls) != 1 {
		t.Errorf("a/c 应各收到一次钩子: a=%d c=%d", len(a.hookCalls), len(c.hookCalls))
	}
	if err == nil {
		t.Error("应返回聚合错误")
	}

	// 未订阅的钩子不分发
	if err := bus.Dispatch(context.Background(), HookMediaDelete, &HookPayload{}); err != nil {
		t.Errorf("无订阅者的钩子不应出错: %v", err)
	}
	if len(a.hookCalls) != 1 {
		t.Error("未订阅的钩子不应到达模块 a")
	}
}

func TestHookBusSubscribeFiltersUnknownHooks(t *testing.T) {
	bus := NewHookBus()
	m := &fakeModule{slug: "m"}
	bus.Subscribe("m", m, []string{HookPostPublish, "custom.unknown"})

	if got := bus.Subscribers(HookPostPublish); len(got) != 1 {
		t.Errorf("post.publish 订阅者 = %v", got)
	}
	if got := bus.Subscribers("custom.unknown"); len(got) != 0 {
		t.Errorf("未知钩子不应被登记: %v", got)
	}
}

func TestHookBusUnsubscribe(t *testing.T) {
	bus := NewHookBus()
	m := &fakeModule{slug: "m"}
	bus.Subscribe("m", m, []string{HookMediaUpload, HookMediaDelete})
	bus.Unsubscribe("m")

	bus.Dispatch(context.Background(), HookMediaUpload, &HookPayload{})
	if len(m.hookCalls) != 0 {
		t.Error("退订后不应再收到钩子")
	}
}

func TestFilterURLChain(t *testing.T) {
	bus := NewHookBus()
	media := &model.Media{ID: "med-1", ObjectKey: "2026/08/a.png", FileName: "a.png"}

	t.Run("无订阅者返回默认 URL", func(t *testing.T) {
		got := bus.FilterURL(context.Background(), media, "/api/media/med-1/download")
		if got != "/api/media/med-1/download" {
			t.Errorf("URL = %q", got)
		}
	})

	t.Run("模块改写生效", func(t *testing.T) {
		m := &fakeModule{slug: "cdn", rewriteURL: "https://cdn.example.com/a.png"}
		bus.Subscribe("cdn", m, []string{HookURLGenerate})
		defer bus.Unsubscribe("cdn")

		got := bus.FilterURL(context.Background(), media, "/api/media/med-1/download")
		if got != "https://cdn.example.com/a.png" {
			t.Errorf("URL = %q", got)
		}
	})

	t.Run("失败模块被跳过", func(t *testing.T) {
		bad := &fakeModule{slug: "bad", hookErr: errors.New("down")}
		bus.Subscribe("bad", bad, []string{HookURLGenerate})
		defer bus.Unsubscribe("bad")

		got := bus.FilterURL(context.Background(), media, "/api/media/med-1/download")
		if got != "/api/media/med-1/download" {
			t.Errorf("失败时应保留默认 URL，得到 %q", got)
		}
	})
}
