// Package cmsmodule 钩子总线
package cmsmodule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vyral-cms/internal/shared/model"
	"vyral-cms/pkg/logging"
)

// ============================================================================
// 钩子定义
// ============================================================================

// 平台钩子名称
//
// 事件钩子（media.upload / media.delete / post.publish / post.view）
// 按注册顺序通知，单个模块出错不阻断其他模块。url.generate 是过滤器
// 钩子：模块可改写 payload.URL，后续模块在改写结果上继续处理。
const (
	HookMediaUpload = "media.upload"
	HookMediaDelete = "media.delete"
	HookPostPublish = "post.publish"
	HookPostView    = "post.view"
	HookURLGenerate = "url.generate"
)

// knownHooks 平台支持的钩子集合
var knownHooks = map[string]bool{
	HookMediaUpload: true,
	HookMediaDelete: true,
	HookPostPublish: true,
	HookPostView:    true,
	HookURLGenerate: true,
}

// IsKnownHook 判断钩子名是否受平台支持
func IsKnownHook(name string) bool {
	return knownHooks[name]
}

// HookPayload 钩子载荷
//
// 各钩子使用的字段：
//   - media.upload / media.delete：Media
//   - post.publish：Post
//   - url.generate：Media + URL（模块可改写 URL）
type HookPayload struct {
	Media *model.Media
	Post  *model.Post
	URL   string
	Data  map[string]interface{}
}

// ============================================================================
// HookBus - 钩子总线
// ============================================================================

// hookSubscriber 单个模块的钩子订阅
type hookSubscriber struct {
	slug   string
	module Module
}

// HookBus 钩子总线，按钩子名维护订阅模块列表
type HookBus struct {
	mu       sync.RWMutex
	subs     map[string][]hookSubscriber
	logger   *logging.Logger
	observer func(hook string)
}

// NewHookBus 创建钩子总线
func NewHookBus() *HookBus {
	return &HookBus{
		subs:   make(map[string][]hookSubscriber),
		logger: logging.Default("hookbus"),
	}
}

// SetObserver 注册分发观察者（指标上报用），每次 Dispatch/FilterURL 调用一次
func (b *HookBus) SetObserver(fn func(hook string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = fn
}

func (b *HookBus) observe(hook string) {
	b.mu.RLock()
	fn := b.observer
	b.mu.RUnlock()
	if fn != nil {
		fn(hook)
	}
}

// Subscribe 按 manifest 声明注册模块的钩子订阅
func (b *HookBus) Subscribe(slug string, module Module, hooks []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.unsubscribeLocked(slug)
	for _, hook := range hooks {
		if !knownHooks[hook] {
			continue
		}
		b.subs[hook] = append(b.subs[hook], hookSubscriber{slug: slug, module: module})
	}
}

// Unsubscribe 移除模块的全部钩子订阅
func (b *HookBus) Unsubscribe(slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(slug)
}

func (b *HookBus) unsubscribeLocked(slug string) {
	for hook, subs := range b.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s.slug != slug {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, hook)
		} else {
			b.subs[hook] = kept
		}
	}
}

// Subscribers 返回某钩子的订阅模块 slug 列表
func (b *HookBus) Subscribers(hook string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	slugs := make([]string, 0, len(b.subs[hook]))
	for _, s := range b.subs[hook] {
		slugs = append(slugs, s.slug)
	}
	return slugs
}

// Dispatch 分发事件钩子
//
// 依次调用所有订阅模块，单个失败记录日志并继续，
// 返回聚合后的错误（调用方通常只记录不中断主流程）。
func (b *HookBus) Dispatch(ctx context.Context, hook string, payload *HookPayload) error {
	b.mu.RLock()
	subs := append([]hookSubscriber(nil), b.subs[hook]...)
	b.mu.RUnlock()
	b.observe(hook)

	var errs []error
	for _, s := range subs {
		start := time.Now()
		err := s.module.HandleHook(ctx, hook, payload)
		b.logger.HookLog(hook, s.slug, time.Since(start), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", s.slug, err))
		}
	}
	return errors.Join(errs...)
}

// FilterURL 执行 url.generate 过滤器链
//
// payload.URL 初始为平台默认 URL，每个订阅模块可改写，
// 模块出错时跳过该模块、保留当前 URL 继续。
func (b *HookBus) FilterURL(ctx context.Context, media *model.Media, defaultURL string) string {
	b.mu.RLock()
	subs := append([]hookSubscriber(nil), b.subs[HookURLGenerate]...)
	b.mu.RUnlock()
	b.observe(HookURLGenerate)

	payload := &HookPayload{Media: media, URL: defaultURL}
	for _, s := range subs {
		before := payload.URL
		if err := s.module.HandleHook(ctx, HookURLGenerate, payload); err != nil {
			b.logger.WithModule(s.slug).WithError(err).Warn("url.generate 过滤器失败，保留原 URL")
			payload.URL = before
		}
	}
	return payload.URL
}
