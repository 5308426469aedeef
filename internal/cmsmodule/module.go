// Package cmsmodule 模块（插件）子系统
//
// 模块是编译进二进制的扩展单元，通过磁盘上的 manifest.json 声明元数据、
// API 路由、设置 schema 和订阅的钩子。Manager 负责扫描、激活、停用、
// 卸载和配置更新，激活的模块动态挂载路由并接收钩子分发。
package cmsmodule

import (
	"context"
	"encoding/json"
	"net/http"

	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/objstore"
	"vyral-cms/internal/shared/storage"
	"vyral-cms/pkg/logging"
)

// ============================================================================
// Host - 模块可用的平台能力
// ============================================================================

// Host 注入给模块实例的平台依赖
//
// 模块私有集合通过 Store.ModuleCollection 获取；Objects 在未配置
// 对象存储时可能为 nil，模块需自行判空。
type Host struct {
	Store   storage.PersistentStore
	Objects *objstore.Client
	Cache   cache.Cache
	Events  eventbus.EventBus
	Logger  *logging.Logger

	// SiteBaseURL 站点对外基础 URL，用于拼接公开链接
	SiteBaseURL string
}

// ============================================================================
// Module - 模块实例接口
// ============================================================================

// Module 模块实例必须实现的生命周期接口
//
// Initialize 在每次激活（含配置更新后的重启）前调用，config 为已套用
// 默认值并通过 schema 校验的配置。Routes 返回 manifest 中 handler 名
// 到处理器的映射，未知 handler 名视为激活失败。
type Module interface {
	Slug() string
	Initialize(ctx context.Context, host *Host, config map[string]json.RawMessage) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Routes() map[string]http.Handler
	HandleHook(ctx context.Context, hook string, payload *HookPayload) error
}

// Factory 模块实例工厂，注册到 Registry
type Factory func() Module
