// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（MongoDB）
//   - Cache：缓存（Redis），包含会话、设置包、OAuth state
//   - EventBus：活动事件总线（Redis Streams）
package infra

import (
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储（MongoDB）
	Storage storage.PersistentStore

	// Cache 缓存（Redis）
	Cache cache.Cache

	// EventBus 活动事件总线（Redis）
	EventBus eventbus.EventBus
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}

	if i.EventBus != nil {
		if err := i.EventBus.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewMemInfrastructure 创建内存版基础设施（用于测试）
func NewMemInfrastructure() *Infrastructure {
	return &Infrastructure{
		Cache:    cache.NewMemCache(),
		EventBus: eventbus.NewMemEventBus(),
	}
}
