// Package cmsmodule 模块工厂注册表
package cmsmodule

import (
	"sort"
	"sync"
)

// Registry 模块工厂注册表
//
// 模块实现编译进二进制，按 slug 注册工厂。磁盘上发现的模块包
// 只有在注册表中存在同名工厂时才能被激活。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register 注册模块工厂，slug 重复时后注册者生效
func (r *Registry) Register(slug string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[slug] = factory
}

// Lookup 按 slug 查找工厂
func (r *Registry) Lookup(slug string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[slug]
	return f, ok
}

// Slugs 返回已注册的 slug 列表（排序后）
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.factories))
	for slug := range r.factories {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
