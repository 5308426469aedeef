// Package cmsmodule 动态路由表
package cmsmodule

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// RoutePrefix 模块路由统一挂载前缀
const RoutePrefix = "/api/modules/"

// mountedRoute 已挂载的单条路由
type mountedRoute struct {
	method  string
	path    string // 完整路径，含前缀和 slug
	handler http.Handler
}

// RouteTable 模块动态路由表
//
// 标准库 ServeMux 不支持运行时卸载，模块路由改由 RouteTable 处理：
// 整个 RoutePrefix 子树指向 RouteTable.ServeHTTP，内部按
// method+path 精确匹配，激活/停用时增删条目。
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]http.Handler // "METHOD path" → handler
	bySlug map[string][]string     // slug → 挂载的 route key 列表
}

// NewRouteTable 创建空路由表
func NewRouteTable() *RouteTable {
	return &RouteTable{
		routes: make(map[string]http.Handler),
		bySlug: make(map[string][]string),
	}
}

// ModulePath 拼接模块路由的完整路径
func ModulePath(slug, path string) string {
	return RoutePrefix + slug + path
}

// Mount 挂载模块的全部路由，slug 已有条目时先清除
func (t *RouteTable) Mount(slug string, routes []mountedRoute) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.unmountLocked(slug)

	keys := make([]string, 0, len(routes))
	for _, r := range routes {
		key := r.method + " " + r.path
		t.routes[key] = r.handler
		keys = append(keys, key)
	}
	t.bySlug[slug] = keys
}

// Unmount 卸载模块的全部路由
func (t *RouteTable) Unmount(slug string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unmountLocked(slug)
}

func (t *RouteTable) unmountLocked(slug string) {
	for _, key := range t.bySlug[slug] {
		delete(t.routes, key)
	}
	delete(t.bySlug, slug)
}

// Len 返回当前挂载的路由条数
func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// ServeHTTP 按 method+path 精确匹配分发
func (t *RouteTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}

	t.mu.RLock()
	handler, ok := t.routes[r.Method+" "+path]
	t.mu.RUnlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "module route not found"})
		return
	}
	handler.ServeHTTP(w, r)
}
