// Package module 模块（插件）管理接口，仅管理员可用
//
// 生命周期操作全部委托给 cmsmodule.Manager，这里只做
// 参数解析、权限控制和错误到 HTTP 状态码的映射。
package module

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/model"
)

// Handler 模块管理 HTTP 处理器
type Handler struct {
	manager *cmsmodule.Manager
}

// NewHandler 创建模块管理处理器
func NewHandler(manager *cmsmodule.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes 注册模块管理路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/modules", auth.AdminOnly(h.List))
	mux.HandleFunc("POST /api/v1/modules/scan", auth.AdminOnly(h.Scan))
	mux.HandleFunc("GET /api/v1/modules/menu", h.Menu)
	mux.HandleFunc("GET /api/v1/modules/{slug}", auth.AdminOnly(h.Get))
	mux.HandleFunc("POST /api/v1/modules/{slug}/activate", auth.AdminOnly(h.Activate))
	mux.HandleFunc("POST /api/v1/modules/{slug}/deactivate", auth.AdminOnly(h.Deactivate))
	mux.HandleFunc("DELETE /api/v1/modules/{slug}", auth.AdminOnly(h.Uninstall))
	mux.HandleFunc("PUT /api/v1/modules/{slug}/config", auth.AdminOnly(h.UpdateConfig))
}

// ============================================================================
// Handlers
// ============================================================================

// List 列出全部模块记录
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	mods, err := h.manager.List(r.Context())
	if err != nil {
		log.Printf("[module.list] List error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list modules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modules": mods,
		"total":   len(mods),
	})
}

// Scan 扫描模块目录，登记新发现的模块包
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	discovered, err := h.manager.Scan(r.Context())
	if err != nil {
		log.Printf("[module.scan] Scan error: %v", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"discovered": discovered,
	})
}

// Menu 聚合激活模块贡献的后台菜单项（登录即可读，前端侧边栏用）
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Menu(r.Context())
	if err != nil {
		log.Printf("[module.menu] Menu error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build menu")
		return
	}
	if items == nil {
		items = []model.ManifestMenuItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"menu": items})
}

// Get 获取模块详情
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

// Activate 激活模块
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.manager.Activate)
}

// Deactivate 停用模块
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.manager.Deactivate)
}

// Uninstall 卸载模块
func (h *Handler) Uninstall(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.manager.Uninstall(r.Context(), mod.Slug); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "module uninstalled"})
}

// UpdateConfig 更新模块配置
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.load(w, r)
	if !ok {
		return
	}

	var config map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.manager.UpdateConfig(r.Context(), mod.Slug, config); err != nil {
		// 校验失败和重启失败都以冲突返回，详情在 message 里
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	updated, err := h.manager.Get(r.Context(), mod.Slug)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "config updated"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ============================================================================
// 内部工具
// ============================================================================

// lifecycle 激活/停用的公共包装
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	mod, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), mod.Slug); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	updated, err := h.manager.Get(r.Context(), mod.Slug)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Module, bool) {
	mod, err := h.manager.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		log.Printf("[module] Get error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if mod == nil {
		writeError(w, http.StatusNotFound, "module not found")
		return nil, false
	}
	return mod, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
