// Package setting 站点设置接口
//
// 设置项为 key → 任意 JSON 值。Autoload 设置组成“公开设置包”，
// 供渲染层在每次页面请求时读取，走 Redis 缓存，写入时失效。
package setting

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
)

// Handler 设置 HTTP 处理器
type Handler struct {
	store  storage.SettingStore
	cache  cache.SettingsCache
	events eventbus.ActivityEventBus
}

// NewHandler 创建设置处理器
func NewHandler(store storage.SettingStore, settingsCache cache.SettingsCache, events eventbus.ActivityEventBus) *Handler {
	return &Handler{store: store, cache: settingsCache, events: events}
}

// RegisterRoutes 注册设置相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/settings", h.List)
	mux.HandleFunc("PUT /api/v1/settings", auth.AdminOnly(h.BulkSet))
	mux.HandleFunc("GET /api/v1/settings/{key}", h.Get)
	mux.HandleFunc("DELETE /api/v1/settings/{key}", auth.AdminOnly(h.Delete))

	// 渲染层公开读取的 autoload 设置包
	mux.HandleFunc("GET /api/v1/settings/public", h.PublicBundle)
}

// ============================================================================
// 请求类型
// ============================================================================

type settingInput struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Group    string          `json:"group"`
	Autoload bool            `json:"autoload"`
}

type bulkSetRequest struct {
	Settings []settingInput `json:"settings"`
}

// ============================================================================
// Handlers
// ============================================================================

// List 列出设置，可选 group 过滤
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.ListSettings(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		log.Printf("[setting.list] ListSettings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings": settings,
		"total":    len(settings),
	})
}

// Get 获取单个设置
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	setting, err := h.store.GetSetting(r.Context(), key)
	if err != nil {
		log.Printf("[setting.get] GetSetting error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if setting == nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// BulkSet 批量写入设置
//
// 全部写入成功后失效公开设置包缓存并发布活动事件。
func (h *Handler) BulkSet(w http.ResponseWriter, r *http.Request) {
	var req bulkSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Settings) == 0 {
		writeError(w, http.StatusBadRequest, "settings array is required")
		return
	}
	for _, s := range req.Settings {
		if s.Key == "" {
			writeError(w, http.StatusBadRequest, "setting key is required")
			return
		}
		if len(s.Value) == 0 {
			writeError(w, http.StatusBadRequest, "setting value is required: "+s.Key)
			return
		}
	}

	now := time.Now()
	keys := make([]string, 0, len(req.Settings))
	for _, s := range req.Settings {
		err := h.store.SetSetting(r.Context(), &model.Setting{
			Key:       s.Key,
			Value:     s.Value,
			Group:     s.Group,
			Autoload:  s.Autoload,
			UpdatedAt: now,
		})
		if err != nil {
			log.Printf("[setting.set] SetSetting %s error: %v", s.Key, err)
			writeError(w, http.StatusInternalServerError, "failed to save setting: "+s.Key)
			return
		}
		keys = append(keys, s.Key)
	}

	h.invalidateBundle(r)
	h.publishActivity(r, keys)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "settings saved",
		"keys":    keys,
	})
}

// Delete 删除设置
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.store.DeleteSetting(r.Context(), key); err != nil {
		log.Printf("[setting.delete] DeleteSetting error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete setting")
		return
	}
	h.invalidateBundle(r)
	writeJSON(w, http.StatusOK, map[string]string{"message": "setting deleted"})
}

// PublicBundle 公开设置包（全部 autoload 设置）
//
// 命中缓存直接返回，未命中时读库并回填。
func (h *Handler) PublicBundle(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		bundle, err := h.cache.GetSettingsBundle(r.Context())
		if err != nil {
			log.Printf("[setting.public] GetSettingsBundle error: %v", err)
		} else if bundle != nil {
			writeJSON(w, http.StatusOK, rawBundle(bundle))
			return
		}
	}

	settings, err := h.store.ListAutoloadSettings(r.Context())
	if err != nil {
		log.Printf("[setting.public] ListAutoloadSettings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	bundle := make(map[string]string, len(settings))
	for _, s := range settings {
		bundle[s.Key] = string(s.Value)
	}

	if h.cache != nil {
		if err := h.cache.SetSettingsBundle(r.Context(), bundle); err != nil {
			log.Printf("[setting.public] SetSettingsBundle error: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, rawBundle(bundle))
}

// ============================================================================
// 内部工具
// ============================================================================

// rawBundle 将字符串形式的设置包还原为 JSON 值
func rawBundle(bundle map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(bundle))
	for k, v := range bundle {
		out[k] = json.RawMessage(v)
	}
	return out
}

func (h *Handler) invalidateBundle(r *http.Request) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateSettings(r.Context()); err != nil {
		log.Printf("[setting] InvalidateSettings error: %v", err)
	}
}

func (h *Handler) publishActivity(r *http.Request, keys []string) {
	if h.events == nil {
		return
	}
	actorID := ""
	if user := auth.GetAuthUser(r.Context()); user != nil {
		actorID = user.ID
	}
	err := h.events.PublishActivity(r.Context(), &eventbus.ActivityEvent{
		Type:      eventbus.ActivitySettingsChanged,
		ActorID:   actorID,
		Entity:    "setting",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"keys": keys},
	})
	if err != nil {
		log.Printf("[setting] PublishActivity error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
