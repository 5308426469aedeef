// Package analytics 站内行为统计模块
//
// 订阅内容和媒体钩子，把事件落入模块私有集合。公开文章的每次
// 读取产生一条 post.view 事件，按天聚合为浏览量。
//
// 模块路由：
//   - GET /stats 各钩子总量 + 近若干天的浏览量
//   - GET /top   浏览量最高的文章
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/storage"
	"vyral-cms/pkg/logging"
)

// Slug 模块标识
const Slug = "analytics"

// 事件集合名（实际集合为 mod_analytics_events）
const eventsCollection = "events"

// 默认返回的浏览量榜单长度
const topLimit = 10

// dayFormat 事件按天聚合的键格式
const dayFormat = "2006-01-02"

// Module 统计模块实例
type Module struct {
	host   *cmsmodule.Host
	logger *logging.Logger
	events storage.ModuleCollection

	retentionDays int
}

// New 创建模块实例
func New() cmsmodule.Module {
	return &Module{}
}

// Slug 返回模块标识
func (m *Module) Slug() string {
	return Slug
}

// Initialize 读取配置并绑定事件集合
func (m *Module) Initialize(ctx context.Context, host *cmsmodule.Host, config map[string]json.RawMessage) error {
	m.host = host
	m.logger = logging.Default("mod." + Slug)

	m.retentionDays = 90
	if raw, ok := config["retention_days"]; ok {
		if err := json.Unmarshal(raw, &m.retentionDays); err != nil {
			return fmt.Errorf("retention_days: %w", err)
		}
	}

	m.events = host.Store.ModuleCollection(Slug, eventsCollection)
	return nil
}

// Activate 激活（集合按需创建，无需准备工作）
func (m *Module) Activate(ctx context.Context) error {
	return nil
}

// Deactivate 停用
func (m *Module) Deactivate(ctx context.Context) error {
	return nil
}

// Routes 返回模块处理器
func (m *Module) Routes() map[string]http.Handler {
	return map[string]http.Handler{
		"stats": http.HandlerFunc(m.handleStats),
		"top":   http.HandlerFunc(m.handleTop),
	}
}

// HandleHook 把钩子事件落库
func (m *Module) HandleHook(ctx context.Context, hook string, payload *cmsmodule.HookPayload) error {
	now := time.Now()
	doc := map[string]interface{}{
		"hook":       hook,
		"day":        now.Format(dayFormat),
		"created_at": now,
	}

	switch hook {
	case cmsmodule.HookMediaUpload, cmsmodule.HookMediaDelete:
		if payload.Media == nil {
			return nil
		}
		doc["entity"] = "media"
		doc["entity_id"] = payload.Media.ID
		doc["mime_type"] = payload.Media.MimeType
	case cmsmodule.HookPostPublish, cmsmodule.HookPostView:
		if payload.Post == nil {
			return nil
		}
		doc["entity"] = "post"
		doc["entity_id"] = payload.Post.ID
		doc["slug"] = payload.Post.Slug
	default:
		return nil
	}

	return m.events.InsertOne(ctx, doc)
}

// handleStats 各钩子总量 + 按天聚合的浏览量
func (m *Module) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totals := map[string]int64{}
	for _, hook := range []string{
		cmsmodule.HookMediaUpload,
		cmsmodule.HookMediaDelete,
		cmsmodule.HookPostPublish,
		cmsmodule.HookPostView,
	} {
		count, err := m.events.Count(ctx, map[string]interface{}{"hook": hook})
		if err != nil {
			m.writeError(w, err, "统计事件计数失败")
			return
		}
		totals[hook] = count
	}

	viewsByDay, err := m.aggregateViewsByDay(ctx)
	if err != nil {
		m.writeError(w, err, "聚合每日浏览量失败")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"module":         Slug,
		"retention_days": m.retentionDays,
		"counts":         totals,
		"views_by_day":   viewsByDay,
	})
}

// dayViews 单日浏览量
type dayViews struct {
	Day   string `json:"day"`
	Views int64  `json:"views"`
}

// aggregateViewsByDay 把 post.view 事件按 day 字段聚合，日期升序
func (m *Module) aggregateViewsByDay(ctx context.Context) ([]dayViews, error) {
	docs, err := m.events.Find(ctx, map[string]interface{}{"hook": cmsmodule.HookPostView}, 0)
	if err != nil {
		return nil, err
	}

	byDay := map[string]int64{}
	for _, doc := range docs {
		day, _ := doc["day"].(string)
		if day == "" {
			continue
		}
		byDay[day]++
	}

	result := make([]dayViews, 0, len(byDay))
	for day, views := range byDay {
		result = append(result, dayViews{Day: day, Views: views})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

// topPost 榜单条目
type topPost struct {
	PostID string `json:"post_id"`
	PSlug  string `json:"slug"`
	Views  int64  `json:"views"`
}

// handleTop 浏览量最高的文章
func (m *Module) handleTop(w http.ResponseWriter, r *http.Request) {
	docs, err := m.events.Find(r.Context(), map[string]interface{}{"hook": cmsmodule.HookPostView}, 0)
	if err != nil {
		m.writeError(w, err, "读取浏览事件失败")
		return
	}

	views := map[string]int64{}
	slugs := map[string]string{}
	for _, doc := range docs {
		id, _ := doc["entity_id"].(string)
		if id == "" {
			continue
		}
		views[id]++
		if slug, ok := doc["slug"].(string); ok {
			slugs[id] = slug
		}
	}

	posts := make([]topPost, 0, len(views))
	for id, n := range views {
		posts = append(posts, topPost{PostID: id, PSlug: slugs[id], Views: n})
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Views != posts[j].Views {
			return posts[i].Views > posts[j].Views
		}
		return posts[i].PostID < posts[j].PostID
	})
	if len(posts) > topLimit {
		posts = posts[:topLimit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"module": Slug,
		"posts":  posts,
	})
}

func (m *Module) writeError(w http.ResponseWriter, err error, msg string) {
	m.logger.WithError(err).Error(msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "failed to load analytics"})
}
