// Package post 文章管理接口
//
// 权限模型：
//   - admin / editor：全部文章
//   - author：仅自己创建的文章
//
// 公开读取接口（/api/v1/public/...）只返回已发布内容，供渲染层调用。
package post

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
)

// Handler 文章 HTTP 处理器
type Handler struct {
	store  storage.PostStore
	hooks  *cmsmodule.HookBus
	events eventbus.ActivityEventBus
}

// NewHandler 创建文章处理器
func NewHandler(store storage.PostStore, hooks *cmsmodule.HookBus, events eventbus.ActivityEventBus) *Handler {
	return &Handler{store: store, hooks: hooks, events: events}
}

// RegisterRoutes 注册文章相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/posts", h.List)
	mux.HandleFunc("POST /api/v1/posts", h.Create)
	mux.HandleFunc("GET /api/v1/posts/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/posts/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/posts/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/posts/{id}/publish", h.Publish)
	mux.HandleFunc("POST /api/v1/posts/{id}/unpublish", h.Unpublish)
	mux.HandleFunc("POST /api/v1/posts/{id}/archive", h.Archive)

	// 渲染层公开接口
	mux.HandleFunc("GET /api/v1/public/posts", h.PublicList)
	mux.HandleFunc("GET /api/v1/public/posts/{slug}", h.PublicGet)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type postRequest struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Excerpt         string   `json:"excerpt"`
	Tags            []string `json:"tags"`
	Categories      []string `json:"categories"`
	FeaturedMediaID *string  `json:"featured_media_id"`
	Slug            string   `json:"slug"` // 可选，为空时由标题派生
}

type listResponse struct {
	Posts  []*model.Post `json:"posts"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ============================================================================
// Handlers
// ============================================================================

// List 列出文章（author 角色只能看到自己的）
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())

	filter := storage.PostFilter{
		Status:   r.URL.Query().Get("status"),
		Tag:      r.URL.Query().Get("tag"),
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}
	if user != nil && !canEditAll(user) {
		filter.AuthorID = user.ID
	} else {
		filter.AuthorID = r.URL.Query().Get("author_id")
	}

	posts, total, err := h.store.ListPosts(r.Context(), filter)
	if err != nil {
		log.Printf("[post.list] ListPosts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Posts: posts, Total: total, Limit: filter.Limit, Offset: filter.Offset,
	})
}

// Create 创建文章（草稿状态）
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = model.Slugify(req.Title)
	}
	slug, err := h.uniqueSlug(r.Context(), slug)
	if err != nil {
		log.Printf("[post.create] uniqueSlug error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	post := &model.Post{
		ID:              generateID("post"),
		Title:           req.Title,
		Slug:            slug,
		Content:         req.Content,
		Excerpt:         req.Excerpt,
		Status:          model.PostStatusDraft,
		AuthorID:        user.ID,
		Tags:            req.Tags,
		Categories:      req.Categories,
		FeaturedMediaID: req.FeaturedMediaID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.store.CreatePost(r.Context(), post); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "slug already in use")
			return
		}
		log.Printf("[post.create] CreatePost error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// uniqueSlug 保证 slug 全局唯一，冲突时追加 -2、-3 后缀
func (h *Handler) uniqueSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for i := 2; ; i++ {
		existing, err := h.store.GetPostBySlug(ctx, slug)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
		if i > 100 {
			return "", fmt.Errorf("cannot find unique slug for %q", base)
		}
	}
}

// Get 获取文章详情
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Update 更新文章内容（状态不在此接口变更）
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	post.Title = req.Title
	post.Content = req.Content
	post.Excerpt = req.Excerpt
	post.Tags = req.Tags
	post.Categories = req.Categories
	post.FeaturedMediaID = req.FeaturedMediaID

	// slug 变更需重新查重
	if req.Slug != "" && req.Slug != post.Slug {
		existing, err := h.store.GetPostBySlug(r.Context(), req.Slug)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if existing != nil && existing.ID != post.ID {
			writeError(w, http.StatusConflict, "slug already in use")
			return
		}
		post.Slug = req.Slug
	}

	if err := h.store.UpdatePost(r.Context(), post); err != nil {
		log.Printf("[post.update] UpdatePost error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update post")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// Delete 删除文章
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	if err := h.store.DeletePost(r.Context(), post.ID); err != nil {
		log.Printf("[post.delete] DeletePost error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted"})
}

// Publish 发布文章
//
// 首次发布时记录 PublishedAt，重新发布保留原时间。
// 发布成功后分发 post.publish 钩子并发布活动事件。
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	if post.IsPublished() {
		writeError(w, http.StatusConflict, "post is already published")
		return
	}

	var publishedAt *time.Time
	if post.PublishedAt == nil {
		now := time.Now()
		publishedAt = &now
	}

	if err := h.store.UpdatePostStatus(r.Context(), post.ID, model.PostStatusPublished, publishedAt); err != nil {
		log.Printf("[post.publish] UpdatePostStatus error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to publish post")
		return
	}

	post.Status = model.PostStatusPublished
	if publishedAt != nil {
		post.PublishedAt = publishedAt
	}

	if h.hooks != nil {
		if err := h.hooks.Dispatch(r.Context(), cmsmodule.HookPostPublish, &cmsmodule.HookPayload{Post: post}); err != nil {
			log.Printf("[post.publish] hook errors: %v", err)
		}
	}
	h.publishActivity(r, eventbus.ActivityPostPublished, post)

	writeJSON(w, http.StatusOK, post)
}

// Unpublish 撤回发布，回到草稿
func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	if !post.IsPublished() {
		writeError(w, http.StatusConflict, "post is not published")
		return
	}

	if err := h.store.UpdatePostStatus(r.Context(), post.ID, model.PostStatusDraft, nil); err != nil {
		log.Printf("[post.unpublish] UpdatePostStatus error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to unpublish post")
		return
	}

	post.Status = model.PostStatusDraft
	h.publishActivity(r, eventbus.ActivityPostUnpublished, post)
	writeJSON(w, http.StatusOK, post)
}

// Archive 归档已发布文章
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	if post.Status == model.PostStatusArchived {
		writeError(w, http.StatusConflict, "post is already archived")
		return
	}

	if err := h.store.UpdatePostStatus(r.Context(), post.ID, model.PostStatusArchived, nil); err != nil {
		log.Printf("[post.archive] UpdatePostStatus error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to archive post")
		return
	}

	post.Status = model.PostStatusArchived
	writeJSON(w, http.StatusOK, post)
}

// ============================================================================
// 公开接口
// ============================================================================

// PublicList 公开的已发布文章列表
func (h *Handler) PublicList(w http.ResponseWriter, r *http.Request) {
	filter := storage.PostFilter{
		Status:   string(model.PostStatusPublished),
		Tag:      r.URL.Query().Get("tag"),
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}

	posts, total, err := h.store.ListPosts(r.Context(), filter)
	if err != nil {
		log.Printf("[post.public] ListPosts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Posts: posts, Total: total, Limit: filter.Limit, Offset: filter.Offset,
	})
}

// PublicGet 按 slug 公开读取已发布文章
func (h *Handler) PublicGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.GetPostBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		log.Printf("[post.public] GetPostBySlug error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if post == nil || !post.IsPublished() {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	// 浏览事件交给订阅模块（统计等），失败不影响读取
	if h.hooks != nil {
		if err := h.hooks.Dispatch(r.Context(), cmsmodule.HookPostView, &cmsmodule.HookPayload{Post: post}); err != nil {
			log.Printf("[post.public] view hook errors: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, post)
}

// ============================================================================
// 内部工具
// ============================================================================

// loadAuthorized 加载文章并检查当前用户的编辑权限
func (h *Handler) loadAuthorized(w http.ResponseWriter, r *http.Request) (*model.Post, bool) {
	user := auth.GetAuthUser(r.Context())

	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[post] GetPost error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return nil, false
	}
	if user != nil && !canEditAll(user) && post.AuthorID != user.ID {
		writeError(w, http.StatusForbidden, "you can only manage your own posts")
		return nil, false
	}
	return post, true
}

func canEditAll(user *auth.AuthUser) bool {
	return user.Role == string(model.UserRoleAdmin) || user.Role == string(model.UserRoleEditor)
}

func (h *Handler) publishActivity(r *http.Request, eventType string, post *model.Post) {
	if h.events == nil {
		return
	}
	actorID := ""
	if user := auth.GetAuthUser(r.Context()); user != nil {
		actorID = user.ID
	}
	err := h.events.PublishActivity(r.Context(), &eventbus.ActivityEvent{
		Type:      eventType,
		ActorID:   actorID,
		Entity:    "post",
		EntityID:  post.ID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"title": post.Title, "slug": post.Slug},
	})
	if err != nil {
		log.Printf("[post] PublishActivity error: %v", err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
