// Package media 媒体库接口
//
// 文件内容写入对象存储，Mongo 只保存元数据。删除媒体时同步清理
// 对象存储并分发 media.delete 钩子，激活的存储类模块可借此维护 CDN。
package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
)

// 单次上传大小上限（64 MB）
const maxUploadSize = 64 << 20

// ObjectStore 对象存储操作接口（生产实现为 objstore.Client）
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Handler 媒体 HTTP 处理器
type Handler struct {
	store   storage.MediaStore
	objects ObjectStore
	hooks   *cmsmodule.HookBus
	events  eventbus.ActivityEventBus
}

// NewHandler 创建媒体处理器
func NewHandler(store storage.MediaStore, objects ObjectStore, hooks *cmsmodule.HookBus, events eventbus.ActivityEventBus) *Handler {
	return &Handler{store: store, objects: objects, hooks: hooks, events: events}
}

// RegisterRoutes 注册媒体相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/media", h.Upload)
	mux.HandleFunc("GET /api/v1/media", h.List)
	mux.HandleFunc("GET /api/v1/media/{id}", h.Get)
	mux.HandleFunc("PATCH /api/v1/media/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/media/{id}", h.Delete)
	mux.HandleFunc("GET /api/v1/media/{id}/url", h.ResolveURL)

	// 公开下载，渲染层引用的默认地址
	mux.HandleFunc("GET /api/v1/public/media/{id}", h.PublicDownload)
}

// ============================================================================
// Handlers
// ============================================================================

// Upload 上传文件（multipart/form-data，file 字段必填）
//
// 可选表单字段：folder、alt_text。未指定 folder 时按年月归档。
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if h.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	fileName := path.Base(header.Filename)
	if fileName == "" || fileName == "." || fileName == "/" {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	folder := r.FormValue("folder")
	if folder == "" {
		folder = time.Now().Format("2006/01")
	}

	now := time.Now()
	media := &model.Media{
		ID:         generateID("med"),
		FileName:   fileName,
		MimeType:   header.Header.Get("Content-Type"),
		Size:       header.Size,
		Folder:     folder,
		UploaderID: user.ID,
		AltText:    r.FormValue("alt_text"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	media.ObjectKey = fmt.Sprintf("%s/%s/%s", folder, media.ID, fileName)

	if err := h.objects.Upload(r.Context(), media.ObjectKey, file, header.Size, media.MimeType); err != nil {
		log.Printf("[media.upload] object upload error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	if err := h.store.CreateMedia(r.Context(), media); err != nil {
		// 元数据写入失败时回滚对象
		if derr := h.objects.Delete(r.Context(), media.ObjectKey); derr != nil {
			log.Printf("[media.upload] rollback delete error: %v", derr)
		}
		log.Printf("[media.upload] CreateMedia error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save media record")
		return
	}

	if h.hooks != nil {
		if err := h.hooks.Dispatch(r.Context(), cmsmodule.HookMediaUpload, &cmsmodule.HookPayload{Media: media}); err != nil {
			log.Printf("[media.upload] hook errors: %v", err)
		}
	}
	h.publishActivity(r, eventbus.ActivityMediaUploaded, media)

	log.Printf("[media] Uploaded %s (%s, %d bytes) by %s", media.ID, media.FileName, media.Size, user.ID)
	writeJSON(w, http.StatusCreated, media)
}

// List 列出媒体
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.MediaFilter{
		Folder:     r.URL.Query().Get("folder"),
		UploaderID: r.URL.Query().Get("uploader_id"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	items, total, err := h.store.ListMedia(r.Context(), filter)
	if err != nil {
		log.Printf("[media.list] ListMedia error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list media")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"media":  items,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Get 获取媒体元数据
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	media, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, media)
}

type updateRequest struct {
	AltText  *string `json:"alt_text"`
	Folder   *string `json:"folder"`
	FileName *string `json:"file_name"`
}

// Update 更新媒体元数据（不移动对象）
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	media, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AltText != nil {
		media.AltText = *req.AltText
	}
	if req.Folder != nil {
		media.Folder = *req.Folder
	}
	if req.FileName != nil && *req.FileName != "" {
		media.FileName = path.Base(*req.FileName)
	}

	if err := h.store.UpdateMedia(r.Context(), media); err != nil {
		log.Printf("[media.update] UpdateMedia error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update media")
		return
	}
	writeJSON(w, http.StatusOK, media)
}

// Delete 删除媒体（对象存储与元数据一并删除）
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	media, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	if h.objects != nil {
		if err := h.objects.Delete(r.Context(), media.ObjectKey); err != nil {
			log.Printf("[media.delete] object delete error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to delete file")
			return
		}
	}
	if err := h.store.DeleteMedia(r.Context(), media.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		log.Printf("[media.delete] DeleteMedia error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete media")
		return
	}

	if h.hooks != nil {
		if err := h.hooks.Dispatch(r.Context(), cmsmodule.HookMediaDelete, &cmsmodule.HookPayload{Media: media}); err != nil {
			log.Printf("[media.delete] hook errors: %v", err)
		}
	}
	h.publishActivity(r, eventbus.ActivityMediaDeleted, media)

	writeJSON(w, http.StatusOK, map[string]string{"message": "media deleted"})
}

// ResolveURL 解析媒体访问地址
//
// 默认返回本服务的公开下载地址，激活的存储类模块可通过
// url.generate 过滤器改写为 CDN 或预签名地址。
func (h *Handler) ResolveURL(w http.ResponseWriter, r *http.Request) {
	media, ok := h.load(w, r)
	if !ok {
		return
	}

	url := defaultMediaURL(media)
	if h.hooks != nil {
		url = h.hooks.FilterURL(r.Context(), media, url)
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": media.ID, "url": url})
}

// PublicDownload 公开下载媒体内容
func (h *Handler) PublicDownload(w http.ResponseWriter, r *http.Request) {
	media, ok := h.load(w, r)
	if !ok {
		return
	}
	if h.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}

	obj, err := h.objects.Download(r.Context(), media.ObjectKey)
	if err != nil {
		log.Printf("[media.download] object download error: %v", err)
		writeError(w, http.StatusNotFound, "file not found in storage")
		return
	}
	defer obj.Close()

	if media.MimeType != "" {
		w.Header().Set("Content-Type", media.MimeType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(media.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", media.FileName))
	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("[media.download] stream error: %v", err)
	}
}

// ============================================================================
// 内部工具
// ============================================================================

func defaultMediaURL(media *model.Media) string {
	return "/api/v1/public/media/" + media.ID
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Media, bool) {
	media, err := h.store.GetMedia(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[media] GetMedia error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if media == nil {
		writeError(w, http.StatusNotFound, "media not found")
		return nil, false
	}
	return media, true
}

// loadAuthorized 加载媒体并检查修改权限（author 只能改自己上传的）
func (h *Handler) loadAuthorized(w http.ResponseWriter, r *http.Request) (*model.Media, bool) {
	media, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	user := auth.GetAuthUser(r.Context())
	if user != nil && user.Role == string(model.UserRoleAuthor) && media.UploaderID != user.ID {
		writeError(w, http.StatusForbidden, "you can only manage your own uploads")
		return nil, false
	}
	return media, true
}

func (h *Handler) publishActivity(r *http.Request, eventType string, media *model.Media) {
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
		Entity:    "media",
		EntityID:  media.ID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"file_name": media.FileName, "mime_type": media.MimeType},
	})
	if err != nil {
		log.Printf("[media] PublishActivity error: %v", err)
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
