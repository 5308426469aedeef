// Package user 用户管理接口（仅管理员可用）
//
// 本系统不提供公开注册，所有账号由管理员创建。
// 禁用用户会同时撤销其全部刷新会话，令其立即下线。
package user

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
)

// Handler 用户管理 HTTP 处理器
type Handler struct {
	store    storage.UserStore
	sessions cache.SessionCache
}

// NewHandler 创建用户管理处理器
func NewHandler(store storage.UserStore, sessions cache.SessionCache) *Handler {
	return &Handler{store: store, sessions: sessions}
}

// RegisterRoutes 注册用户管理路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/users", auth.AdminOnly(h.List))
	mux.HandleFunc("POST /api/v1/users", auth.AdminOnly(h.Create))
	mux.HandleFunc("GET /api/v1/users/{id}", auth.AdminOnly(h.Get))
	mux.HandleFunc("PUT /api/v1/users/{id}", auth.AdminOnly(h.Update))
	mux.HandleFunc("DELETE /api/v1/users/{id}", auth.AdminOnly(h.Delete))
}

// ============================================================================
// 请求类型
// ============================================================================

type createRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateRequest struct {
	Username *string `json:"username"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

func validRole(role string) bool {
	switch model.UserRole(role) {
	case model.UserRoleAdmin, model.UserRoleEditor, model.UserRoleAuthor:
		return true
	}
	return false
}

// ============================================================================
// Handlers
// ============================================================================

// List 列出全部用户
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("[user.list] ListUsers error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}

// Create 创建用户
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = string(model.UserRoleAuthor)
	}
	if !validRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:           generateID("usr"),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         model.UserRole(req.Role),
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Username == "" {
		user.Username = req.Email
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("[user.create] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	log.Printf("[user] Created user %s (%s, role=%s)", user.ID, user.Email, user.Role)
	writeJSON(w, http.StatusCreated, user)
}

// Get 获取用户详情
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Update 更新用户名、角色或状态
//
// 管理员不能降级或禁用自己，避免把系统锁死。
// 禁用用户时撤销其全部会话。
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	actor := auth.GetAuthUser(r.Context())

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username != nil && *req.Username != "" {
		user.Username = *req.Username
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		if actor != nil && actor.ID == user.ID && *req.Role != string(model.UserRoleAdmin) {
			writeError(w, http.StatusConflict, "cannot change your own role")
			return
		}
		user.Role = model.UserRole(*req.Role)
	}

	disabled := false
	if req.Status != nil {
		switch model.UserStatus(*req.Status) {
		case model.UserStatusActive:
			user.Status = model.UserStatusActive
		case model.UserStatusDisabled:
			if actor != nil && actor.ID == user.ID {
				writeError(w, http.StatusConflict, "cannot disable your own account")
				return
			}
			user.Status = model.UserStatusDisabled
			disabled = true
		default:
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		log.Printf("[user.update] UpdateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	if disabled && h.sessions != nil {
		if err := h.sessions.DeleteUserSessions(r.Context(), user.ID); err != nil {
			log.Printf("[user.update] DeleteUserSessions error: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, user)
}

// Delete 删除用户
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	actor := auth.GetAuthUser(r.Context())
	if actor != nil && actor.ID == user.ID {
		writeError(w, http.StatusConflict, "cannot delete your own account")
		return
	}

	if err := h.store.DeleteUser(r.Context(), user.ID); err != nil {
		log.Printf("[user.delete] DeleteUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if h.sessions != nil {
		if err := h.sessions.DeleteUserSessions(r.Context(), user.ID); err != nil {
			log.Printf("[user.delete] DeleteUserSessions error: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// ============================================================================
// 内部工具
// ============================================================================

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, err := h.store.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[user] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
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
