// Package setup 站点初始化接口
//
// 首次部署时调用 install 创建管理员账号、写入基础设置并落下
// install.lock。锁存在后所有 setup 写操作被拒，只剩 status 查询。
package setup

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
	"vyral-cms/internal/shared/sysinstall"
)

// Store 安装流程所需的存储操作
type Store interface {
	storage.UserStore
	storage.SettingStore
}

// Handler 安装 HTTP 处理器
type Handler struct {
	store   Store
	dataDir string
	version string
}

// NewHandler 创建安装处理器
func NewHandler(store Store, dataDir, version string) *Handler {
	return &Handler{store: store, dataDir: dataDir, version: version}
}

// RegisterRoutes 注册安装路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/setup/status", h.Status)
	mux.HandleFunc("POST /api/v1/setup/install", h.Install)
}

// ============================================================================
// 请求类型
// ============================================================================

type installRequest struct {
	SiteName      string `json:"site_name"`
	SiteURL       string `json:"site_url"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
	AdminUsername string `json:"admin_username"`
}

// ============================================================================
// Handlers
// ============================================================================

// Status 查询安装状态
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	lock, err := sysinstall.ReadLock(h.dataDir)
	if err != nil {
		log.Printf("[setup.status] ReadLock error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if lock == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"installed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"installed":    true,
		"site_name":    lock.SiteName,
		"installed_at": lock.InstalledAt,
		"version":      lock.Version,
	})
}

// Install 执行一次性安装
//
// 创建管理员账号、写入基础站点设置、落下 install.lock。
// 已安装时返回 409。
func (h *Handler) Install(w http.ResponseWriter, r *http.Request) {
	if sysinstall.IsInstalled(h.dataDir) {
		writeError(w, http.StatusConflict, "site is already installed")
		return
	}

	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SiteName == "" || req.AdminEmail == "" || req.AdminPassword == "" {
		writeError(w, http.StatusBadRequest, "site_name, admin_email and admin_password are required")
		return
	}
	if len(req.AdminPassword) < 8 {
		writeError(w, http.StatusBadRequest, "admin password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.AdminPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	admin := &model.User{
		ID:           generateID("usr"),
		Email:        req.AdminEmail,
		Username:     req.AdminUsername,
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if admin.Username == "" {
		admin.Username = "Admin"
	}
	if err := h.store.CreateUser(r.Context(), admin); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "admin email already registered")
			return
		}
		log.Printf("[setup.install] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create admin user")
		return
	}

	// 基础站点设置，公开设置包的初始内容
	seed := []*model.Setting{
		{Key: "site.title", Value: jsonString(req.SiteName), Group: "site", Autoload: true, UpdatedAt: now},
		{Key: "site.url", Value: jsonString(req.SiteURL), Group: "site", Autoload: true, UpdatedAt: now},
		{Key: "posts.per_page", Value: json.RawMessage(`10`), Group: "posts", Autoload: true, UpdatedAt: now},
	}
	for _, s := range seed {
		if err := h.store.SetSetting(r.Context(), s); err != nil {
			log.Printf("[setup.install] SetSetting %s error: %v", s.Key, err)
		}
	}

	err = sysinstall.WriteLock(h.dataDir, &sysinstall.InstallLock{
		Version:    h.version,
		SiteName:   req.SiteName,
		AdminEmail: req.AdminEmail,
	})
	if err != nil {
		log.Printf("[setup.install] WriteLock error: %v", err)
		writeError(w, http.StatusConflict, "installation already in progress")
		return
	}

	systemdInstalled := h.finalizeSystemInstall()

	message := "installation complete"
	if systemdInstalled {
		message = "installation complete, systemd service installed"
	}

	log.Printf("[setup] Site installed: %s (admin %s)", req.SiteName, req.AdminEmail)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": message,
		"admin":   admin,
	})
}

// finalizeSystemInstall 以 root 运行时完成系统级安装
//
// 创建服务用户和标准目录、收紧锁文件权限，有 systemd 且当前
// 不在 systemd 下时安装 service 文件。所有步骤失败只告警，
// 站点安装本身已经完成。只有使用标准数据目录的部署才执行，
// 自定义目录（开发环境）不碰系统路径。
func (h *Handler) finalizeSystemInstall() bool {
	if !sysinstall.IsRoot() || h.dataDir != sysinstall.DataDir {
		return false
	}

	if err := sysinstall.EnsureSystemUser(); err != nil {
		log.Printf("WARNING: failed to create system user: %v", err)
	}
	if err := sysinstall.EnsureDirectories(); err != nil {
		log.Printf("WARNING: failed to create system directories: %v", err)
	}

	sysinstall.SetFileOwnership(h.dataDir)
	sysinstall.SetSecureFilePermissions(filepath.Join(h.dataDir, sysinstall.LockFileName))

	if !sysinstall.HasSystemd() || sysinstall.IsUnderSystemd() {
		return false
	}

	serviceName := "vyral-cms-api-server"
	content := sysinstall.GenerateServiceFile(
		sysinstall.GetExecutablePath(),
		serviceName,
		"Vyral CMS API Server",
		filepath.Join(sysinstall.ConfigDir, "prod.env"),
		"mongod.service redis.service",
	)
	if err := sysinstall.InstallSystemdService(serviceName, content); err != nil {
		log.Printf("WARNING: failed to install systemd service: %v", err)
		return false
	}
	return true
}

// ============================================================================
// 内部工具
// ============================================================================

func jsonString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
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
