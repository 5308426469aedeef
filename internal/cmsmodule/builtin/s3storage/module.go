// Package s3storage 对象存储直链模块
//
// 订阅 url.generate 过滤器，把媒体下载链接改写为对象存储直链：
// 配置了 public_base_url 时拼接公开 CDN 链接，否则生成预签名 URL。
package s3storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vyral-cms/internal/cmsmodule"
	"vyral-cms/pkg/logging"
)

// Slug 模块标识
const Slug = "s3-storage"

// Module 对象存储直链模块实例
type Module struct {
	host   *cmsmodule.Host
	logger *logging.Logger

	publicBaseURL string
	presignExpiry time.Duration
}

// New 创建模块实例
func New() cmsmodule.Module {
	return &Module{}
}

// Slug 返回模块标识
func (m *Module) Slug() string {
	return Slug
}

// Initialize 读取配置
func (m *Module) Initialize(ctx context.Context, host *cmsmodule.Host, config map[string]json.RawMessage) error {
	m.host = host
	m.logger = logging.Default("mod." + Slug)

	if raw, ok := config["public_base_url"]; ok {
		if err := json.Unmarshal(raw, &m.publicBaseURL); err != nil {
			return fmt.Errorf("public_base_url: %w", err)
		}
		m.publicBaseURL = strings.TrimSuffix(m.publicBaseURL, "/")
	}

	minutes := 15
	if raw, ok := config["presign_expiry_minutes"]; ok {
		if err := json.Unmarshal(raw, &minutes); err != nil {
			return fmt.Errorf("presign_expiry_minutes: %w", err)
		}
	}
	m.presignExpiry = time.Duration(minutes) * time.Minute
	return nil
}

// Activate 激活检查：没有对象存储时模块无事可做
func (m *Module) Activate(ctx context.Context) error {
	if m.host.Objects == nil && m.publicBaseURL == "" {
		return fmt.Errorf("object storage is not configured and public_base_url is empty")
	}
	return nil
}

// Deactivate 停用（无状态，无需清理）
func (m *Module) Deactivate(ctx context.Context) error {
	return nil
}

// Routes 返回模块处理器
func (m *Module) Routes() map[string]http.Handler {
	return map[string]http.Handler{
		"status": http.HandlerFunc(m.handleStatus),
	}
}

// HandleHook 处理 url.generate 过滤器
func (m *Module) HandleHook(ctx context.Context, hook string, payload *cmsmodule.HookPayload) error {
	if hook != cmsmodule.HookURLGenerate || payload.Media == nil {
		return nil
	}

	// 优先公开直链，无需签名
	if m.publicBaseURL != "" {
		payload.URL = m.publicBaseURL + "/" + payload.Media.ObjectKey
		return nil
	}

	url, err := m.host.Objects.PresignedGet(ctx, payload.Media.ObjectKey, payload.Media.FileName, m.presignExpiry)
	if err != nil {
		return fmt.Errorf("presign %s: %w", payload.Media.ObjectKey, err)
	}
	payload.URL = url
	return nil
}

// handleStatus 返回模块运行状态
func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	mode := "presigned"
	if m.publicBaseURL != "" {
		mode = "public"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"module":          Slug,
		"mode":            mode,
		"public_base_url": m.publicBaseURL,
		"presign_expiry":  m.presignExpiry.String(),
	})
}
