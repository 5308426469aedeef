// Package cache 缓存层类型定义
package cache

import (
	"time"
)

// ============================================================================
// 缓存数据类型
// ============================================================================

// Session 刷新令牌会话
type Session struct {
	JTI       string    `json:"jti" redis:"jti"`
	UserID    string    `json:"user_id" redis:"user_id"`
	UserAgent string    `json:"user_agent,omitempty" redis:"user_agent"`
	IP        string    `json:"ip,omitempty" redis:"ip"`
	CreatedAt time.Time `json:"created_at" redis:"created_at"`
	ExpiresAt time.Time `json:"expires_at" redis:"expires_at"`
}

// OAuthState OAuth 授权流程中的临时状态
type OAuthState struct {
	Provider   string `json:"provider" redis:"provider"`
	RedirectTo string `json:"redirect_to,omitempty" redis:"redirect_to"`
	// LinkUserID 非空表示绑定已有账号而非登录
	LinkUserID string `json:"link_user_id,omitempty" redis:"link_user_id"`
}

// ============================================================================
// Key 前缀和 TTL 常量
// ============================================================================

const (
	// Key 前缀
	KeySession        = "session:"
	KeySessionByUser  = "session_user:"
	KeySettingsBundle = "settings:autoload"
	KeyOAuthState     = "oauth_state:"

	// TTL 常量
	TTLSession        = 7 * 24 * time.Hour
	TTLSettingsBundle = 5 * time.Minute
	TTLOAuthState     = 10 * time.Minute
)
