// Package cache 缓存层抽象接口
//
// 提供临时状态和缓存的存取能力，当前由 Redis 实现。
package cache

import (
	"context"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// SessionCache 刷新令牌会话缓存接口
//
// 刷新令牌按 JTI 存储会话记录，登出或禁用用户时撤销。
type SessionCache interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, jti string) (*Session, error)
	DeleteSession(ctx context.Context, jti string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

// SettingsCache 站点设置缓存接口
//
// autoload 设置打包缓存，settings API 写入后失效。
type SettingsCache interface {
	SetSettingsBundle(ctx context.Context, bundle map[string]string) error
	GetSettingsBundle(ctx context.Context) (map[string]string, error)
	InvalidateSettings(ctx context.Context) error
}

// OAuthStateCache OAuth 授权流程 state 缓存接口
type OAuthStateCache interface {
	SetOAuthState(ctx context.Context, state string, data *OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	SessionCache
	SettingsCache
	OAuthStateCache
	Close() error
}
