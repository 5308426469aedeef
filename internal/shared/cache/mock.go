// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"sync"
)

// ============================================================================
// MemCache - 内存版 Cache 实现（用于测试和无 Redis 的降级运行）
// ============================================================================

// MemCache 基于 map 的 Cache 实现
type MemCache struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	bundle   map[string]string
	states   map[string]*OAuthState
}

// NewMemCache 创建 MemCache 实例
func NewMemCache() *MemCache {
	return &MemCache{
		sessions: make(map[string]*Session),
		states:   make(map[string]*OAuthState),
	}
}

// Close 关闭缓存
func (c *MemCache) Close() error {
	return nil
}

// SessionCache 方法

func (c *MemCache) CreateSession(ctx context.Context, session *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *session
	c.sessions[session.JTI] = &cp
	return nil
}

func (c *MemCache) GetSession(ctx context.Context, jti string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.sessions[jti]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (c *MemCache) DeleteSession(ctx context.Context, jti string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, jti)
	return nil
}

func (c *MemCache) DeleteUserSessions(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for jti, s := range c.sessions {
		if s.UserID == userID {
			delete(c.sessions, jti)
		}
	}
	return nil
}

// SettingsCache 方法

func (c *MemCache) SetSettingsBundle(ctx context.Context, bundle map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[string]string, len(bundle))
	for k, v := range bundle {
		cp[k] = v
	}
	c.bundle = cp
	return nil
}

func (c *MemCache) GetSettingsBundle(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil {
		return nil, nil
	}
	cp := make(map[string]string, len(c.bundle))
	for k, v := range c.bundle {
		cp[k] = v
	}
	return cp, nil
}

func (c *MemCache) InvalidateSettings(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle = nil
	return nil
}

// OAuthStateCache 方法

func (c *MemCache) SetOAuthState(ctx context.Context, state string, data *OAuthState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *data
	c.states[state] = &cp
	return nil
}

func (c *MemCache) ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[state]
	if !ok {
		return nil, nil
	}
	delete(c.states, state)
	cp := *s
	return &cp, nil
}

// 确保 MemCache 实现了 Cache 接口
var _ Cache = (*MemCache)(nil)
