// Package redis 刷新令牌会话缓存操作
package redis

import (
	"context"
	"time"

	"vyral-cms/internal/shared/cache"
)

// CreateSession 写入会话记录
//
// 除按 JTI 存储外，JTI 会加入 session_user:<userID> 集合，
// 支持按用户批量撤销会话。
func (s *Store) CreateSession(ctx context.Context, session *cache.Session) error {
	key := cache.KeySession + session.JTI
	userKey := cache.KeySessionByUser + session.UserID

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = cache.TTLSession
	}

	data := map[string]interface{}{
		"jti":        session.JTI,
		"user_id":    session.UserID,
		"user_agent": session.UserAgent,
		"ip":         session.IP,
		"created_at": session.CreatedAt.Format(time.RFC3339),
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey, session.JTI)
	pipe.Expire(ctx, userKey, cache.TTLSession)
	_, err := pipe.Exec(ctx)

	return err
}

// GetSession 获取会话，不存在返回 (nil, nil)
func (s *Store) GetSession(ctx context.Context, jti string) (*cache.Session, error) {
	result, err := s.client.HGetAll(ctx, cache.KeySession+jti).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	session := &cache.Session{
		JTI:       result["jti"],
		UserID:    result["user_id"],
		UserAgent: result["user_agent"],
		IP:        result["ip"],
	}
	if t, err := time.Parse(time.RFC3339, result["created_at"]); err == nil {
		session.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, result["expires_at"]); err == nil {
		session.ExpiresAt = t
	}
	return session, nil
}

// DeleteSession 撤销单个会话
func (s *Store) DeleteSession(ctx context.Context, jti string) error {
	session, err := s.GetSession(ctx, jti)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, cache.KeySession+jti)
	if session != nil {
		pipe.SRem(ctx, cache.KeySessionByUser+session.UserID, jti)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteUserSessions 撤销用户的全部会话（禁用或删除用户时调用）
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	userKey := cache.KeySessionByUser + userID

	jtis, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, jti := range jtis {
		pipe.Del(ctx, cache.KeySession+jti)
	}
	pipe.Del(ctx, userKey)
	_, err = pipe.Exec(ctx)
	return err
}
