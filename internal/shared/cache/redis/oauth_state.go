// Package redis OAuth state 缓存操作
package redis

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"

	"vyral-cms/internal/shared/cache"
)

// SetOAuthState 写入 OAuth state，带 10 分钟 TTL
func (s *Store) SetOAuthState(ctx context.Context, state string, data *cache.OAuthState) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cache.KeyOAuthState+state, payload, cache.TTLOAuthState).Err()
}

// ConsumeOAuthState 取出并删除 state（一次性），不存在返回 (nil, nil)
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (*cache.OAuthState, error) {
	payload, err := s.client.GetDel(ctx, cache.KeyOAuthState+state).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data cache.OAuthState
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// 确保 Store 实现了 Cache 接口
var _ cache.Cache = (*Store)(nil)
