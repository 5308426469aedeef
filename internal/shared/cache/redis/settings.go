// Package redis 站点设置缓存操作
package redis

import (
	"context"

	"vyral-cms/internal/shared/cache"
)

// SetSettingsBundle 缓存 autoload 设置包
func (s *Store) SetSettingsBundle(ctx context.Context, bundle map[string]string) error {
	if len(bundle) == 0 {
		return nil
	}

	data := make(map[string]interface{}, len(bundle))
	for k, v := range bundle {
		data[k] = v
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, cache.KeySettingsBundle)
	pipe.HSet(ctx, cache.KeySettingsBundle, data)
	pipe.Expire(ctx, cache.KeySettingsBundle, cache.TTLSettingsBundle)
	_, err := pipe.Exec(ctx)
	return err
}

// GetSettingsBundle 获取缓存的设置包，未命中返回 (nil, nil)
func (s *Store) GetSettingsBundle(ctx context.Context) (map[string]string, error) {
	result, err := s.client.HGetAll(ctx, cache.KeySettingsBundle).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// InvalidateSettings 设置写入后使缓存失效
func (s *Store) InvalidateSettings(ctx context.Context) error {
	return s.client.Del(ctx, cache.KeySettingsBundle).Err()
}
