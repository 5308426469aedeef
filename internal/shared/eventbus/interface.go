// Package eventbus 事件总线抽象接口
//
// 提供站点活动事件的发布/订阅能力，当前由 Redis Streams 实现。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// ActivityEventBus 站点活动事件总线接口
//
// 后台操作（发布文章、上传媒体、启停模块等）发布活动事件，
// 管理端通过 WebSocket 订阅实时动态。
type ActivityEventBus interface {
	PublishActivity(ctx context.Context, event *ActivityEvent) error
	// GetActivities 从 fromID 之后正序读取（游标分页），fromID 为空时从头读
	GetActivities(ctx context.Context, fromID string, count int64) ([]*ActivityEvent, error)
	// GetRecentActivities 读取最新的 count 条，按时间正序返回（连接回放用）
	GetRecentActivities(ctx context.Context, count int64) ([]*ActivityEvent, error)
	GetActivityCount(ctx context.Context) (int64, error)
	SubscribeActivities(ctx context.Context) (<-chan *ActivityEvent, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// EventBus 事件总线组合接口
type EventBus interface {
	ActivityEventBus
	Close() error
}
