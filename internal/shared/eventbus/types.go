// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// ActivityEvent 站点活动事件
type ActivityEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Entity    string                 `json:"entity,omitempty"`
	EntityID  string                 `json:"entity_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// 活动事件类型常量
const (
	ActivityPostPublished     = "post.published"
	ActivityPostUnpublished   = "post.unpublished"
	ActivityMediaUploaded     = "media.uploaded"
	ActivityMediaDeleted      = "media.deleted"
	ActivityModuleActivated   = "module.activated"
	ActivityModuleDeactivated = "module.deactivated"
	ActivityModuleUninstalled = "module.uninstalled"
	ActivityUserLogin         = "user.login"
	ActivitySettingsChanged   = "settings.changed"
)

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// 活动事件流 Key
	KeyActivityEvents = "activity_events"

	// Stream 最大长度
	MaxStreamLength = 1000
)
