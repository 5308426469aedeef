// Package model 定义核心数据模型
//
// setting.go 包含站点设置相关的数据模型定义
package model

import (
	"encoding/json"
	"time"
)

// Setting 站点设置项
//
// Key 全局唯一（如 "site.title"、"media.max_upload_size"）。
// Value 为任意 JSON 值；Autoload 为 true 的设置在启动时整体加载并缓存。
type Setting struct {
	Key       string          `json:"key" bson:"_id"`
	Value     json.RawMessage `json:"value" bson:"value"`
	Group     string          `json:"group,omitempty" bson:"group,omitempty"`
	Autoload  bool            `json:"autoload" bson:"autoload"`
	UpdatedAt time.Time       `json:"updated_at" bson:"updated_at"`
}
