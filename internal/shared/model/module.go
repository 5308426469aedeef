// Package model 定义核心数据模型
//
// module.go 包含模块（插件）子系统相关的数据模型定义：
//   - Module：模块持久化记录
//   - ModuleStatus：生命周期状态枚举
//   - Manifest：模块包描述文件（manifest.json）
package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// ModuleStatus - 模块状态
// ============================================================================

// ModuleStatus 表示模块的生命周期状态
//
// 状态流转：
//
//	installed → active ⇄ inactive
//	     ↓        ↓
//	   error ←────┘ (激活/恢复失败)
//
// 状态说明：
//   - installed：包已发现并登记，从未激活
//   - active：模块实例已加载，路由和钩子已挂载
//   - inactive：管理员手动停用，配置保留
//   - error：激活或启动恢复失败，详见 StatusMessage
type ModuleStatus string

const (
	ModuleStatusInstalled ModuleStatus = "installed"
	ModuleStatusActive    ModuleStatus = "active"
	ModuleStatusInactive  ModuleStatus = "inactive"
	ModuleStatusError     ModuleStatus = "error"
)

// ============================================================================
// Manifest - 模块包描述
// ============================================================================

// ManifestRoute 模块声明的 API 路由
//
// 路由最终挂载在 /api/modules/{slug}{path} 下，Handler 为模块实现中
// 注册的处理器名称。
type ManifestRoute struct {
	Method  string `json:"method" bson:"method"`
	Path    string `json:"path" bson:"path"`
	Handler string `json:"handler" bson:"handler"`
}

// ManifestMenuItem 模块贡献的管理后台菜单项
type ManifestMenuItem struct {
	Title string `json:"title" bson:"title"`
	Path  string `json:"path" bson:"path"`
	Icon  string `json:"icon,omitempty" bson:"icon,omitempty"`
	Order int    `json:"order,omitempty" bson:"order,omitempty"`
}

// ManifestSetting 模块设置项的声明（简化 JSON Schema）
type ManifestSetting struct {
	Type        string          `json:"type" bson:"type"` // string | integer | number | boolean
	Default     json.RawMessage `json:"default,omitempty" bson:"default,omitempty"`
	Enum        []string        `json:"enum,omitempty" bson:"enum,omitempty"`
	Description string          `json:"description,omitempty" bson:"description,omitempty"`
	Required    bool            `json:"required,omitempty" bson:"required,omitempty"`
}

// Manifest 模块包描述文件（manifest.json）
//
// 每个模块目录必须包含一个 manifest.json，声明元数据、API 路由、
// 设置 schema、菜单贡献和订阅的钩子。
type Manifest struct {
	Name        string                     `json:"name" bson:"name"`
	Slug        string                     `json:"slug" bson:"slug"`
	Version     string                     `json:"version" bson:"version"`
	Description string                     `json:"description,omitempty" bson:"description,omitempty"`
	Author      string                     `json:"author,omitempty" bson:"author,omitempty"`
	Routes      []ManifestRoute            `json:"routes,omitempty" bson:"routes,omitempty"`
	Menu        []ManifestMenuItem         `json:"menu,omitempty" bson:"menu,omitempty"`
	Settings    map[string]ManifestSetting `json:"settings,omitempty" bson:"settings,omitempty"`
	Hooks       []string                   `json:"hooks,omitempty" bson:"hooks,omitempty"`
}

// ============================================================================
// Module - 模块记录
// ============================================================================

// Module 模块持久化记录
//
// 记录在扫描/安装时创建，激活/停用/配置更新时变更，卸载时删除。
// Config 保存按设置 schema 校验过的配置值。
type Module struct {
	ID            string                     `json:"id" bson:"_id"`
	Slug          string                     `json:"slug" bson:"slug"`
	Manifest      Manifest                   `json:"manifest" bson:"manifest"`
	Status        ModuleStatus               `json:"status" bson:"status"`
	StatusMessage string                     `json:"status_message,omitempty" bson:"status_message,omitempty"`
	Config        map[string]json.RawMessage `json:"config,omitempty" bson:"config,omitempty"`
	InstallPath   string                     `json:"install_path" bson:"install_path"`
	CreatedAt     time.Time                  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at" bson:"updated_at"`
}

// IsActive 判断模块是否处于激活状态
func (m *Module) IsActive() bool {
	return m.Status == ModuleStatusActive
}

// CanActivate 判断模块是否可被激活
func (m *Module) CanActivate() bool {
	switch m.Status {
	case ModuleStatusInstalled, ModuleStatusInactive, ModuleStatusError:
		return true
	default:
		return false
	}
}

// CanUninstall 判断模块是否可被卸载（激活中的模块必须先停用）
func (m *Module) CanUninstall() bool {
	return m.Status != ModuleStatusActive
}
