// Package builtin 内置模块注册
package builtin

import (
	"vyral-cms/internal/cmsmodule"
	"vyral-cms/internal/cmsmodule/builtin/analytics"
	"vyral-cms/internal/cmsmodule/builtin/s3storage"
)

// Register 把全部内置模块工厂注册到注册表
func Register(registry *cmsmodule.Registry) {
	registry.Register(s3storage.Slug, s3storage.New)
	registry.Register(analytics.Slug, analytics.New)
}
