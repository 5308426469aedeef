// Package cmsmodule manifest.json 解析与校验
package cmsmodule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/getkin/kin-openapi/openapi3"

	"vyral-cms/internal/shared/model"
)

// ManifestFileName 模块包描述文件名
const ManifestFileName = "manifest.json"

var (
	slugPattern    = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}[a-z0-9]$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// 允许的路由方法
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// 允许的设置类型
var allowedSettingTypes = map[string]bool{
	"string": true, "integer": true, "number": true, "boolean": true,
}

// LoadManifest 从模块目录读取并校验 manifest.json
func LoadManifest(dir string) (*model.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest model.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := ValidateManifest(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ValidateManifest 校验 manifest 的结构合法性
func ValidateManifest(m *model.Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("manifest: name is required")
	}
	if !slugPattern.MatchString(m.Slug) {
		return fmt.Errorf("manifest: invalid slug %q", m.Slug)
	}
	if !versionPattern.MatchString(m.Version) {
		return fmt.Errorf("manifest: invalid version %q (want x.y.z)", m.Version)
	}

	seen := make(map[string]bool)
	for _, r := range m.Routes {
		if !allowedMethods[r.Method] {
			return fmt.Errorf("manifest: route %s %s: unsupported method", r.Method, r.Path)
		}
		if r.Path == "" || r.Path[0] != '/' {
			return fmt.Errorf("manifest: route path %q must start with /", r.Path)
		}
		if r.Handler == "" {
			return fmt.Errorf("manifest: route %s %s: handler is required", r.Method, r.Path)
		}
		key := r.Method + " " + r.Path
		if seen[key] {
			return fmt.Errorf("manifest: duplicate route %s", key)
		}
		seen[key] = true
	}

	for key, s := range m.Settings {
		if !allowedSettingTypes[s.Type] {
			return fmt.Errorf("manifest: setting %q: unsupported type %q", key, s.Type)
		}
		if len(s.Enum) > 0 && s.Type != "string" {
			return fmt.Errorf("manifest: setting %q: enum only supported for string type", key)
		}
		if len(s.Default) > 0 {
			if err := validateSettingValue(key, s, s.Default); err != nil {
				return fmt.Errorf("manifest: setting %q: invalid default: %w", key, err)
			}
		}
	}

	return nil
}

// ============================================================================
// 设置值校验
// ============================================================================

// settingSchema 将 ManifestSetting 转换为 openapi3 Schema
func settingSchema(s model.ManifestSetting) *openapi3.Schema {
	var schema *openapi3.Schema
	switch s.Type {
	case "integer":
		schema = openapi3.NewIntegerSchema()
	case "number":
		schema = openapi3.NewFloat64Schema()
	case "boolean":
		schema = openapi3.NewBoolSchema()
	default:
		schema = openapi3.NewStringSchema()
	}

	for _, v := range s.Enum {
		schema.Enum = append(schema.Enum, v)
	}
	return schema
}

func validateSettingValue(key string, s model.ManifestSetting, raw json.RawMessage) error {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("setting %q: invalid JSON: %w", key, err)
	}
	if err := settingSchema(s).VisitJSON(value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// ValidateConfig 按 manifest 声明校验配置值
//
// 拒绝未声明的键；required 且无默认值的设置必须提供。
func ValidateConfig(m *model.Manifest, config map[string]json.RawMessage) error {
	for key := range config {
		if _, ok := m.Settings[key]; !ok {
			return fmt.Errorf("config: unknown setting %q", key)
		}
	}

	for key, s := range m.Settings {
		raw, provided := config[key]
		if !provided {
			if s.Required && len(s.Default) == 0 {
				return fmt.Errorf("config: setting %q is required", key)
			}
			continue
		}
		if err := validateSettingValue(key, s, raw); err != nil {
			return err
		}
	}
	return nil
}

// ApplyConfigDefaults 返回套用默认值后的配置副本
func ApplyConfigDefaults(m *model.Manifest, config map[string]json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(m.Settings))
	for key, s := range m.Settings {
		if len(s.Default) > 0 {
			merged[key] = s.Default
		}
	}
	for key, v := range config {
		merged[key] = v
	}
	return merged
}
