// Package cmsmodule 模块生命周期管理
package cmsmodule

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/pkg/logging"
)

// Manager 模块生命周期管理器
//
// 持久状态（Module 记录）在 MongoDB，运行态（实例、路由、钩子订阅）
// 在内存。生命周期操作串行化执行，避免激活/停用竞态。
type Manager struct {
	host       *Host
	registry   *Registry
	routes     *RouteTable
	hooks      *HookBus
	modulesDir string
	logger     *logging.Logger

	mu        sync.Mutex
	instances map[string]Module
}

// NewManager 创建模块管理器
func NewManager(host *Host, registry *Registry, modulesDir string) *Manager {
	return &Manager{
		host:       host,
		registry:   registry,
		routes:     NewRouteTable(),
		hooks:      NewHookBus(),
		modulesDir: modulesDir,
		logger:     logging.Default("modules"),
		instances:  make(map[string]Module),
	}
}

// Routes 返回动态路由表（挂载到 HTTP 服务的 RoutePrefix 子树）
func (m *Manager) Routes() http.Handler {
	return m.routes
}

// Hooks 返回钩子总线
func (m *Manager) Hooks() *HookBus {
	return m.hooks
}

func newModuleID() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	return "mod-" + hex.EncodeToString(buf)
}

// ============================================================================
// 扫描与登记
// ============================================================================

// Scan 扫描模块目录，登记新发现的模块包并刷新已知包的 manifest
//
// 返回发现的 slug 列表。单个包损坏只记录警告，不影响其他包。
func (m *Manager) Scan(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(m.modulesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read modules dir: %w", err)
	}

	var discovered []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.modulesDir, entry.Name())

		manifest, err := LoadManifest(dir)
		if err != nil {
			m.logger.WithError(err).Warn("跳过无效模块包", "dir", dir)
			continue
		}

		if err := m.registerPackage(ctx, manifest, dir); err != nil {
			m.logger.WithModule(manifest.Slug).WithError(err).Warn("登记模块失败")
			continue
		}
		discovered = append(discovered, manifest.Slug)
	}

	sort.Strings(discovered)
	return discovered, nil
}

func (m *Manager) registerPackage(ctx context.Context, manifest *model.Manifest, dir string) error {
	existing, err := m.host.Store.GetModuleBySlug(ctx, manifest.Slug)
	if err != nil {
		return err
	}

	if existing == nil {
		record := &model.Module{
			ID:          newModuleID(),
			Slug:        manifest.Slug,
			Manifest:    *manifest,
			Status:      model.ModuleStatusInstalled,
			InstallPath: dir,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := m.host.Store.CreateModule(ctx, record); err != nil {
			return err
		}
		m.logger.ModuleLog("discovered", manifest.Slug, "version", manifest.Version)
		return nil
	}

	return m.host.Store.UpdateModuleManifest(ctx, existing.ID, *manifest, dir)
}

// ============================================================================
// 查询
// ============================================================================

// List 返回全部模块记录
func (m *Manager) List(ctx context.Context) ([]*model.Module, error) {
	return m.host.Store.ListModules(ctx)
}

// Get 按 slug 返回模块记录，不存在返回 (nil, nil)
func (m *Manager) Get(ctx context.Context, slug string) (*model.Module, error) {
	return m.host.Store.GetModuleBySlug(ctx, slug)
}

// Menu 聚合所有激活模块贡献的管理后台菜单项（按 Order 排序）
func (m *Manager) Menu(ctx context.Context) ([]model.ManifestMenuItem, error) {
	mods, err := m.host.Store.ListModulesByStatus(ctx, model.ModuleStatusActive)
	if err != nil {
		return nil, err
	}

	items := []model.ManifestMenuItem{}
	for _, mod := range mods {
		items = append(items, mod.Manifest.Menu...)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	return items, nil
}

// ============================================================================
// 生命周期操作
// ============================================================================

// Activate 激活模块
func (m *Manager) Activate(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.host.Store.GetModuleBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("module %s not found", slug)
	}
	if record.IsActive() {
		return fmt.Errorf("module %s is already active", slug)
	}
	if !record.CanActivate() {
		return fmt.Errorf("module %s cannot be activated from status %s", slug, record.Status)
	}

	if err := m.activateLocked(ctx, record); err != nil {
		m.setStatus(ctx, record.ID, model.ModuleStatusError, err.Error())
		return err
	}

	m.setStatus(ctx, record.ID, model.ModuleStatusActive, "")
	m.publishActivity(ctx, eventbus.ActivityModuleActivated, slug)
	m.logger.ModuleLog("activated", slug, "version", record.Manifest.Version)
	return nil
}

// activateLocked 构建实例并挂载路由/钩子，调用方负责持久化状态
func (m *Manager) activateLocked(ctx context.Context, record *model.Module) error {
	factory, ok := m.registry.Lookup(record.Slug)
	if !ok {
		return fmt.Errorf("no implementation registered for module %s", record.Slug)
	}

	if err := ValidateConfig(&record.Manifest, record.Config); err != nil {
		return err
	}
	config := ApplyConfigDefaults(&record.Manifest, record.Config)

	instance := factory()
	if instance.Slug() != record.Slug {
		return fmt.Errorf("implementation slug %s does not match record %s", instance.Slug(), record.Slug)
	}

	if err := instance.Initialize(ctx, m.host, config); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := instance.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	// 解析 manifest 路由到实例处理器
	handlers := instance.Routes()
	mounted := make([]mountedRoute, 0, len(record.Manifest.Routes))
	for _, r := range record.Manifest.Routes {
		h, ok := handlers[r.Handler]
		if !ok {
			instance.Deactivate(ctx)
			return fmt.Errorf("handler %q declared in manifest but not implemented", r.Handler)
		}
		mounted = append(mounted, mountedRoute{
			method:  r.Method,
			path:    ModulePath(record.Slug, r.Path),
			handler: h,
		})
	}

	m.routes.Mount(record.Slug, mounted)
	m.hooks.Subscribe(record.Slug, instance, record.Manifest.Hooks)
	m.instances[record.Slug] = instance
	return nil
}

// Deactivate 停用模块，配置保留
func (m *Manager) Deactivate(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.host.Store.GetModuleBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("module %s not found", slug)
	}
	if !record.IsActive() {
		return fmt.Errorf("module %s is not active", slug)
	}

	m.teardownLocked(ctx, slug)
	m.setStatus(ctx, record.ID, model.ModuleStatusInactive, "")
	m.publishActivity(ctx, eventbus.ActivityModuleDeactivated, slug)
	m.logger.ModuleLog("deactivated", slug)
	return nil
}

// teardownLocked 卸载运行态：实例、路由、钩子订阅
func (m *Manager) teardownLocked(ctx context.Context, slug string) {
	if instance, ok := m.instances[slug]; ok {
		if err := instance.Deactivate(ctx); err != nil {
			m.logger.WithModule(slug).WithError(err).Warn("模块停用回调失败")
		}
		delete(m.instances, slug)
	}
	m.routes.Unmount(slug)
	m.hooks.Unsubscribe(slug)
}

// Uninstall 卸载模块，删除记录、配置和磁盘上的模块包
// （激活中的模块必须先停用）
//
// 包目录不删除的话，下次 Scan 会把模块重新登记回来。
func (m *Manager) Uninstall(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.host.Store.GetModuleBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("module %s not found", slug)
	}
	if !record.CanUninstall() {
		return fmt.Errorf("module %s is active, deactivate it first", slug)
	}

	if err := m.host.Store.DeleteModule(ctx, record.ID); err != nil {
		return err
	}
	m.removePackageDir(record.InstallPath)
	m.publishActivity(ctx, eventbus.ActivityModuleUninstalled, slug)
	m.logger.ModuleLog("uninstalled", slug)
	return nil
}

// removePackageDir 删除模块包目录，只接受模块目录之内的路径
func (m *Manager) removePackageDir(installPath string) {
	if installPath == "" {
		return
	}
	rel, err := filepath.Rel(m.modulesDir, installPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		m.logger.Warn("拒绝删除模块目录之外的安装路径", "path", installPath)
		return
	}
	if err := os.RemoveAll(installPath); err != nil {
		m.logger.WithError(err).Warn("删除模块包目录失败", "path", installPath)
	}
}

// UpdateConfig 校验并持久化模块配置
//
// 激活中的模块以新配置重启；重启失败时降级为 error 状态。
func (m *Manager) UpdateConfig(ctx context.Context, slug string, config map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.host.Store.GetModuleBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("module %s not found", slug)
	}

	if err := ValidateConfig(&record.Manifest, config); err != nil {
		return err
	}
	if err := m.host.Store.UpdateModuleConfig(ctx, record.ID, config); err != nil {
		return err
	}

	if !record.IsActive() {
		return nil
	}

	// 重启实例套用新配置
	m.teardownLocked(ctx, slug)
	record.Config = config
	if err := m.activateLocked(ctx, record); err != nil {
		m.setStatus(ctx, record.ID, model.ModuleStatusError, err.Error())
		return fmt.Errorf("restart with new config: %w", err)
	}

	m.logger.ModuleLog("config-updated", slug)
	return nil
}

// RestoreModules 启动时恢复上次激活的模块
//
// 单个模块恢复失败降级为 error 状态并继续，不阻断服务启动。
func (m *Manager) RestoreModules(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.host.Store.ListModulesByStatus(ctx, model.ModuleStatusActive)
	if err != nil {
		return fmt.Errorf("list active modules: %w", err)
	}

	for _, record := range records {
		if err := m.activateLocked(ctx, record); err != nil {
			m.logger.WithModule(record.Slug).WithError(err).Error("模块恢复失败，降级为 error")
			m.setStatus(ctx, record.ID, model.ModuleStatusError, err.Error())
			continue
		}
		m.logger.ModuleLog("restored", record.Slug, "version", record.Manifest.Version)
	}
	return nil
}

// Shutdown 停用所有运行中的实例（仅运行态，持久状态保持 active 以便下次恢复）
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for slug := range m.instances {
		m.teardownLocked(ctx, slug)
	}
}

// ============================================================================
// 内部工具
// ============================================================================

func (m *Manager) setStatus(ctx context.Context, id string, status model.ModuleStatus, message string) {
	if err := m.host.Store.UpdateModuleStatus(ctx, id, status, message); err != nil {
		m.logger.WithError(err).Warn("持久化模块状态失败", "module_id", id, "status", status)
	}
}

func (m *Manager) publishActivity(ctx context.Context, eventType, slug string) {
	if m.host.Events == nil {
		return
	}
	err := m.host.Events.PublishActivity(ctx, &eventbus.ActivityEvent{
		Type:      eventType,
		Entity:    "module",
		EntityID:  slug,
		Timestamp: time.Now(),
	})
	if err != nil {
		m.logger.WithError(err).Warn("发布活动事件失败", "type", eventType)
	}
}
