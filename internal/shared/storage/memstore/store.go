// Package memstore 实现基于内存 map 的 PersistentStore
//
// 用于单元测试和无数据库的本地开发，语义与 mongostore 对齐：
//   - 唯一键冲突返回 storage.ErrDuplicate（users.email / posts.slug / modules.slug）
//   - 查无记录的 Get 返回 (nil, nil)，Update/Delete 返回 storage.ErrNotFound
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
)

// Store 内存存储
type Store struct {
	mu          sync.RWMutex
	users       map[string]*model.User
	posts       map[string]*model.Post
	media       map[string]*model.Media
	modules     map[string]*model.Module
	settings    map[string]*model.Setting
	oauthTokens map[string]*model.OAuthToken // key: userID + "/" + provider
	moduleCols  map[string]*memCollection    // key: slug + "/" + name
}

// NewStore 创建内存存储实例
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*model.User),
		posts:       make(map[string]*model.Post),
		media:       make(map[string]*model.Media),
		modules:     make(map[string]*model.Module),
		settings:    make(map[string]*model.Setting),
		oauthTokens: make(map[string]*model.OAuthToken),
	}
}

// Close 关闭存储（空操作）
func (s *Store) Close() error {
	return nil
}

// 确保实现 PersistentStore 接口
var _ storage.PersistentStore = (*Store)(nil)

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// ============================================================================
// PostStore
// ============================================================================

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, p := range s.posts {
		if p.Slug == post.Slug {
			return storage.ErrDuplicate
		}
	}
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*model.Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Post
	for _, p := range s.posts {
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Tag != "" && !containsString(p.Tags, filter.Tag) {
			continue
		}
		if filter.Category != "" && !containsString(p.Categories, filter.Category) {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

func (s *Store) UpdatePost(ctx context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return storage.ErrNotFound
	}
	post.UpdatedAt = time.Now()
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *Store) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus, publishedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.Status = status
	if publishedAt != nil {
		p.PublishedAt = publishedAt
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

// ============================================================================
// MediaStore
// ============================================================================

func (s *Store) CreateMedia(ctx context.Context, media *model.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[media.ID]; ok {
		return storage.ErrDuplicate
	}
	cp := *media
	s.media[media.ID] = &cp
	return nil
}

func (s *Store) GetMedia(ctx context.Context, id string) (*model.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.media[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) ListMedia(ctx context.Context, filter storage.MediaFilter) ([]*model.Media, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Media
	for _, m := range s.media {
		if filter.Folder != "" && m.Folder != filter.Folder {
			continue
		}
		if filter.UploaderID != "" && m.UploaderID != filter.UploaderID {
			continue
		}
		cp := *m
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

func (s *Store) UpdateMedia(ctx context.Context, media *model.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[media.ID]; !ok {
		return storage.ErrNotFound
	}
	media.UpdatedAt = time.Now()
	cp := *media
	s.media[media.ID] = &cp
	return nil
}

func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.media, id)
	return nil
}

// ============================================================================
// ModuleStore
// ============================================================================

func (s *Store) CreateModule(ctx context.Context, mod *model.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[mod.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, m := range s.modules {
		if m.Slug == mod.Slug {
			return storage.ErrDuplicate
		}
	}
	cp := *mod
	s.modules[mod.ID] = &cp
	return nil
}

func (s *Store) GetModule(ctx context.Context, id string) (*model.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.modules[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetModuleBySlug(ctx context.Context, slug string) (*model.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.modules {
		if m.Slug == slug {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListModules(ctx context.Context) ([]*model.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mods := make([]*model.Module, 0, len(s.modules))
	for _, m := range s.modules {
		cp := *m
		mods = append(mods, &cp)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Slug < mods[j].Slug })
	return mods, nil
}

func (s *Store) ListModulesByStatus(ctx context.Context, status model.ModuleStatus) ([]*model.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mods []*model.Module
	for _, m := range s.modules {
		if m.Status == status {
			cp := *m
			mods = append(mods, &cp)
		}
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Slug < mods[j].Slug })
	return mods, nil
}

func (s *Store) UpdateModuleManifest(ctx context.Context, id string, manifest model.Manifest, installPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Manifest = manifest
	m.InstallPath = installPath
	m.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateModuleStatus(ctx context.Context, id string, status model.ModuleStatus, statusMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Status = status
	m.StatusMessage = statusMessage
	m.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateModuleConfig(ctx context.Context, id string, config map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Config = config
	m.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteModule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.modules, id)
	return nil
}

// ============================================================================
// SettingStore
// ============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.settings[key]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) SetSetting(ctx context.Context, setting *model.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting.UpdatedAt = time.Now()
	cp := *setting
	s.settings[setting.Key] = &cp
	return nil
}

func (s *Store) ListSettings(ctx context.Context, group string) ([]*model.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []*model.Setting
	for _, v := range s.settings {
		if group != "" && v.Group != group {
			continue
		}
		cp := *v
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (s *Store) ListAutoloadSettings(ctx context.Context) ([]*model.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []*model.Setting
	for _, v := range s.settings {
		if v.Autoload {
			cp := *v
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settings[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.settings, key)
	return nil
}

// ============================================================================
// OAuthTokenStore
// ============================================================================

func oauthKey(userID, provider string) string {
	return userID + "/" + provider
}

func (s *Store) UpsertOAuthToken(ctx context.Context, token *model.OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.UpdatedAt = time.Now()
	cp := *token
	s.oauthTokens[oauthKey(token.UserID, token.Provider)] = &cp
	return nil
}

func (s *Store) GetOAuthToken(ctx context.Context, userID, provider string) (*model.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.oauthTokens[oauthKey(userID, provider)]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetOAuthTokenByProviderUser(ctx context.Context, provider, providerUserID string) (*model.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.oauthTokens {
		if t.Provider == provider && t.ProviderUserID == providerUserID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListOAuthTokensByUser(ctx context.Context, userID string) ([]*model.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []*model.OAuthToken
	for _, t := range s.oauthTokens {
		if t.UserID == userID {
			cp := *t
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Provider < items[j].Provider })
	return items, nil
}

func (s *Store) DeleteOAuthToken(ctx context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := oauthKey(userID, provider)
	if _, ok := s.oauthTokens[k]; !ok {
		return storage.ErrNotFound
	}
	delete(s.oauthTokens, k)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
