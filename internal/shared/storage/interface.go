// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（生产）、memstore/（测试）
//   - 初始化时通过依赖注入传入实现
package storage

import (
	"context"
	"encoding/json"
	"time"

	"vyral-cms/internal/shared/model"
)

// ============================================================================
// 过滤条件
// ============================================================================

// PostFilter 文章查询过滤条件
type PostFilter struct {
	Status   string // 为空表示不过滤
	AuthorID string
	Tag      string
	Category string
	Limit    int
	Offset   int
}

// MediaFilter 媒体查询过滤条件
type MediaFilter struct {
	Folder     string
	UploaderID string
	Limit      int
	Offset     int
}

// ============================================================================
// 按实体拆分的存储接口（由 mongostore.Store 实现）
// ============================================================================

// UserStore 用户存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
	ListUsers(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// PostStore 文章存储接口
type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*model.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]*model.Post, int, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	UpdatePostStatus(ctx context.Context, id string, status model.PostStatus, publishedAt *time.Time) error
	DeletePost(ctx context.Context, id string) error
}

// MediaStore 媒体存储接口
type MediaStore interface {
	CreateMedia(ctx context.Context, media *model.Media) error
	GetMedia(ctx context.Context, id string) (*model.Media, error)
	ListMedia(ctx context.Context, filter MediaFilter) ([]*model.Media, int, error)
	UpdateMedia(ctx context.Context, media *model.Media) error
	DeleteMedia(ctx context.Context, id string) error
}

// ModuleStore 模块记录存储接口
type ModuleStore interface {
	CreateModule(ctx context.Context, mod *model.Module) error
	GetModule(ctx context.Context, id string) (*model.Module, error)
	GetModuleBySlug(ctx context.Context, slug string) (*model.Module, error)
	ListModules(ctx context.Context) ([]*model.Module, error)
	ListModulesByStatus(ctx context.Context, status model.ModuleStatus) ([]*model.Module, error)
	UpdateModuleManifest(ctx context.Context, id string, manifest model.Manifest, installPath string) error
	UpdateModuleStatus(ctx context.Context, id string, status model.ModuleStatus, statusMessage string) error
	UpdateModuleConfig(ctx context.Context, id string, config map[string]json.RawMessage) error
	DeleteModule(ctx context.Context, id string) error
}

// SettingStore 设置存储接口
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (*model.Setting, error)
	SetSetting(ctx context.Context, setting *model.Setting) error
	ListSettings(ctx context.Context, group string) ([]*model.Setting, error)
	ListAutoloadSettings(ctx context.Context) ([]*model.Setting, error)
	DeleteSetting(ctx context.Context, key string) error
}

// OAuthTokenStore 社交登录令牌存储接口
type OAuthTokenStore interface {
	UpsertOAuthToken(ctx context.Context, token *model.OAuthToken) error
	GetOAuthToken(ctx context.Context, userID, provider string) (*model.OAuthToken, error)
	GetOAuthTokenByProviderUser(ctx context.Context, provider, providerUserID string) (*model.OAuthToken, error)
	ListOAuthTokensByUser(ctx context.Context, userID string) ([]*model.OAuthToken, error)
	DeleteOAuthToken(ctx context.Context, userID, provider string) error
}

// ============================================================================
// 模块私有数据
// ============================================================================

// ModuleCollection 模块私有集合的最小操作面
//
// 集合名按 "mod_{slug}_{name}" 规则隔离，模块之间互不可见。
type ModuleCollection interface {
	InsertOne(ctx context.Context, doc map[string]interface{}) error
	Count(ctx context.Context, filter map[string]interface{}) (int64, error)
	Find(ctx context.Context, filter map[string]interface{}, limit int) ([]map[string]interface{}, error)
}

// ModuleDataStore 模块私有集合访问接口
type ModuleDataStore interface {
	ModuleCollection(slug, name string) ModuleCollection
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	UserStore
	PostStore
	MediaStore
	ModuleStore
	SettingStore
	OAuthTokenStore
	ModuleDataStore
	Close() error
}
