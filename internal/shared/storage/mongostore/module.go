package mongostore

import (
	"context"
	"encoding/json"
	"time"

	"vyral-cms/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ModuleStore
// ============================================================================

func (s *Store) CreateModule(ctx context.Context, mod *model.Module) error {
	return insertOne(ctx, s.col(ColModules), mod)
}

func (s *Store) GetModule(ctx context.Context, id string) (*model.Module, error) {
	return findOne[model.Module](ctx, s.col(ColModules), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetModuleBySlug(ctx context.Context, slug string) (*model.Module, error) {
	return findOne[model.Module](ctx, s.col(ColModules), bson.D{{Key: "slug", Value: slug}})
}

func (s *Store) ListModules(ctx context.Context) ([]*model.Module, error) {
	opts := options.Find().SetSort(bson.D{{Key: "slug", Value: 1}})
	return findMany[model.Module](ctx, s.col(ColModules), bson.D{}, opts)
}

func (s *Store) ListModulesByStatus(ctx context.Context, status model.ModuleStatus) ([]*model.Module, error) {
	opts := options.Find().SetSort(bson.D{{Key: "slug", Value: 1}})
	return findMany[model.Module](ctx, s.col(ColModules), bson.D{{Key: "status", Value: status}}, opts)
}

// UpdateModuleManifest 重新扫描后刷新 manifest 与安装路径（保留状态和配置）
func (s *Store) UpdateModuleManifest(ctx context.Context, id string, manifest model.Manifest, installPath string) error {
	return updateFields(ctx, s.col(ColModules), id, bson.D{
		{Key: "manifest", Value: manifest},
		{Key: "install_path", Value: installPath},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateModuleStatus(ctx context.Context, id string, status model.ModuleStatus, statusMessage string) error {
	return updateFields(ctx, s.col(ColModules), id, bson.D{
		{Key: "status", Value: status},
		{Key: "status_message", Value: statusMessage},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateModuleConfig(ctx context.Context, id string, config map[string]json.RawMessage) error {
	return updateFields(ctx, s.col(ColModules), id, bson.D{
		{Key: "config", Value: config},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) DeleteModule(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColModules), id)
}
