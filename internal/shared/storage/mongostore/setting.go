package mongostore

import (
	"context"
	"time"

	"vyral-cms/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// SettingStore
// ============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	return findOne[model.Setting](ctx, s.col(ColSettings), bson.D{{Key: "_id", Value: key}})
}

// SetSetting upsert 设置项（key 即 _id）
func (s *Store) SetSetting(ctx context.Context, setting *model.Setting) error {
	setting.UpdatedAt = time.Now()
	opts := options.Replace().SetUpsert(true)
	_, err := s.col(ColSettings).ReplaceOne(ctx, bson.D{{Key: "_id", Value: setting.Key}}, setting, opts)
	return wrapError(err)
}

func (s *Store) ListSettings(ctx context.Context, group string) ([]*model.Setting, error) {
	query := bson.D{}
	if group != "" {
		query = append(query, bson.E{Key: "group", Value: group})
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return findMany[model.Setting](ctx, s.col(ColSettings), query, opts)
}

func (s *Store) ListAutoloadSettings(ctx context.Context) ([]*model.Setting, error) {
	return findMany[model.Setting](ctx, s.col(ColSettings), bson.D{{Key: "autoload", Value: true}})
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return deleteByID(ctx, s.col(ColSettings), key)
}
