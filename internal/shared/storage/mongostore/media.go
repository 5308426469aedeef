package mongostore

import (
	"context"
	"time"

	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// MediaStore
// ============================================================================

func (s *Store) CreateMedia(ctx context.Context, media *model.Media) error {
	return insertOne(ctx, s.col(ColMedia), media)
}

func (s *Store) GetMedia(ctx context.Context, id string) (*model.Media, error) {
	return findOne[model.Media](ctx, s.col(ColMedia), bson.D{{Key: "_id", Value: id}})
}

// ListMedia 按过滤条件列出媒体，返回 (列表, 总数, 错误)
func (s *Store) ListMedia(ctx context.Context, filter storage.MediaFilter) ([]*model.Media, int, error) {
	query := bson.D{}
	if filter.Folder != "" {
		query = append(query, bson.E{Key: "folder", Value: filter.Folder})
	}
	if filter.UploaderID != "" {
		query = append(query, bson.E{Key: "uploader_id", Value: filter.UploaderID})
	}

	total, err := countDocs(ctx, s.col(ColMedia), query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts = opts.SetSkip(int64(filter.Offset))
	}

	items, err := findMany[model.Media](ctx, s.col(ColMedia), query, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) UpdateMedia(ctx context.Context, media *model.Media) error {
	media.UpdatedAt = time.Now()
	return replaceByID(ctx, s.col(ColMedia), media.ID, media)
}

func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColMedia), id)
}
