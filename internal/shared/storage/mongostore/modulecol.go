package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"vyral-cms/internal/shared/storage"
)

// ============================================================================
// ModuleDataStore - 模块私有集合
// ============================================================================

// ModuleCollection 返回模块私有集合的访问器
//
// 集合名为 mod_{slug}_{name}，模块数据与核心集合物理隔离。
func (s *Store) ModuleCollection(slug, name string) storage.ModuleCollection {
	return &moduleCollection{
		col: s.db.Collection(fmt.Sprintf("mod_%s_%s", slug, name)),
	}
}

type moduleCollection struct {
	col *mongo.Collection
}

func (c *moduleCollection) InsertOne(ctx context.Context, doc map[string]interface{}) error {
	_, err := c.col.InsertOne(ctx, bson.M(doc))
	return wrapError(err)
}

func (c *moduleCollection) Count(ctx context.Context, filter map[string]interface{}) (int64, error) {
	if filter == nil {
		filter = map[string]interface{}{}
	}
	count, err := c.col.CountDocuments(ctx, bson.M(filter))
	if err != nil {
		return 0, wrapError(err)
	}
	return count, nil
}

func (c *moduleCollection) Find(ctx context.Context, filter map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	if filter == nil {
		filter = map[string]interface{}{}
	}
	opts := options.Find()
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := c.col.Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	docs := []map[string]interface{}{}
	for cursor.Next(ctx) {
		var doc map[string]interface{}
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		docs = append(docs, doc)
	}
	return docs, wrapError(cursor.Err())
}
