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
// PostStore
// ============================================================================

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	return insertOne(ctx, s.col(ColPosts), post)
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	return findOne[model.Post](ctx, s.col(ColPosts), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	return findOne[model.Post](ctx, s.col(ColPosts), bson.D{{Key: "slug", Value: slug}})
}

// ListPosts 按过滤条件列出文章，返回 (文章列表, 总数, 错误)
func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*model.Post, int, error) {
	query := bson.D{}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: filter.Status})
	}
	if filter.AuthorID != "" {
		query = append(query, bson.E{Key: "author_id", Value: filter.AuthorID})
	}
	if filter.Tag != "" {
		query = append(query, bson.E{Key: "tags", Value: filter.Tag})
	}
	if filter.Category != "" {
		query = append(query, bson.E{Key: "categories", Value: filter.Category})
	}

	total, err := countDocs(ctx, s.col(ColPosts), query)
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

	posts, err := findMany[model.Post](ctx, s.col(ColPosts), query, opts)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *Store) UpdatePost(ctx context.Context, post *model.Post) error {
	post.UpdatedAt = time.Now()
	return replaceByID(ctx, s.col(ColPosts), post.ID, post)
}

// UpdatePostStatus 更新文章状态
// publishedAt 仅在首次发布时传入非 nil 值
func (s *Store) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus, publishedAt *time.Time) error {
	update := bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: time.Now()},
	}
	if publishedAt != nil {
		update = append(update, bson.E{Key: "published_at", Value: publishedAt})
	}
	return updateFields(ctx, s.col(ColPosts), id, update)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColPosts), id)
}
