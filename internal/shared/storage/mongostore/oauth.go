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
// OAuthTokenStore
// ============================================================================

// UpsertOAuthToken 按 (user_id, provider) upsert 令牌记录
func (s *Store) UpsertOAuthToken(ctx context.Context, token *model.OAuthToken) error {
	token.UpdatedAt = time.Now()
	filter := bson.D{
		{Key: "user_id", Value: token.UserID},
		{Key: "provider", Value: token.Provider},
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.col(ColOAuthTokens).ReplaceOne(ctx, filter, token, opts)
	return wrapError(err)
}

func (s *Store) GetOAuthToken(ctx context.Context, userID, provider string) (*model.OAuthToken, error) {
	return findOne[model.OAuthToken](ctx, s.col(ColOAuthTokens), bson.D{
		{Key: "user_id", Value: userID},
		{Key: "provider", Value: provider},
	})
}

func (s *Store) GetOAuthTokenByProviderUser(ctx context.Context, provider, providerUserID string) (*model.OAuthToken, error) {
	return findOne[model.OAuthToken](ctx, s.col(ColOAuthTokens), bson.D{
		{Key: "provider", Value: provider},
		{Key: "provider_user_id", Value: providerUserID},
	})
}

func (s *Store) ListOAuthTokensByUser(ctx context.Context, userID string) ([]*model.OAuthToken, error) {
	return findMany[model.OAuthToken](ctx, s.col(ColOAuthTokens), bson.D{{Key: "user_id", Value: userID}})
}

func (s *Store) DeleteOAuthToken(ctx context.Context, userID, provider string) error {
	res, err := s.col(ColOAuthTokens).DeleteOne(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "provider", Value: provider},
	})
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
