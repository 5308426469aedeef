// Package model 定义核心数据模型
//
// oauth.go 包含社交登录相关的数据模型定义
package model

import "time"

// OAuthToken 社交登录令牌记录
//
// 每个 (UserID, Provider) 组合唯一。授权码交换成功后 upsert，
// 用于后续识别已绑定的第三方账号。
type OAuthToken struct {
	ID             string     `json:"id" bson:"_id"`
	UserID         string     `json:"user_id" bson:"user_id"`
	Provider       string     `json:"provider" bson:"provider"` // github | google | ...
	ProviderUserID string     `json:"provider_user_id" bson:"provider_user_id"`
	AccessToken    string     `json:"-" bson:"access_token"` // never expose in JSON
	RefreshToken   string     `json:"-" bson:"refresh_token,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at"`
}
