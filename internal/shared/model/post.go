// Package model 定义核心数据模型
//
// post.go 包含内容发布相关的数据模型定义：
//   - Post：博客文章/页面
//   - PostStatus：发布状态枚举
package model

import (
	"regexp"
	"strings"
	"time"
)

// ============================================================================
// PostStatus - 文章状态
// ============================================================================

// PostStatus 表示文章的发布状态
//
// 状态流转：
//
//	draft → published → archived
//	   ↑        ↓
//	   └────────┘ (unpublish)
type PostStatus string

const (
	// PostStatusDraft 草稿：仅作者和编辑可见
	PostStatusDraft PostStatus = "draft"

	// PostStatusPublished 已发布：对外可见
	PostStatusPublished PostStatus = "published"

	// PostStatusArchived 已归档：不再对外展示，保留记录
	PostStatusArchived PostStatus = "archived"
)

// ============================================================================
// Post - 文章
// ============================================================================

// Post 博客文章
//
// 字段说明：
//   - Slug：URL 标识，全局唯一，由标题派生
//   - FeaturedMediaID：封面图（引用 media 集合）
//   - PublishedAt：首次发布时间，发布后不再变更
type Post struct {
	ID              string     `json:"id" bson:"_id"`
	Title           string     `json:"title" bson:"title"`
	Slug            string     `json:"slug" bson:"slug"`
	Content         string     `json:"content" bson:"content"`
	Excerpt         string     `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	Status          PostStatus `json:"status" bson:"status"`
	AuthorID        string     `json:"author_id" bson:"author_id"`
	Tags            []string   `json:"tags,omitempty" bson:"tags,omitempty"`
	Categories      []string   `json:"categories,omitempty" bson:"categories,omitempty"`
	FeaturedMediaID *string    `json:"featured_media_id,omitempty" bson:"featured_media_id,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty" bson:"published_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}

// IsPublished 判断文章是否已发布
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// ============================================================================
// Slug 派生
// ============================================================================

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 从标题派生 URL slug
//
// 小写化后将非字母数字序列折叠为单个连字符，去除首尾连字符。
// 结果为空时（如纯中文标题）返回 "post"，由存储层追加后缀保证唯一。
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStripRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "post"
	}
	if len(s) > 96 {
		s = strings.Trim(s[:96], "-")
	}
	return s
}
