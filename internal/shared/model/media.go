// Package model 定义核心数据模型
//
// media.go 包含媒体库相关的数据模型定义
package model

import "time"

// Media 媒体库条目
//
// 文件内容存放在对象存储（MinIO），Mongo 仅保存元数据。
// ObjectKey 为对象存储中的键，格式：{folder}/{id}/{file_name}
type Media struct {
	ID         string    `json:"id" bson:"_id"`
	FileName   string    `json:"file_name" bson:"file_name"`
	ObjectKey  string    `json:"object_key" bson:"object_key"`
	MimeType   string    `json:"mime_type" bson:"mime_type"`
	Size       int64     `json:"size" bson:"size"`
	Folder     string    `json:"folder,omitempty" bson:"folder,omitempty"`
	UploaderID string    `json:"uploader_id" bson:"uploader_id"`
	AltText    string    `json:"alt_text,omitempty" bson:"alt_text,omitempty"`
	Width      int       `json:"width,omitempty" bson:"width,omitempty"`
	Height     int       `json:"height,omitempty" bson:"height,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// IsImage 判断是否为图片类型
func (m *Media) IsImage() bool {
	return len(m.MimeType) > 6 && m.MimeType[:6] == "image/"
}
