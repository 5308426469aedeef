// Package model 定义核心数据模型
//
// user.go 包含用户账号相关的数据模型定义：
//   - User：CMS 用户
//   - UserRole：角色枚举
//   - UserStatus：账号状态枚举
package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	// UserRoleAdmin 管理员：全部权限，含模块管理和用户管理
	UserRoleAdmin UserRole = "admin"

	// UserRoleEditor 编辑：管理全部内容（文章、媒体、设置）
	UserRoleEditor UserRole = "editor"

	// UserRoleAuthor 作者：仅管理自己创建的内容
	UserRoleAuthor UserRole = "author"
)

// UserStatus 用户状态
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User CMS 用户
type User struct {
	ID           string            `json:"id" bson:"_id"`
	Email        string            `json:"email" bson:"email"`
	Username     string            `json:"username" bson:"username"`
	PasswordHash string            `json:"-" bson:"password_hash"` // never expose in JSON
	Role         UserRole          `json:"role" bson:"role"`
	Status       UserStatus        `json:"status" bson:"status"`
	Preferences  map[string]string `json:"preferences,omitempty" bson:"preferences,omitempty"`
	LastLoginAt  *time.Time        `json:"last_login_at,omitempty" bson:"last_login_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" bson:"updated_at"`
}

// IsAdmin 判断是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// CanEditAll 判断是否可编辑他人内容
func (u *User) CanEditAll() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleEditor
}
