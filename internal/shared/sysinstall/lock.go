// Package sysinstall 站点安装锁
//
// install.lock 记录站点首次初始化信息，存在即视为已安装，
// setup 接口据此拒绝重复安装。
package sysinstall

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFileName 安装锁文件名
const LockFileName = "install.lock"

// InstallLock 安装锁内容
type InstallLock struct {
	Version     string    `json:"version"`
	SiteName    string    `json:"site_name"`
	AdminEmail  string    `json:"admin_email"`
	InstalledAt time.Time `json:"installed_at"`
}

// LockPath 返回数据目录下的锁文件路径
func LockPath(dataDir string) string {
	if dataDir == "" {
		dataDir = DataDir
	}
	return filepath.Join(dataDir, LockFileName)
}

// IsInstalled 检查站点是否已安装
func IsInstalled(dataDir string) bool {
	_, err := os.Stat(LockPath(dataDir))
	return err == nil
}

// ReadLock 读取安装锁，未安装返回 (nil, nil)
func ReadLock(dataDir string) (*InstallLock, error) {
	data, err := os.ReadFile(LockPath(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read install lock: %w", err)
	}

	var lock InstallLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse install lock: %w", err)
	}
	return &lock, nil
}

// WriteLock 写入安装锁，已存在时报错（安装只执行一次）
func WriteLock(dataDir string, lock *InstallLock) error {
	path := LockPath(dataDir)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("install lock already exists: %s", path)
	}

	if lock.InstalledAt.IsZero() {
		lock.InstalledAt = time.Now()
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// O_EXCL 防止并发安装请求双写
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create install lock: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write install lock: %w", err)
	}
	return nil
}
