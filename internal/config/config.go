// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Redis   RedisConfig   `yaml:"redis"`
	MinIO   MinIOConfig   `yaml:"minio"`
	Auth    AuthConfig    `yaml:"auth"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Modules ModulesConfig `yaml:"modules"`
	License LicenseConfig `yaml:"license"`
	Site    SiteConfig    `yaml:"site"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MongoConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// MinIOConfig 媒体对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"` // 从 MINIO_ACCESS_KEY 环境变量读取
	SecretKey string `yaml:"-"` // 从 MINIO_SECRET_KEY 环境变量读取
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret       string        `yaml:"-"` // 从 JWT_SECRET 环境变量读取
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	AdminEmail      string        `yaml:"admin_email"`
	AdminPassword   string        `yaml:"-"` // 从 ADMIN_PASSWORD 环境变量读取
}

// OAuthProvider 单个 OAuth 提供方端点配置
type OAuthProvider struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"` // 从 OAUTH_{PROVIDER}_SECRET 环境变量读取
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
	Scopes       []string `yaml:"scopes"`
	RedirectURL  string `yaml:"redirect_url"`
}

// OAuthConfig 社交登录配置（按提供方名称索引）
type OAuthConfig struct {
	Providers map[string]OAuthProvider `yaml:"providers"`
}

// ModulesConfig 模块子系统配置
type ModulesConfig struct {
	Dir         string `yaml:"dir"`          // 模块包扫描目录
	AutoRestore bool   `yaml:"auto_restore"` // 启动时恢复 active 模块
}

// LicenseConfig 许可证验证配置
type LicenseConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Key      string        `yaml:"-"` // 从 LICENSE_KEY 环境变量读取
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SiteConfig 站点基本信息
type SiteConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	DataDir string `yaml:"data_dir"` // install.lock 等状态文件目录
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env      Environment
	MongoURI string
	MongoDB  string
	RedisURL string
	APIPort  string
	MinIO    MinIOConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
	Modules  ModulesConfig
	License  LicenseConfig
	Site     SiteConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	mongoPassword := os.Getenv("MONGO_PASSWORD")
	yamlCfg.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", "minioadmin")
	yamlCfg.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", "minioadmin")
	yamlCfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	yamlCfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	yamlCfg.License.Key = os.Getenv("LICENSE_KEY")
	for name, p := range yamlCfg.OAuth.Providers {
		p.ClientSecret = os.Getenv("OAUTH_" + strings.ToUpper(name) + "_SECRET")
		yamlCfg.OAuth.Providers[name] = p
	}

	// 构建最终配置
	cfg := &Config{
		Env:      env,
		MongoURI: buildMongoURI(yamlCfg.Mongo, mongoPassword),
		MongoDB:  yamlCfg.Mongo.Database,
		RedisURL: buildRedisURL(yamlCfg.Redis),
		APIPort:  yamlCfg.Server.Port,
		MinIO:    yamlCfg.MinIO,
		Auth:     yamlCfg.Auth,
		OAuth:    yamlCfg.OAuth,
		Modules:  yamlCfg.Modules,
		License:  yamlCfg.License,
		Site:     yamlCfg.Site,
	}

	cfg.validate()
	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server: ServerConfig{Port: "8080"},
		Mongo:  MongoConfig{Host: "localhost", Port: 27017, Database: "vyral_cms"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		MinIO:  MinIOConfig{Endpoint: "localhost:9000", Bucket: "vyral-media"},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Modules: ModulesConfig{Dir: "modules", AutoRestore: true},
		License: LicenseConfig{CacheTTL: 24 * time.Hour},
		Site:    SiteConfig{Name: "Vyral CMS", BaseURL: "http://localhost:8080", DataDir: "data"},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// buildMongoURI 构建 MongoDB 连接字符串
func buildMongoURI(m MongoConfig, password string) string {
	if m.User != "" && password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", m.User, password, m.Host, m.Port)
	}
	return fmt.Sprintf("mongodb://%s:%d", m.Host, m.Port)
}

// buildRedisURL 构建 Redis 连接字符串
func buildRedisURL(redis RedisConfig) string {
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Mongo: %s/%s, Redis: %s, MinIO: %s}",
		c.Env, maskPassword(c.MongoURI), c.MongoDB, c.RedisURL, c.MinIO.Endpoint)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.APIPort == "" {
		c.APIPort = "8080"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Modules.Dir == "" {
		c.Modules.Dir = "modules"
	}
	if c.License.CacheTTL == 0 {
		c.License.CacheTTL = 24 * time.Hour
	}
	if c.Site.DataDir == "" {
		c.Site.DataDir = "data"
	}
}
