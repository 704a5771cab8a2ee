/**
 * internal/config/config.go
 * 构建配置加载模块
 *
 * 功能：
 * - 从环境变量加载所有构建参数
 * - 提供默认值和类型转换
 * - 配置验证（必需项检查）
 * - 版本标签生成（v + UTC 时间戳，分钟精度）
 *
 * 依赖：
 * - github.com/joho/godotenv (.env 文件加载)
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"scene-arcade/internal/utils"

	"github.com/joho/godotenv"
)

// ====================  错误定义 ====================

var (
	// ErrMissingRequired 缺少必需的配置项
	ErrMissingRequired = errors.New("MISSING_REQUIRED_CONFIG")

	// ErrInvalidValue 配置值无效
	ErrInvalidValue = errors.New("INVALID_CONFIG_VALUE")
)

// ====================  配置结构 ====================

// Config 构建配置
// 包含构建管线和预览服务器的全部配置项
type Config struct {
	// 构建标识
	BuildTag string // 版本标签，默认 v + UTC 时间戳（分钟精度）

	// 语言配置
	DefaultLang     string // 默认语言代码，默认 en
	DefaultLangOnly bool   // 仅输出默认语言（其他语言仍加载并统计缺失）

	// URL 配置
	StaticBaseURL string // 静态资源基础 URL，默认 static/
	ProdBaseURL   string // 生产站点基础 URL

	// 目录配置
	SourceDir string // 源码根目录，默认 site
	DistDir   string // 输出根目录，默认 dist

	// 传译目标
	LegacyTarget string // 旧版运行时目标表达式，默认 es2015

	// 预览服务器配置
	Port string // 服务端口，默认 3000

	// R2 部署配置（可选）
	R2AccessKey string // R2 Access Key
	R2SecretKey string // R2 Secret Key
	R2Endpoint  string // R2 Endpoint
	R2Bucket    string // R2 Bucket 名称
}

// ====================  全局配置实例 ====================

var (
	cfg     *Config   // 全局配置实例
	cfgOnce sync.Once // 确保只加载一次
)

// ====================  配置加载 ====================

// Load 加载配置
// 从环境变量加载所有配置项，支持 .env 文件
//
// 返回：
//   - *Config: 配置实例
//   - error: 错误信息
//     - ErrMissingRequired: 缺少必需的配置项
//     - ErrInvalidValue: 配置值无效
//
// 注意：
//   - .env 文件不存在时会记录警告但不会返回错误
func Load() (*Config, error) {
	var loadErr error

	cfgOnce.Do(func() {
		loadErr = loadConfig()
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

// loadConfig 内部配置加载函数
func loadConfig() error {
	// 加载 .env 文件（仅当前目录）
	if err := godotenv.Load(".env"); err == nil {
		utils.LogPrintf("[CONFIG] Loaded .env from current directory")
	} else {
		utils.LogPrintf("[CONFIG] WARN: .env file not found (this is OK if using system env vars)")
	}

	newCfg := &Config{}

	// 构建标识（为空时生成默认版本标签）
	newCfg.BuildTag = getEnv("BUILD_TAG", "")
	if newCfg.BuildTag == "" {
		newCfg.BuildTag = DefaultBuildTag(time.Now())
	}

	// 语言配置
	newCfg.DefaultLang = getEnv("DEFAULT_LANG", "en")
	langOnly, err := getEnvBool("DEFAULT_LANG_ONLY", false)
	if err != nil {
		utils.LogPrintf("[CONFIG] WARN: Invalid DEFAULT_LANG_ONLY, using default: %v", err)
	}
	newCfg.DefaultLangOnly = langOnly

	// URL 配置
	newCfg.StaticBaseURL = getEnv("STATIC_BASE_URL", "static/")
	newCfg.ProdBaseURL = getEnv("PROD_BASE_URL", "")

	// 目录配置
	newCfg.SourceDir = getEnv("SOURCE_DIR", "site")
	newCfg.DistDir = getEnv("DIST_DIR", "dist")

	// 传译目标
	newCfg.LegacyTarget = getEnv("LEGACY_TARGET", "es2015")

	// 预览服务器配置
	newCfg.Port = getEnv("PORT", "3000")

	// R2 部署配置
	newCfg.R2AccessKey = getEnv("R2_ACCESS_KEY", "")
	newCfg.R2SecretKey = getEnv("R2_SECRET_KEY", "")
	newCfg.R2Endpoint = getEnv("R2_ENDPOINT", "")
	newCfg.R2Bucket = getEnv("R2_BUCKET", "")

	// 验证配置
	if err := validateConfig(newCfg); err != nil {
		return err
	}

	cfg = newCfg

	utils.LogPrintf("[CONFIG] Configuration loaded: tag=%s, lang=%s, static=%s",
		newCfg.BuildTag, newCfg.DefaultLang, newCfg.StaticBaseURL)

	return nil
}

// validateConfig 验证配置
// 检查必需的配置项是否存在
func validateConfig(c *Config) error {
	var missingKeys []string
	var warnings []string

	// 必需配置
	if c.DefaultLang == "" {
		missingKeys = append(missingKeys, "DEFAULT_LANG")
	}

	if c.SourceDir == "" {
		missingKeys = append(missingKeys, "SOURCE_DIR")
	}

	// 可选但建议配置
	if c.ProdBaseURL == "" {
		warnings = append(warnings, "PROD_BASE_URL is empty (canonical URLs will be relative)")
	}

	if !c.IsDeployConfigured() {
		warnings = append(warnings, "R2 credentials incomplete (deploy upload will be disabled)")
	}

	for _, w := range warnings {
		utils.LogPrintf("[CONFIG] WARN: %s", w)
	}

	if len(missingKeys) > 0 {
		errMsg := fmt.Sprintf("missing required config: %s", strings.Join(missingKeys, ", "))
		utils.LogPrintf("[CONFIG] ERROR: %s", errMsg)
		return fmt.Errorf("%w: %s", ErrMissingRequired, errMsg)
	}

	return nil
}

// ====================  配置访问 ====================

// MustGet 获取全局配置实例（必须成功）
// 如果配置未加载或加载失败，会直接终止进程
//
// 注意：
//   - 仅在程序启动时使用，确保配置正确加载
func MustGet() *Config {
	loadedCfg, err := Load()
	if err != nil {
		utils.LogFatalf("[CONFIG] FATAL: Failed to load config: %v", err)
	}

	return loadedCfg
}

// ====================  配置检查方法 ====================

// IsDeployConfigured 检查 R2 部署配置是否完整
// 返回部署上传是否可用
func (c *Config) IsDeployConfigured() bool {
	return c.R2AccessKey != "" && c.R2SecretKey != "" && c.R2Endpoint != "" && c.R2Bucket != ""
}

// StaticURL 拼接带版本标签的静态资源 URL 前缀
// 形如 static/v202608311204/（总是以 / 结尾）
func (c *Config) StaticURL() string {
	base := c.StaticBaseURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + c.BuildTag + "/"
}

// DefaultBuildTag 生成默认版本标签
// 格式：v + UTC 时间戳，分钟精度（v202608311204）
func DefaultBuildTag(now time.Time) string {
	return "v" + now.UTC().Format("200601021504")
}

// ====================  辅助函数 ====================

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔环境变量
//
// 返回：
//   - bool: 环境变量值或默认值
//   - error: 解析错误（如果值存在但无法解析）
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%s is not a valid boolean", ErrInvalidValue, key, value)
	}

	return boolVal, nil
}
