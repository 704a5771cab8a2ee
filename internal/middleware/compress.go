/**
 * internal/middleware/compress.go
 * Brotli 预压缩静态文件中间件
 *
 * 功能：
 * - 客户端支持 br 时直接服务构建产物的 .br 旁路文件
 * - 零运行时压缩开销
 * - 支持 JS、CSS、HTML、JSON 文件类型
 * - 自动设置正确的 Content-Type 和缓存头
 *
 * 依赖：
 * - 构建系统生成的 .br 文件（与原文件并存）
 */

package middleware

import (
	"os"
	"path/filepath"
	"strings"

	"scene-arcade/internal/utils"

	"github.com/gin-gonic/gin"
)

// ====================  常量定义 ====================

const (
	// contentEncodingBrotli Brotli 编码标识
	contentEncodingBrotli = "br"

	// brotliExtension Brotli 文件扩展名
	brotliExtension = ".br"

	// cacheControlImmutable 带版本标签的静态产物缓存策略（1年）
	cacheControlImmutable = "public, max-age=31536000, immutable"

	// cacheControlNoCache 页面不缓存策略
	cacheControlNoCache = "no-cache"
)

// contentTypeMap 文件扩展名到 Content-Type 的映射
var contentTypeMap = map[string]string{
	".js":   "application/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".json": "application/json; charset=utf-8",
}

// ====================  公开函数 ====================

// PreCompressedStatic Brotli 预压缩静态文件中间件
// 构建产物中 .br 与原文件并存：客户端声明支持 br 且旁路文件
// 存在时直接服务压缩内容，否则交给下一个处理器服务原文件
//
// 参数：
//   - basePath: 构建输出根目录（通常是 "./dist"）
func PreCompressedStatic(basePath string) gin.HandlerFunc {
	if basePath == "" {
		utils.LogPrintf("[COMPRESS] WARN: Empty base path, using default './dist'")
		basePath = "./dist"
	}

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		utils.LogPrintf("[COMPRESS] WARN: Base path does not exist: %s", basePath)
	}

	return func(c *gin.Context) {
		reqPath := c.Request.URL.Path

		// 安全检查：防止路径遍历攻击
		if strings.Contains(reqPath, "..") {
			utils.LogPrintf("[COMPRESS] WARN: Path traversal attempt detected: %s", reqPath)
			c.Next()
			return
		}

		// 客户端不支持 br 时服务原文件
		if !acceptsBrotli(c) {
			c.Next()
			return
		}

		ext := filepath.Ext(reqPath)
		contentType, ok := contentTypeMap[ext]
		if !ok {
			c.Next()
			return
		}

		brPath, err := resolveBrotliPath(basePath, reqPath)
		if err != nil {
			c.Next()
			return
		}

		if _, err := os.Stat(brPath); os.IsNotExist(err) {
			c.Next()
			return
		}

		setCompressedHeaders(c, contentType, cacheControlFor(reqPath))
		c.File(brPath)
		c.Abort()
	}
}

// ====================  私有函数 ====================

// acceptsBrotli 检查客户端是否声明支持 Brotli 编码
func acceptsBrotli(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept-Encoding"), contentEncodingBrotli)
}

// resolveBrotliPath 解析请求路径，返回对应的 .br 文件路径
//
// 路径映射：
//   - /static/<tag>/... -> dist/static/<tag>/....br（带版本标签的打包产物）
//   - 其他路径          -> dist/prod/....br（本地化页面）
func resolveBrotliPath(basePath, reqPath string) (string, error) {
	cleaned := filepath.Clean(reqPath)

	if strings.HasPrefix(cleaned, "/static/") {
		return filepath.Join(basePath, cleaned+brotliExtension), nil
	}

	if cleaned == "/" {
		cleaned = "/index.html"
	}
	return filepath.Join(basePath, "prod", cleaned+brotliExtension), nil
}

// cacheControlFor 根据请求路径选择缓存策略
// 带版本标签的静态产物不可变，页面始终取最新
func cacheControlFor(reqPath string) string {
	if strings.HasPrefix(reqPath, "/static/") {
		return cacheControlImmutable
	}
	return cacheControlNoCache
}

// setCompressedHeaders 设置压缩文件的响应头
func setCompressedHeaders(c *gin.Context, contentType, cacheControl string) {
	c.Header("Content-Encoding", contentEncodingBrotli)
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", cacheControl)
	// 告诉缓存服务器根据 Accept-Encoding 区分缓存
	c.Header("Vary", "Accept-Encoding")
}
