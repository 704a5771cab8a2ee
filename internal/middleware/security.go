/**
 * internal/middleware/security.go
 * 安全响应头中间件
 *
 * 功能：
 * - 为预览服务器的所有响应附加基础安全头
 * - 页面与静态资源区分缓存策略
 */

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ====================  常量定义 ====================

const (
	headerContentTypeOptions = "X-Content-Type-Options"
	headerFrameOptions       = "X-Frame-Options"
	headerReferrerPolicy     = "Referrer-Policy"
)

// ====================  公开函数 ====================

// SecurityHeaders 基础安全头中间件
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(headerContentTypeOptions, "nosniff")
		c.Header(headerFrameOptions, "SAMEORIGIN")
		c.Header(headerReferrerPolicy, "strict-origin-when-cross-origin")
		c.Next()
	}
}

// CacheHeaders 按路径区分缓存策略
// 带版本标签的静态产物不可变，页面始终取最新
func CacheHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 预压缩中间件已设置过的响应不再覆盖
		if c.Writer.Header().Get("Cache-Control") != "" {
			c.Next()
			return
		}

		if strings.HasPrefix(c.Request.URL.Path, "/static/") {
			c.Header("Cache-Control", cacheControlImmutable)
		} else if isHTMLPage(c.Request.URL.Path) {
			c.Header("Cache-Control", cacheControlNoCache)
		}
		c.Next()
	}
}

// ====================  私有函数 ====================

// isHTMLPage 判断路径是否为页面请求
func isHTMLPage(path string) bool {
	return path == "/" || strings.HasSuffix(path, ".html") || strings.HasSuffix(path, "/")
}
