package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestResolveBrotliPath(t *testing.T) {
	p, err := resolveBrotliPath("./dist", "/static/v1/src/entry0.js")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("dist", "static", "v1", "src", "entry0.js.br"), p)

	p, err = resolveBrotliPath("./dist", "/icehockey.html")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("dist", "prod", "icehockey.html.br"), p)

	p, err = resolveBrotliPath("./dist", "/intl/fr_ALL/icehockey.html")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("dist", "prod", "intl", "fr_ALL", "icehockey.html.br"), p)

	p, err = resolveBrotliPath("./dist", "/")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("dist", "prod", "index.html.br"), p)
}

func TestCacheControlFor(t *testing.T) {
	require.Equal(t, cacheControlImmutable, cacheControlFor("/static/v1/src/entry0.js"))
	require.Equal(t, cacheControlNoCache, cacheControlFor("/icehockey.html"))
}

func TestPreCompressedStatic(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dist := t.TempDir()
	prodDir := filepath.Join(dist, "prod")
	require.NoError(t, os.MkdirAll(prodDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(prodDir, "index.html"), []byte("<html>plain</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(prodDir, "index.html.br"), []byte("brotli-bytes"), 0644))

	r := gin.New()
	r.Use(PreCompressedStatic(dist))
	r.GET("/index.html", func(c *gin.Context) {
		c.File(filepath.Join(prodDir, "index.html"))
	})

	// 客户端支持 br：直接服务 .br 旁路文件
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	require.Equal(t, "brotli-bytes", w.Body.String())

	// 不支持 br：回落到原文件
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/index.html", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Equal(t, "<html>plain</html>", w.Body.String())
}

func TestShardedRateLimiter(t *testing.T) {
	limiter := NewShardedRateLimiter(1, 2)

	// 突发容量内放行
	require.True(t, limiter.Allow("1.2.3.4"))
	require.True(t, limiter.Allow("1.2.3.4"))

	// 超出突发被拒绝
	require.False(t, limiter.Allow("1.2.3.4"))

	// 不同键互不影响
	require.True(t, limiter.Allow("5.6.7.8"))

	require.Equal(t, 2, limiter.Stats())
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
}
