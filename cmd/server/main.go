/**
 * cmd/server/main.go
 * 构建产物预览服务器
 *
 * 功能：
 * - 本地服务 dist 目录（页面 + 带版本标签的静态产物）
 * - Brotli 预压缩直出（.br 旁路文件）
 * - 安全头、缓存头、按 IP 限流
 * - 优雅关闭
 *
 * 依赖：
 * - Gin Web 框架
 * - 构建系统生成的 dist 目录（先运行 go run ./cmd/build）
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"scene-arcade/internal/config"
	"scene-arcade/internal/middleware"
	"scene-arcade/internal/utils"

	"github.com/gin-gonic/gin"
)

// ====================  常量定义 ====================

const (
	// 服务器超时配置
	serverReadTimeout  = 15 * time.Second
	serverWriteTimeout = 30 * time.Second
	serverIdleTimeout  = 60 * time.Second

	// 优雅关闭超时
	shutdownTimeout = 10 * time.Second
)

// ====================  主函数 ====================

func main() {
	utils.LogPrintf("[SERVER] Starting preview server...")
	defer utils.SyncLogger()

	if err := run(); err != nil {
		utils.LogFatalf("[SERVER] FATAL: Server failed: %v", err)
	}
}

// run 运行服务器的主逻辑
func run() error {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	// 2. 检查构建产物
	distDir := cfg.DistDir
	if _, err := os.Stat(filepath.Join(distDir, "prod")); os.IsNotExist(err) {
		return fmt.Errorf("dist directory not built, run 'go run ./cmd/build' first: %w", err)
	}

	// 3. 创建并配置路由
	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(distDir)

	// 4. 启动服务器
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}
	startServer(srv)

	// 5. 等待关闭信号并优雅关闭
	gracefulShutdown(srv)

	return nil
}

// ====================  路由配置 ====================

// setupRouter 创建并配置路由
func setupRouter(distDir string) *gin.Engine {
	utils.LogPrintf("[ROUTER] Setting up routes...")

	r := gin.New()

	// Recovery 中间件（防止 panic 导致服务器崩溃）
	r.Use(gin.Recovery())

	// 自定义日志中间件
	r.Use(loggerMiddleware())

	// 安全头 + 缓存头 + 限流
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CacheHeaders())
	r.Use(middleware.PreviewRateLimit())

	// Brotli 预压缩直出
	r.Use(middleware.PreCompressedStatic(distDir))

	// 带版本标签的静态产物
	r.Static("/static", filepath.Join(distDir, "static"))

	// 资源清单
	r.StaticFile("/manifest.json", filepath.Join(distDir, "manifest.json"))

	// 本地化页面：默认语言在根，其余语言在 /intl/<lang>_ALL/
	prodRoot := filepath.Join(distDir, "prod")
	r.GET("/", servePage(prodRoot, "index.html"))
	r.NoRoute(servePageTree(prodRoot))

	utils.LogPrintf("[ROUTER] Routes configured: dist=%s", distDir)
	return r
}

// servePage 服务单个页面文件
func servePage(prodRoot, name string) gin.HandlerFunc {
	path := filepath.Join(prodRoot, name)
	return func(c *gin.Context) {
		c.File(path)
	}
}

// servePageTree 按请求路径服务 prod 目录下的页面
// /foo.html 和 /intl/fr_ALL/foo.html 都落在这里
func servePageTree(prodRoot string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqPath := c.Request.URL.Path

		// 安全检查：防止路径遍历
		if strings.Contains(reqPath, "..") {
			c.String(http.StatusBadRequest, "Bad request")
			return
		}

		// 目录请求落到目录下的 index.html
		if strings.HasSuffix(reqPath, "/") {
			reqPath += "index.html"
		}

		path := filepath.Join(prodRoot, filepath.Clean(reqPath))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			c.String(http.StatusNotFound, "Page not found")
			return
		}

		c.File(path)
	}
}

// ====================  服务器管理 ====================

// startServer 启动服务器（非阻塞）
func startServer(srv *http.Server) {
	go func() {
		utils.LogPrintf("[SERVER] Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.LogFatalf("[SERVER] FATAL: HTTP server failed: %v", err)
		}
	}()

	// 等待服务器启动
	time.Sleep(100 * time.Millisecond)
	utils.LogPrintf("[SERVER] Server is running on http://localhost%s", srv.Addr)
}

// ====================  中间件 ====================

// loggerMiddleware 日志中间件
// 记录 HTTP 请求的方法、路径、状态码和延迟
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// 跳过静态资源日志（减少日志噪音）
		if shouldSkipLog(path) {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()

		if status >= 500 {
			utils.LogPrintf("[HTTP] ERROR: %s %s %d %v", c.Request.Method, path, status, latency)
		} else if status >= 400 {
			utils.LogPrintf("[HTTP] WARN: %s %s %d %v", c.Request.Method, path, status, latency)
		} else {
			utils.LogPrintf("[HTTP] %s %s %d %v", c.Request.Method, path, status, latency)
		}
	}
}

// shouldSkipLog 判断是否跳过日志记录
func shouldSkipLog(path string) bool {
	if strings.HasPrefix(path, "/static/") {
		return true
	}

	skipSuffixes := []string{".js", ".css", ".png", ".webp", ".ico", ".woff", ".woff2"}
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}

// ====================  优雅关闭 ====================

// gracefulShutdown 优雅关闭服务器
func gracefulShutdown(srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	utils.LogPrintf("[SERVER] Received %s signal, initiating graceful shutdown...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		utils.LogPrintf("[SERVER] ERROR: HTTP server shutdown failed: %v", err)
	} else {
		utils.LogPrintf("[SERVER] HTTP server stopped")
	}

	utils.LogPrintf("[SERVER] Graceful shutdown completed")
}
