/**
 * cmd/build/main.go
 * 站点构建工具
 *
 * 功能：
 * - 加载全部语言目录并统计缺失翻译
 * - 从入口 HTML 提取模块脚本入口点
 * - 虚拟模块解析 + 整图打包（共享块拆分）
 * - 双目标传译（现代 / 旧版运行时）
 * - 按（页面 × 语言）扇出本地化文档
 * - 静态资源拷贝、WebP 分享图、Brotli 预压缩
 * - 可选：上传静态产物到 R2
 *
 * 用法：
 *   go run ./cmd/build          # 生产构建（压缩 + Brotli）
 *   go run ./cmd/build -dev     # 开发模式（不压缩，跳过 Brotli）
 *   go run ./cmd/build -upload  # 构建后上传静态产物
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"scene-arcade/internal/assets"
	"scene-arcade/internal/bundler"
	"scene-arcade/internal/catalog"
	"scene-arcade/internal/config"
	"scene-arcade/internal/css"
	"scene-arcade/internal/deploy"
	"scene-arcade/internal/entries"
	"scene-arcade/internal/fanout"
	"scene-arcade/internal/htmldoc"
	"scene-arcade/internal/resolver"
	"scene-arcade/internal/scenes"
	"scene-arcade/internal/transpiler"
	"scene-arcade/internal/utils"

	"golang.org/x/sync/errgroup"
)

// ====================  常量定义 ====================

const dirPerm = 0755

// ====================  命令行参数 ====================

var (
	isDev    = flag.Bool("dev", false, "Development mode (no minification, no Brotli)")
	doUpload = flag.Bool("upload", false, "Upload static output to R2 after build")
)

// ====================  构建统计 ====================

// BuildStats 构建统计信息
type BuildStats struct {
	Documents    int64
	EntryPoints  int64
	Artifacts    int64
	BytesEmitted int64
}

var stats BuildStats

// ====================  主函数 ====================

func main() {
	flag.Parse()
	defer utils.SyncLogger()

	startTime := time.Now()
	mode := "production"
	if *isDev {
		mode = "development"
	}

	utils.LogPrintf("[BUILD] Starting build in %s mode...", mode)

	// 任何阶段失败都在这里统一转为日志 + 非零退出
	if err := run(); err != nil {
		utils.LogFatalf("[BUILD] FATAL: Build failed: %v", err)
	}

	elapsed := time.Since(startTime)
	utils.LogPrintf("[BUILD] Completed successfully in %dms", elapsed.Milliseconds())
	utils.LogPrintf("[BUILD] Stats: docs=%d, entries=%d, artifacts=%d, emitted=%s",
		stats.Documents,
		stats.EntryPoints,
		stats.Artifacts,
		utils.FormatBytes(stats.BytesEmitted))
}

// run 执行构建流程
func run() error {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	prodRoot := filepath.Join(cfg.DistDir, "prod")
	staticRoot := filepath.Join(cfg.DistDir, "static", cfg.BuildTag)

	// 2. 清理并创建输出目录
	if err := setupDistDir(cfg.DistDir, prodRoot, staticRoot); err != nil {
		return fmt.Errorf("setup dist dir failed: %w", err)
	}

	// 3. 加载语言目录（默认语言缺失为致命错误，在写出任何文档之前失败）
	ledger := catalog.NewLedger()
	catalogs, err := catalog.LoadAll(filepath.Join(cfg.SourceDir, "i18n"), cfg.DefaultLang, ledger.Record)
	if err != nil {
		return fmt.Errorf("catalog load failed: %w", err)
	}

	// 4. 加载入口文档（主页 + 静态页 + 每场景一页）
	pages, err := loadPages(cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	atomic.AddInt64(&stats.Documents, int64(len(pages)))

	// 5. 入口提取（在共享源文档上进行：入口身份按脚本出现计，不按场景/语言计）
	cssc, err := css.NewCompiler()
	if err != nil {
		return fmt.Errorf("css compiler init failed: %w", err)
	}

	registry := entries.NewRegistry()
	required := make(entries.RequiredScripts)
	extractor := &entries.Extractor{
		Registry: registry,
		Required: required,
		CSS:      cssc,
		Minify:   !*isDev,
	}

	for _, page := range pages {
		if _, err := extractor.Extract(page.SourcePath, page.Doc); err != nil {
			return fmt.Errorf("extraction failed for %s: %w", page.SourcePath, err)
		}
	}
	atomic.AddInt64(&stats.EntryPoints, int64(registry.Len()))
	utils.LogPrintf("[BUILD] Extracted %d entry points from %d documents", registry.Len(), len(pages))

	// 6. 虚拟模块解析 + 整图打包
	res := resolver.New(registry, resolver.TypeScriptLoader{})
	artifacts, err := bundler.Bundle(registry, res)
	if err != nil {
		return fmt.Errorf("bundle failed: %w", err)
	}
	atomic.AddInt64(&stats.Artifacts, int64(len(artifacts)))

	// 7. 把入口产物路径写回 script 节点（完成提取阶段开始的改写）
	if err := bundler.RewriteScriptNodes(artifacts, registry, cfg.StaticURL()); err != nil {
		return fmt.Errorf("script rewrite failed: %w", err)
	}

	// 8. 双目标传译（现代 / 旧版两趟读写互不相交，并发执行）
	tp := &transpiler.Transpiler{
		CSS:       cssc,
		StylesDir: filepath.Join(cfg.SourceDir, "styles"),
		OutDir:    filepath.Join(staticRoot, "src"),
	}

	var g errgroup.Group
	g.Go(func() error { return tp.ModernPass(artifacts) })
	g.Go(func() error { return tp.LegacyPass(registry, res, cfg.LegacyTarget) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("transpile failed: %w", err)
	}
	atomic.AddInt64(&stats.BytesEmitted, tp.EmittedBytes())

	// 9. 本地化扇出
	fo := &fanout.Fanout{
		Catalogs:        catalogs,
		DefaultLang:     cfg.DefaultLang,
		DefaultLangOnly: cfg.DefaultLangOnly,
		StaticURL:       cfg.StaticURL(),
		BuildTag:        cfg.BuildTag,
		ProdBaseURL:     cfg.ProdBaseURL,
		ProdRoot:        prodRoot,
		ShareImageDir:   filepath.Join(cfg.SourceDir, "images", "scenes"),
	}
	if err := fo.WriteAll(fanoutPages(pages)); err != nil {
		return fmt.Errorf("fanout failed: %w", err)
	}

	// 10. 静态资源
	if err := buildAssets(cfg, required, staticRoot); err != nil {
		return fmt.Errorf("assets build failed: %w", err)
	}

	// 11. 生产模式下生成 Brotli 预压缩文件
	if !*isDev {
		if err := assets.BrotliCompressDir(cfg.DistDir); err != nil {
			utils.LogPrintf("[BUILD] WARN: Brotli compression had errors: %v", err)
		}
	}

	// 12. 可选上传
	if *doUpload {
		if err := uploadStatic(cfg, staticRoot); err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
	}

	// 13. 缺失翻译汇总（只报告，不影响退出码）
	ledger.Report(len(catalogs))

	return nil
}

// ====================  目录设置 ====================

// setupDistDir 清理并创建输出目录结构
func setupDistDir(distDir, prodRoot, staticRoot string) error {
	utils.LogPrintf("[BUILD] Setting up dist directory...")

	if err := os.RemoveAll(distDir); err != nil {
		utils.LogPrintf("[BUILD] WARN: Failed to remove old dist dir: %v", err)
	}

	dirs := []string{
		prodRoot,
		filepath.Join(staticRoot, "src"),
		filepath.Join(staticRoot, "third_party"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ====================  文档加载 ====================

// sourcePage 带源路径的页面
type sourcePage struct {
	fanout.Page
	SourcePath string
}

// loadPages 加载主页、顶层静态页和全部场景页
// 固定清单，缺失场景文档视为致命错误
func loadPages(sourceDir string) ([]sourcePage, error) {
	var pages []sourcePage

	// 顶层静态页（含 index.html）
	topLevel, err := filepath.Glob(filepath.Join(sourceDir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob pages: %w", err)
	}

	for _, path := range topLevel {
		doc, err := htmldoc.ParseFile(path)
		if err != nil {
			return nil, err
		}
		pages = append(pages, sourcePage{
			Page:       fanout.Page{Name: filepath.Base(path), Doc: doc},
			SourcePath: path,
		})
	}

	// 场景页：scenes/<id>/<id>.html
	for _, sc := range scenes.All() {
		path := filepath.Join(sourceDir, "scenes", sc.ID, sc.ID+".html")
		doc, err := htmldoc.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("scene document missing for %s: %w", sc.ID, err)
		}
		pages = append(pages, sourcePage{
			Page:       fanout.Page{Name: sc.ID + ".html", Doc: doc, Scene: &sc},
			SourcePath: path,
		})
	}

	return pages, nil
}

// fanoutPages 剥掉源路径，转成扇出输入
func fanoutPages(pages []sourcePage) []fanout.Page {
	out := make([]fanout.Page, len(pages))
	for i, p := range pages {
		out[i] = p.Page
	}
	return out
}

// ====================  静态资源 ====================

// buildAssets 拷贝传统脚本、镜像静态资源、生成 WebP 分享图和资源清单
func buildAssets(cfg *config.Config, required entries.RequiredScripts, staticRoot string) error {
	if err := assets.CopyRequiredScripts(required.Paths(), filepath.Join(staticRoot, "third_party")); err != nil {
		return err
	}

	if err := assets.MirrorDir(filepath.Join(cfg.SourceDir, "images"), filepath.Join(staticRoot, "images")); err != nil {
		return err
	}

	if err := assets.EncodeShareImages(
		filepath.Join(cfg.SourceDir, "images", "scenes"),
		filepath.Join(staticRoot, "images", "scenes"),
	); err != nil {
		return err
	}

	manifest := assets.NewManifest()
	if err := manifest.AddDir(cfg.DistDir, staticRoot); err != nil {
		return fmt.Errorf("manifest build failed: %w", err)
	}
	return manifest.Save(filepath.Join(cfg.DistDir, "manifest.json"))
}

// ====================  上传 ====================

// uploadStatic 上传静态产物到 R2
func uploadStatic(cfg *config.Config, staticRoot string) error {
	uploader, err := deploy.NewR2Uploader(cfg)
	if err != nil {
		return err
	}
	if !uploader.IsConfigured() {
		utils.LogPrintf("[BUILD] WARN: Upload requested but R2 not configured, skipping")
		return nil
	}

	return uploader.UploadDir(context.Background(), staticRoot, "static/"+cfg.BuildTag)
}
