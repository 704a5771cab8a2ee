/**
 * internal/fanout/fanout.go
 * 文档本地化扇出模块
 *
 * 对每个（页面或场景）×（语言）组合：
 * - 克隆语言无关的模板文档（此时入口脚本已被改写为产物路径）
 * - 按 msgid 属性替换本地化文本
 * - 设置 lang、静态资源根 URL 和版本标签属性
 * - 场景分享图存在时替换社交分享元数据（缺图静默跳过）
 *
 * 输出：默认语言在站点根目录，其他语言在 intl/<lang>_ALL/ 下，
 * 本地化 manifest 写在同级根目录。纯扇出，无共享可变状态，
 * 按（页面, 语言）对并行。
 */

package fanout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"scene-arcade/internal/catalog"
	"scene-arcade/internal/htmldoc"
	"scene-arcade/internal/scenes"
	"scene-arcade/internal/utils"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// ====================  常量定义 ====================

const (
	dirPerm  = 0755
	filePerm = 0644
)

// ====================  数据结构 ====================

// Page 待扇出的页面
type Page struct {
	Name  string             // 输出文件名（icehockey.html）
	Doc   *html.Node         // 改写完毕的源文档
	Scene *scenes.Descriptor // 场景页面的描述（普通页面为 nil）
}

// Fanout 扇出器
// 全部字段只读，writeOne 之间无共享可变状态
type Fanout struct {
	Catalogs        map[string]*catalog.Catalog // 语言目录（只读）
	DefaultLang     string                      // 默认语言
	DefaultLangOnly bool                        // 仅输出默认语言
	StaticURL       string                      // 带版本标签的静态资源 URL 前缀
	BuildTag        string                      // 版本标签
	ProdBaseURL     string                      // 生产站点基础 URL（分享图绝对地址用）
	ProdRoot        string                      // 页面输出根目录（dist/prod）
	ShareImageDir   string                      // 场景分享图源目录
}

// ====================  扇出 ====================

// WriteAll 扇出全部页面
// 每个（页面, 语言）对一个任务，errgroup 并行
func (f *Fanout) WriteAll(pages []Page) error {
	var g errgroup.Group
	var count int

	for lang, cat := range f.Catalogs {
		if f.DefaultLangOnly && lang != f.DefaultLang {
			continue
		}

		for _, page := range pages {
			count++
			g.Go(func() error {
				return f.writeOne(page, cat)
			})
		}

		g.Go(func() error {
			return f.writeManifest(cat)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	utils.LogPrintf("[FANOUT] Wrote %d localized documents", count)
	return nil
}

// writeOne 写出单个（页面, 语言）组合
func (f *Fanout) writeOne(page Page, cat *catalog.Catalog) error {
	// 克隆模板，各语言互不影响
	doc, err := htmldoc.Clone(page.Doc)
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", page.Name, err)
	}

	f.localize(doc, cat)

	if page.Scene != nil {
		f.applyShareMeta(doc, *page.Scene, cat)
	}

	dst := filepath.Join(f.langRoot(cat.Lang), page.Name)
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	data, err := htmldoc.Render(doc)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", page.Name, err)
	}

	if err := os.WriteFile(dst, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	return nil
}

// localize 本地化文档
// msgid 属性标记的节点文本替换为对应语言消息，
// 并设置 lang / 版本标签 / 静态资源基础 URL
func (f *Fanout) localize(doc *html.Node, cat *catalog.Catalog) {
	htmldoc.Walk(doc, func(n *html.Node) {
		if msgid, ok := htmldoc.Attr(n, "msgid"); ok {
			htmldoc.SetText(n, cat.Get(msgid))
		}
	})

	if root := htmldoc.FindFirst(doc, "html"); root != nil {
		htmldoc.SetAttr(root, "lang", cat.Lang)
		htmldoc.SetAttr(root, "data-version", f.BuildTag)
		htmldoc.SetAttr(root, "data-static-root", f.StaticURL)
	}

	// <base> 决定相对静态路径的解析基准
	if base := htmldoc.FindFirst(doc, "base"); base != nil {
		htmldoc.SetAttr(base, "href", f.baseHref(cat.Lang))
	}
}

// baseHref 计算各语言根目录下的静态基准
// 非默认语言深两级，相对 URL 需要回退到站点根
func (f *Fanout) baseHref(lang string) string {
	if lang == f.DefaultLang {
		return "./"
	}
	return "../../"
}

// applyShareMeta 替换场景社交分享元数据
// 分享图不存在属于可选资源缺失：静默跳过，不是错误
func (f *Fanout) applyShareMeta(doc *html.Node, scene scenes.Descriptor, cat *catalog.Catalog) {
	imgPath := filepath.Join(f.ShareImageDir, scene.ID+".png")
	if _, err := os.Stat(imgPath); os.IsNotExist(err) {
		return
	}

	title := cat.Get(scene.Msgid())
	imgURL := f.ProdBaseURL + "images/scenes/" + scene.ID + ".png"

	// 视频布局场景声明为视频内容类型
	ogType := "website"
	if scene.VideoLayout {
		ogType = "video.other"
	}

	for _, meta := range htmldoc.FindAll(doc, "meta") {
		prop, _ := htmldoc.Attr(meta, "property")
		switch prop {
		case "og:title":
			htmldoc.SetAttr(meta, "content", title)
		case "og:image":
			htmldoc.SetAttr(meta, "content", imgURL)
		case "og:type":
			htmldoc.SetAttr(meta, "content", ogType)
		}
	}
}

// ====================  Manifest ====================

// webManifest 本地化 Web App Manifest
type webManifest struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Lang      string `json:"lang"`
	StartURL  string `json:"start_url"`
	Display   string `json:"display"`
}

// writeManifest 写出单语言 manifest.json
func (f *Fanout) writeManifest(cat *catalog.Catalog) error {
	manifest := webManifest{
		Name:      cat.Get("site_name"),
		ShortName: cat.Get("site_name_short"),
		Lang:      cat.Lang,
		StartURL:  "./",
		Display:   "standalone",
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dst := filepath.Join(f.langRoot(cat.Lang), "manifest.json")
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := os.WriteFile(dst, data, filePerm); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// ====================  路径 ====================

// langRoot 返回某语言的页面输出根目录
// 默认语言在站点根，其他语言在 intl/<lang>_ALL/ 下
func (f *Fanout) langRoot(lang string) string {
	if lang == f.DefaultLang {
		return f.ProdRoot
	}
	return filepath.Join(f.ProdRoot, "intl", lang+"_ALL")
}
