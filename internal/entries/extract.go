/**
 * internal/entries/extract.go
 * 入口提取模块
 *
 * 扫描入口 HTML 文档（主页 + 每个场景一页），完成三件事：
 * - 本地样式表内联为 <style>（编译委托给 css 包）
 * - 传统脚本（非 module）登记到 RequiredScriptSources，绕过打包原样拷贝
 * - 每个 <script type="module"> 登记为一个编译入口点
 *
 * 实现分两遍：Scan 只读产出提取报告，Apply 按报告改写文档。
 * 提取与改写分离，保证 Scan 幂等、可独立测试。
 */

package entries

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"scene-arcade/internal/css"
	"scene-arcade/internal/htmldoc"

	"golang.org/x/net/html"
)

// ====================  数据结构 ====================

// EntryPoint 编译入口点
// 每个 <script type="module"> 对应一个实例，整个语料中按出现顺序编号。
// 本地化 fanout 共享同一个模块图，入口身份按脚本出现计，不按场景/语言计。
// 创建后各下游阶段只读引用，不再变更。
type EntryPoint struct {
	ID      string     // 确定性索引标识（entry0、entry1...）
	Dir     string     // 所属文档目录（相对导入的解析基准）
	Source  string     // 源码文本：内联脚本原文，或由 src 合成的单行 import
	DocPath string     // 所属文档路径（日志用）
	Node    *html.Node // 原 script 节点（打包完成后改写 src 用）
}

// Registry 入口点注册表
// 由顶层驱动持有，提取阶段写入，后续阶段只读
type Registry struct {
	entries []*EntryPoint
	byID    map[string]*EntryPoint
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*EntryPoint)}
}

// add 分配下一个入口点
func (r *Registry) add(dir, source, docPath string, node *html.Node) *EntryPoint {
	ep := &EntryPoint{
		ID:      fmt.Sprintf("entry%d", len(r.entries)),
		Dir:     dir,
		Source:  source,
		DocPath: docPath,
		Node:    node,
	}
	r.entries = append(r.entries, ep)
	r.byID[ep.ID] = ep
	return ep
}

// Get 按 ID 查找入口点
func (r *Registry) Get(id string) (*EntryPoint, bool) {
	ep, ok := r.byID[id]
	return ep, ok
}

// All 按注册顺序返回全部入口点
func (r *Registry) All() []*EntryPoint {
	return r.entries
}

// Len 返回入口点数量
func (r *Registry) Len() int {
	return len(r.entries)
}

// RequiredScripts 非模块脚本源文件集合
// 跨全部文档去重，原样拷贝，不进打包管线
type RequiredScripts map[string]bool

// Add 登记脚本路径
func (s RequiredScripts) Add(path string) {
	s[path] = true
}

// Paths 返回排序后的路径列表
func (s RequiredScripts) Paths() []string {
	var out []string
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ====================  提取报告 ====================

// StylesheetRef 待内联的本地样式表
type StylesheetRef struct {
	Node *html.Node // link 节点
	Path string     // 解析后的绝对路径
}

// ModuleScriptRef 待登记的模块脚本
type ModuleScriptRef struct {
	Node   *html.Node // script 节点
	Source string     // 入口源码文本
}

// Report 单个文档的提取报告
// Scan 产出后不再变更，Apply 按其内容改写
type Report struct {
	DocPath        string
	Stylesheets    []StylesheetRef
	ClassicScripts []string // 解析后的绝对路径，去重前
	ModuleScripts  []ModuleScriptRef
}

// ====================  提取器 ====================

// Extractor 入口提取器
type Extractor struct {
	Registry *Registry       // 入口注册表（共享，可写）
	Required RequiredScripts // 传统脚本集合（共享，可写）
	CSS      *css.Compiler   // 样式表编译器
	Minify   bool            // 内联样式是否压缩
}

// Scan 只读扫描文档，产出提取报告
//
// 参数：
//   - docPath: 文档路径
//   - doc: 解析后的文档
func (e *Extractor) Scan(docPath string, doc *html.Node) (*Report, error) {
	docDir, err := filepath.Abs(filepath.Dir(docPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document dir: %w", err)
	}

	report := &Report{DocPath: docPath}

	// 本地样式表
	for _, link := range htmldoc.FindAll(doc, "link") {
		rel, _ := htmldoc.Attr(link, "rel")
		if rel != "stylesheet" {
			continue
		}
		href, ok := htmldoc.Attr(link, "href")
		if !ok || htmldoc.IsRemoteURL(href) {
			continue
		}
		report.Stylesheets = append(report.Stylesheets, StylesheetRef{
			Node: link,
			Path: filepath.Join(docDir, href),
		})
	}

	// 脚本分类
	for _, script := range htmldoc.FindAll(doc, "script") {
		src, hasSrc := htmldoc.Attr(script, "src")
		if hasSrc && htmldoc.IsRemoteURL(src) {
			continue
		}

		typ, _ := htmldoc.Attr(script, "type")
		switch typ {
		case "module":
			report.ModuleScripts = append(report.ModuleScripts, ModuleScriptRef{
				Node:   script,
				Source: moduleSource(script, src, hasSrc),
			})
		case "", "text/javascript":
			// 传统脚本：仅处理带 src 的（内联传统脚本不动）
			if hasSrc {
				report.ClassicScripts = append(report.ClassicScripts, filepath.Join(docDir, src))
			}
		}
	}

	return report, nil
}

// Apply 按报告改写文档并登记共享状态
// 文档节点被原地修改，改动会保留到之后的本地化写出
func (e *Extractor) Apply(report *Report, doc *html.Node) error {
	docDir, err := filepath.Abs(filepath.Dir(report.DocPath))
	if err != nil {
		return fmt.Errorf("failed to resolve document dir: %w", err)
	}

	// 内联样式表：link 节点替换为 <style>
	for _, ref := range report.Stylesheets {
		compiled, err := e.CSS.CompileStylesheet(ref.Path, e.Minify)
		if err != nil {
			return fmt.Errorf("failed to inline stylesheet %s: %w", ref.Path, err)
		}

		style := &html.Node{Type: html.ElementNode, Data: "style"}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: compiled})

		parent := ref.Node.Parent
		parent.InsertBefore(style, ref.Node)
		parent.RemoveChild(ref.Node)
	}

	// 传统脚本去重登记
	for _, path := range report.ClassicScripts {
		e.Required.Add(path)
	}

	// 模块脚本登记为入口点，并剥离原始内容
	// src 属性与文本在打包完成后统一替换为产物路径
	for _, ref := range report.ModuleScripts {
		e.Registry.add(docDir, ref.Source, report.DocPath, ref.Node)
		htmldoc.RemoveAttr(ref.Node, "src")
		htmldoc.SetText(ref.Node, "")
	}

	return nil
}

// Extract 扫描并改写单个文档
func (e *Extractor) Extract(docPath string, doc *html.Node) (*Report, error) {
	report, err := e.Scan(docPath, doc)
	if err != nil {
		return nil, err
	}
	if err := e.Apply(report, doc); err != nil {
		return nil, err
	}
	return report, nil
}

// ====================  源码合成 ====================

// moduleSource 生成入口点源码
// 带 src 的模块脚本合成单行 import；内联脚本取原文
func moduleSource(script *html.Node, src string, hasSrc bool) string {
	if !hasSrc {
		return htmldoc.Text(script)
	}

	// 非相对引用统一加 ./ 前缀
	if !strings.HasPrefix(src, ".") {
		src = "./" + src
	}
	return fmt.Sprintf("import '%s';", src)
}
