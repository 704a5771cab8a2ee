/**
 * internal/bundler/bundler.go
 * 打包 / 共享块拆分模块
 *
 * 以全部入口点为根做一次整图打包（esbuild 共享块拆分）：
 * 被多个入口引用的模块提升为单独的共享块，不在各入口产物里重复。
 * 解析插件是打包器唯一的模块来源。
 *
 * 打包完成后把入口产物的最终路径写回各自的 script 节点，
 * 完成提取阶段开始的改写。
 */

package bundler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scene-arcade/internal/entries"
	"scene-arcade/internal/htmldoc"
	"scene-arcade/internal/resolver"
	"scene-arcade/internal/utils"

	"github.com/evanw/esbuild/pkg/api"
)

// ====================  数据结构 ====================

// Artifact 打包产物
// 一个命名输出块：入口产物或共享块
type Artifact struct {
	Name    string // 输出文件名（含 _shared/ 子目录）
	IsEntry bool   // 是否入口产物
	EntryID string // 入口产物对应的入口点 ID（共享块为空）
	Code    []byte // 打包后的代码
}

// metafile esbuild 元数据（只取需要的字段）
type metafile struct {
	Outputs map[string]metaOutput `json:"outputs"`
}

type metaOutput struct {
	EntryPoint string `json:"entryPoint"`
	Bytes      int    `json:"bytes"`
}

// ====================  打包 ====================

// 共享块输出到 _shared/ 子目录，命名带内容哈希
const chunkNames = "_shared/[name]-[hash]"

// Bundle 打包全部入口点
//
// 参数：
//   - registry: 入口注册表（全部入口已登记完毕，不支持流式追加）
//   - res: 虚拟模块解析器
//
// 返回：
//   - map[string]*Artifact: 输出文件名 -> 产物
//   - error: 打包错误（解析失败视为构建期契约违规，直接失败）
func Bundle(registry *entries.Registry, res *resolver.Resolver) (map[string]*Artifact, error) {
	if registry.Len() == 0 {
		utils.LogPrintf("[BUNDLE] WARN: No entry points registered")
		return map[string]*Artifact{}, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working dir: %w", err)
	}
	outDir := filepath.Join(wd, ".bundle-out")

	var entryPoints []api.EntryPoint
	for _, ep := range registry.All() {
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  ep.ID,
			OutputPath: ep.ID,
		})
	}

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: entryPoints,
		Bundle:              true,
		Splitting:           true,
		Format:              api.FormatESModule,
		Outdir:              outDir,
		ChunkNames:          chunkNames,
		Metafile:            true,
		Write:               false,
		LogLevel:            api.LogLevelWarning,
		Plugins:             []api.Plugin{res.Plugin()},
	})

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			utils.LogPrintf("[BUNDLE] ERROR: %s", e.Text)
			if e.Location != nil {
				utils.LogPrintf("[BUNDLE]   at %s:%d:%d", e.Location.File, e.Location.Line, e.Location.Column)
			}
		}
		return nil, fmt.Errorf("bundle failed with %d errors", len(result.Errors))
	}

	for _, warn := range result.Warnings {
		utils.LogPrintf("[BUNDLE] WARN: %s", warn.Text)
	}

	// 元数据：输出文件 -> 入口标记
	var meta metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse bundle metafile: %w", err)
	}

	entryByOutput := make(map[string]string)
	for outPath, out := range meta.Outputs {
		if out.EntryPoint == "" {
			continue
		}
		// 虚拟入口在元数据里带命名空间前缀
		id := out.EntryPoint
		if idx := strings.LastIndex(id, ":"); idx >= 0 {
			id = id[idx+1:]
		}
		entryByOutput[artifactName(outPath, outDir, wd)] = id
	}

	artifacts := make(map[string]*Artifact)
	for _, f := range result.OutputFiles {
		name := artifactName(f.Path, outDir, wd)
		entryID, isEntry := entryByOutput[name]
		artifacts[name] = &Artifact{
			Name:    name,
			IsEntry: isEntry,
			EntryID: entryID,
			Code:    f.Contents,
		}
	}

	utils.LogPrintf("[BUNDLE] Bundled %d entries into %d artifacts (%d shared chunks)",
		registry.Len(), len(artifacts), len(artifacts)-registry.Len())

	return artifacts, nil
}

// artifactName 把 esbuild 输出路径归一化为产物名
// 兼容绝对路径（OutputFiles）和工作目录相对路径（metafile）
func artifactName(path, outDir, wd string) string {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(wd, p)
	}
	rel, err := filepath.Rel(outDir, p)
	if err != nil {
		return filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}

// ====================  脚本节点改写 ====================

// RewriteScriptNodes 把入口产物路径写回 script 节点
// src 设为带版本标签的静态路径，相对于文档所在目录可解析
//
// 参数：
//   - artifacts: 打包产物
//   - registry: 入口注册表
//   - staticURL: 静态资源 URL 前缀（config.StaticURL()）
func RewriteScriptNodes(artifacts map[string]*Artifact, registry *entries.Registry, staticURL string) error {
	for _, art := range artifacts {
		if !art.IsEntry {
			continue
		}

		ep, ok := registry.Get(art.EntryID)
		if !ok {
			return fmt.Errorf("bundle produced entry artifact for unknown entry: %s", art.EntryID)
		}

		htmldoc.SetAttr(ep.Node, "src", staticURL+"src/"+art.Name)
	}
	return nil
}
