/**
 * internal/resolver/resolver.go
 * 虚拟模块解析模块
 *
 * 在真实文件导入和内存合成模块之间搭桥：
 * - 根解析：入口标识直接映射到注册表里的源码（图的种子）
 * - 相对解析：以导入方目录为基准解析出绝对路径，交给编译加载器；
 *   加载器不认识的路径回落到标准文件系统解析
 * - 内联形式：inline:<base64> 标识内嵌源码本体，同步解码返回
 *
 * 模块缓存是整个构建唯一的共享可变状态：
 * - 入口源码在解析开始前一次性播种
 * - 普通导入在首次解析时惰性填充，singleflight 保证同一标识至多编译一次
 * - Load 只查缓存，未填充的标识视为契约违规直接报错
 */

package resolver

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scene-arcade/internal/entries"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/singleflight"
)

// ====================  错误定义 ====================

var (
	// ErrUnknownEntry 入口标识未注册
	ErrUnknownEntry = errors.New("UNKNOWN_ENTRY_ID")

	// ErrNotResolved 模块在加载前未经过解析（compile-once 契约违规）
	ErrNotResolved = errors.New("MODULE_NOT_RESOLVED")

	// ErrBadInline 内联标识解码失败
	ErrBadInline = errors.New("INVALID_INLINE_IDENTIFIER")
)

// ====================  常量定义 ====================

const (
	// InlineMarker 内联标识前缀，后接 base64 编码的源码本体
	InlineMarker = "inline:"

	// 插件命名空间
	nsEntry    = "virtual-entry"
	nsInline   = "virtual-inline"
	nsCompiled = "virtual-compiled"
)

// ====================  编译加载器 ====================

// CompileKind 编译结果类别
type CompileKind int

const (
	// KindNotApplicable 路径不是可编译源，回落到文件系统解析
	KindNotApplicable CompileKind = iota

	// KindCompiled 编译成功，Body 为输出文本
	KindCompiled
)

// CompileResult 编译加载器的带标签结果
// 显式区分"编译产物"与"不适用"，由调用方分派，而不是用缺省返回值推断
type CompileResult struct {
	Kind CompileKind
	Body string
}

// Loader 编译加载器协作方
// 对认识的源文件返回编译产物，其余返回 NotApplicable
type Loader interface {
	Compile(absPath string) (CompileResult, error)
}

// TypeScriptLoader 默认加载器
// 编译 .ts 源文件（esbuild 转换，不压缩，压缩留给传译阶段）
type TypeScriptLoader struct{}

// Compile 实现 Loader
func (TypeScriptLoader) Compile(absPath string) (CompileResult, error) {
	if filepath.Ext(absPath) != ".ts" {
		return CompileResult{Kind: KindNotApplicable}, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return CompileResult{}, fmt.Errorf("failed to read %s: %w", absPath, err)
	}

	result := api.Transform(string(data), api.TransformOptions{
		Loader: api.LoaderTS,
	})
	if len(result.Errors) > 0 {
		return CompileResult{}, fmt.Errorf("compile failed for %s: %s", absPath, result.Errors[0].Text)
	}

	return CompileResult{Kind: KindCompiled, Body: string(result.Code)}, nil
}

// ====================  解析器 ====================

// Resolver 虚拟模块解析器
// 由顶层驱动创建并传入打包阶段；只有本类型修改模块缓存
type Resolver struct {
	registry *entries.Registry
	loader   Loader

	mu    sync.RWMutex
	cache map[string]string // 已解析标识 -> 源码/编译产物
	sf    singleflight.Group
}

// New 创建解析器并播种入口源码
// 入口根的缓存条目在任何解析开始之前写入
func New(registry *entries.Registry, loader Loader) *Resolver {
	r := &Resolver{
		registry: registry,
		loader:   loader,
		cache:    make(map[string]string),
	}

	for _, ep := range registry.All() {
		r.cache[ep.ID] = ep.Source
	}

	return r
}

// Load 加载已解析的模块
// 只查缓存；未填充的标识说明解析顺序被破坏，按契约违规报错
func (r *Resolver) Load(id string) (string, error) {
	r.mu.RLock()
	text, ok := r.cache[id]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotResolved, id)
	}
	return text, nil
}

// Cached 检查标识是否已在缓存中
func (r *Resolver) Cached(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[id]
	return ok
}

// resolveFile 相对解析的编译分支
// 首次访问时调用加载器并填充缓存，之后复用缓存文本
//
// 返回 applicable=false 表示加载器不认识该路径，调用方回落文件系统解析
func (r *Resolver) resolveFile(absPath string) (applicable bool, err error) {
	r.mu.RLock()
	_, cached := r.cache[absPath]
	r.mu.RUnlock()

	if cached {
		return true, nil
	}

	// singleflight：并发图遍历下同一标识至多编译一次
	result, err, _ := r.sf.Do(absPath, func() (interface{}, error) {
		// 双重检查：等待队列里的后来者直接复用
		r.mu.RLock()
		_, cached := r.cache[absPath]
		r.mu.RUnlock()
		if cached {
			return true, nil
		}

		compiled, err := r.loader.Compile(absPath)
		if err != nil {
			return false, err
		}

		switch compiled.Kind {
		case KindCompiled:
			r.mu.Lock()
			r.cache[absPath] = compiled.Body
			r.mu.Unlock()
			return true, nil
		default:
			return false, nil
		}
	})
	if err != nil {
		return false, err
	}

	return result.(bool), nil
}

// ====================  esbuild 插件 ====================

// Plugin 构造打包器使用的解析插件
// 打包器以此为唯一的模块加载接口
func (r *Resolver) Plugin() api.Plugin {
	return api.Plugin{
		Name: "virtual-resolver",
		Setup: func(build api.PluginBuild) {
			// 根解析：入口标识（importer 未定义时的入口种子）
			build.OnResolve(api.OnResolveOptions{Filter: `^entry\d+$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if _, ok := r.registry.Get(args.Path); !ok {
						return api.OnResolveResult{}, fmt.Errorf("%w: %s", ErrUnknownEntry, args.Path)
					}
					return api.OnResolveResult{Path: args.Path, Namespace: nsEntry}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: nsEntry},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					text, err := r.Load(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}

					// 入口的相对导入以所属文档目录为基准
					ep, _ := r.registry.Get(args.Path)
					return api.OnLoadResult{
						Contents:   &text,
						Loader:     api.LoaderJS,
						ResolveDir: ep.Dir,
					}, nil
				})

			// 内联形式：标识内嵌 base64 源码，不经过编译加载器
			build.OnResolve(api.OnResolveOptions{Filter: `^inline:`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: nsInline}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: nsInline},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					body, err := DecodeInline(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					return api.OnLoadResult{Contents: &body, Loader: api.LoaderJS}, nil
				})

			// 相对解析：以导入方目录为基准，先问编译加载器
			build.OnResolve(api.OnResolveOptions{Filter: `^\.\.?/`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					absPath := filepath.Join(args.ResolveDir, args.Path)

					applicable, err := r.resolveFile(absPath)
					if err != nil {
						return api.OnResolveResult{}, err
					}

					// 加载器不认识：空结果回落到标准文件系统解析
					if !applicable {
						return api.OnResolveResult{}, nil
					}

					return api.OnResolveResult{Path: absPath, Namespace: nsCompiled}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: nsCompiled},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					text, err := r.Load(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					resolveDir := filepath.Dir(args.Path)
					return api.OnLoadResult{
						Contents:   &text,
						Loader:     api.LoaderJS,
						ResolveDir: resolveDir,
					}, nil
				})
		},
	}
}

// ====================  内联标识 ====================

// EncodeInline 把源码本体编码为内联标识
// 场景编译路径用它把预渲染代码直接送进模块图，无需落盘
func EncodeInline(source string) string {
	return InlineMarker + base64.StdEncoding.EncodeToString([]byte(source))
}

// DecodeInline 解码内联标识
func DecodeInline(id string) (string, error) {
	encoded := strings.TrimPrefix(id, InlineMarker)
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadInline, err)
	}
	return string(body), nil
}
