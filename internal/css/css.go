/**
 * internal/css/css.go
 * 样式表编译模块
 *
 * 功能：
 * - 编译并按需压缩 CSS（使用 esbuild）
 * - LRU 编译缓存（同一片段在内联和宏展开时复用）
 * - Singleflight 合并并发编译请求
 *
 * 依赖：
 * - github.com/evanw/esbuild/pkg/api
 * - github.com/hashicorp/golang-lru/v2
 * - golang.org/x/sync/singleflight
 */

package css

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/evanw/esbuild/pkg/api"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ====================  错误定义 ====================

var (
	// ErrCacheInitFailed 缓存初始化失败
	ErrCacheInitFailed = errors.New("CSS_CACHE_INIT_FAILED")
)

// 默认缓存容量
// 站点样式片段数量有限，淘汰只在极端情况下发生，且重编译是幂等的
const defaultCacheSize = 256

// ====================  编译器 ====================

// Compiler 样式表编译器
// 线程安全，可被提取阶段和宏展开阶段并发使用
type Compiler struct {
	cache  *lru.Cache[string, string] // 编译结果缓存，key 为 路径|minify
	sf     singleflight.Group         // 合并并发编译
	hits   uint64                     // 缓存命中计数
	misses uint64                     // 缓存未命中计数
}

// NewCompiler 创建编译器实例
func NewCompiler() (*Compiler, error) {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheInitFailed, err)
	}
	return &Compiler{cache: cache}, nil
}

// CompileStylesheet 编译单个样式表文件
//
// 参数：
//   - path: 样式表文件路径
//   - minify: 是否压缩
//
// 返回：
//   - string: 编译后的 CSS 文本
//   - error: 读取或编译错误
func (c *Compiler) CompileStylesheet(path string, minify bool) (string, error) {
	key := cacheKey(path, minify)

	if text, ok := c.cache.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return text, nil
	}

	atomic.AddUint64(&c.misses, 1)

	// singleflight：并发请求同一片段时只编译一次
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		text, err := compile(path, minify)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// Stats 返回缓存命中统计
func (c *Compiler) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// ====================  内部编译 ====================

// compile 读取并编译样式表
func compile(path string, minify bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read stylesheet %s: %w", path, err)
	}

	opts := api.TransformOptions{
		Loader: api.LoaderCSS,
	}

	if minify {
		opts.MinifyWhitespace = true
		opts.MinifySyntax = true
	}

	result := api.Transform(string(data), opts)

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("stylesheet compile failed for %s: %s", path, result.Errors[0].Text)
	}

	return string(result.Code), nil
}

// cacheKey 组合缓存键
func cacheKey(path string, minify bool) string {
	if minify {
		return path + "|min"
	}
	return path + "|raw"
}
