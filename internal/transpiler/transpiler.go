/**
 * internal/transpiler/transpiler.go
 * 双目标传译模块
 *
 * 对打包产物做两趟独立处理：
 * - 现代趟：所有产物（入口 + 共享块）做面向原生模块环境的转换，
 *   同趟展开构建期宏（_style`name` 内联编译后的样式片段），再压缩
 * - 旧版趟：对每个原始入口点重新打包，异步语法降级到旧版运行时目标，
 *   产物以 nomodule- 前缀与现代产物并排输出
 *
 * 两趟读写互不相交，可并发执行。
 */

package transpiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"scene-arcade/internal/bundler"
	"scene-arcade/internal/css"
	"scene-arcade/internal/entries"
	"scene-arcade/internal/resolver"
	"scene-arcade/internal/utils"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"
)

// ====================  错误定义 ====================

var (
	// ErrBadTarget 旧版目标表达式无法识别
	ErrBadTarget = errors.New("INVALID_LEGACY_TARGET")
)

// ====================  常量定义 ====================

const (
	// LegacyPrefix 旧版产物的保留文件名前缀
	LegacyPrefix = "nomodule-"

	// 文件权限
	dirPerm  = 0755
	filePerm = 0644
)

// _style`name` 宏（预编译）
var styleMacroRe = regexp.MustCompile("_style`([\\w-]+)`")

// ====================  传译器 ====================

// Transpiler 双目标传译器
type Transpiler struct {
	CSS       *css.Compiler // 样式编译器（宏展开用）
	StylesDir string        // 样式片段目录（_style 宏按名查找）
	OutDir    string        // 输出目录（static/<tag>/src）

	emitted int64 // 累计输出字节数
}

// EmittedBytes 返回累计输出字节数
func (t *Transpiler) EmittedBytes() int64 {
	return atomic.LoadInt64(&t.emitted)
}

// ====================  现代趟 ====================

// ModernPass 现代趟
// 每个产物：宏展开 -> 转换到现代基线 -> 压缩 -> 写出
// 产物之间相互独立，并发执行
func (t *Transpiler) ModernPass(artifacts map[string]*bundler.Artifact) error {
	utils.LogPrintf("[TRANSPILE] Modern pass: %d artifacts", len(artifacts))

	var g errgroup.Group
	for _, art := range artifacts {
		g.Go(func() error {
			code, err := t.expandMacros(string(art.Code))
			if err != nil {
				return fmt.Errorf("macro expansion failed for %s: %w", art.Name, err)
			}

			result := api.Transform(code, api.TransformOptions{
				Loader:            api.LoaderJS,
				Target:            api.ES2017,
				MinifyWhitespace:  true,
				MinifyIdentifiers: true,
				MinifySyntax:      true,
			})
			if len(result.Errors) > 0 {
				return fmt.Errorf("modern transform failed for %s: %s", art.Name, result.Errors[0].Text)
			}

			return t.write(art.Name, result.Code)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	utils.LogPrintf("[TRANSPILE] Modern pass completed")
	return nil
}

// ====================  旧版趟 ====================

// LegacyPass 旧版趟
// 从每个原始入口点独立重新打包（不是复用现代产物），
// 降级到配置的旧版目标后与现代产物并排写出
func (t *Transpiler) LegacyPass(registry *entries.Registry, res *resolver.Resolver, targetExpr string) error {
	target, err := ParseTarget(targetExpr)
	if err != nil {
		return err
	}

	utils.LogPrintf("[TRANSPILE] Legacy pass: %d entries, target=%s", registry.Len(), targetExpr)

	var g errgroup.Group
	for _, ep := range registry.All() {
		g.Go(func() error {
			result := api.Build(api.BuildOptions{
				EntryPointsAdvanced: []api.EntryPoint{{
					InputPath:  ep.ID,
					OutputPath: ep.ID,
				}},
				Bundle:   true,
				Format:   api.FormatIIFE,
				Write:    false,
				LogLevel: api.LogLevelWarning,
				Plugins:  []api.Plugin{res.Plugin()},
			})
			if len(result.Errors) > 0 {
				return fmt.Errorf("legacy bundle failed for %s: %s", ep.ID, result.Errors[0].Text)
			}
			if len(result.OutputFiles) == 0 {
				return fmt.Errorf("legacy bundle produced no output for %s", ep.ID)
			}

			code, err := t.expandMacros(string(result.OutputFiles[0].Contents))
			if err != nil {
				return fmt.Errorf("macro expansion failed for %s: %w", ep.ID, err)
			}

			// 语法降级 + 压缩（异步构造由 esbuild 降级到目标基线）
			lowered := api.Transform(code, api.TransformOptions{
				Loader:            api.LoaderJS,
				Target:            target,
				MinifyWhitespace:  true,
				MinifyIdentifiers: true,
				MinifySyntax:      true,
			})
			if len(lowered.Errors) > 0 {
				return fmt.Errorf("legacy transform failed for %s: %s", ep.ID, lowered.Errors[0].Text)
			}

			return t.write(LegacyPrefix+ep.ID+".js", lowered.Code)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	utils.LogPrintf("[TRANSPILE] Legacy pass completed")
	return nil
}

// ====================  宏展开 ====================

// expandMacros 展开构建期宏
// _style`name` 替换为 styles/<name>.css 编译压缩后的字符串字面量
func (t *Transpiler) expandMacros(code string) (string, error) {
	var expandErr error

	out := styleMacroRe.ReplaceAllStringFunc(code, func(match string) string {
		name := styleMacroRe.FindStringSubmatch(match)[1]
		path := filepath.Join(t.StylesDir, name+".css")

		compiled, err := t.CSS.CompileStylesheet(path, true)
		if err != nil {
			if expandErr == nil {
				expandErr = err
			}
			return match
		}
		return strconv.Quote(compiled)
	})

	if expandErr != nil {
		return "", expandErr
	}
	return out, nil
}

// ====================  目标解析 ====================

// ParseTarget 解析浏览器支持目标表达式
func ParseTarget(expr string) (api.Target, error) {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "es5":
		return api.ES5, nil
	case "es6", "es2015":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	default:
		return api.DefaultTarget, fmt.Errorf("%w: %s", ErrBadTarget, expr)
	}
}

// ====================  输出 ====================

// write 写出单个产物并累计字节数
func (t *Transpiler) write(name string, code []byte) error {
	dst := filepath.Join(t.OutDir, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := os.WriteFile(dst, code, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	atomic.AddInt64(&t.emitted, int64(len(code)))
	return nil
}
