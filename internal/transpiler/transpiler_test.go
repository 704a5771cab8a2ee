package transpiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scene-arcade/internal/bundler"
	"scene-arcade/internal/css"
	"scene-arcade/internal/entries"
	"scene-arcade/internal/htmldoc"
	"scene-arcade/internal/resolver"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/require"
)

func newTranspiler(t *testing.T) *Transpiler {
	t.Helper()

	stylesDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(stylesDir, "home.css"),
		[]byte("body {\n  color: red;\n}\n"), 0644))

	compiler, err := css.NewCompiler()
	require.NoError(t, err)

	return &Transpiler{
		CSS:       compiler,
		StylesDir: stylesDir,
		OutDir:    t.TempDir(),
	}
}

func TestExpandMacros(t *testing.T) {
	tp := newTranspiler(t)

	out, err := tp.expandMacros("const styles = _style`home`; inject(styles);")
	require.NoError(t, err)

	// 宏被替换为编译压缩后的字符串字面量
	require.NotContains(t, out, "_style`")
	require.Contains(t, out, `"`)
	require.Contains(t, out, "body{color:red}")
	require.Contains(t, out, "inject(styles);")
}

func TestExpandMacros_NoMacro(t *testing.T) {
	tp := newTranspiler(t)

	code := "console.log('no macros here');"
	out, err := tp.expandMacros(code)
	require.NoError(t, err)
	require.Equal(t, code, out)
}

func TestExpandMacros_MissingStylesheet(t *testing.T) {
	tp := newTranspiler(t)

	_, err := tp.expandMacros("const styles = _style`nonexistent`;")
	require.Error(t, err)
}

func TestModernPass(t *testing.T) {
	tp := newTranspiler(t)

	artifacts := map[string]*bundler.Artifact{
		"entry0.js": {
			Name:    "entry0.js",
			IsEntry: true,
			EntryID: "entry0",
			Code:    []byte("const answer = 40 + 2;\nconsole.log(answer);\n"),
		},
		"_shared/chunk-abc.js": {
			Name: "_shared/chunk-abc.js",
			Code: []byte("export const shared = 1;\n"),
		},
	}

	require.NoError(t, tp.ModernPass(artifacts))

	// 入口和共享块都写出，共享块保持子目录
	entryOut, err := os.ReadFile(filepath.Join(tp.OutDir, "entry0.js"))
	require.NoError(t, err)
	require.Contains(t, string(entryOut), "42")

	_, err = os.Stat(filepath.Join(tp.OutDir, "_shared", "chunk-abc.js"))
	require.NoError(t, err)

	require.Greater(t, tp.EmittedBytes(), int64(0))
}

func TestLegacyPass(t *testing.T) {
	doc, err := htmldoc.Parse(strings.NewReader(
		`<html><body><script type="module">const v = () => 'legacy'; console.log(v());</script></body></html>`))
	require.NoError(t, err)

	compiler, err := css.NewCompiler()
	require.NoError(t, err)

	e := &entries.Extractor{
		Registry: entries.NewRegistry(),
		Required: make(entries.RequiredScripts),
		CSS:      compiler,
	}
	_, err = e.Extract(filepath.Join(t.TempDir(), "page.html"), doc)
	require.NoError(t, err)

	tp := newTranspiler(t)
	res := resolver.New(e.Registry, resolver.TypeScriptLoader{})

	require.NoError(t, tp.LegacyPass(e.Registry, res, "es5"))

	// 旧版产物带保留前缀，箭头函数被降级
	data, err := os.ReadFile(filepath.Join(tp.OutDir, LegacyPrefix+"entry0.js"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "=>")
	require.Contains(t, string(data), "legacy")
}

func TestLegacyPass_BadTarget(t *testing.T) {
	tp := newTranspiler(t)
	registry := entries.NewRegistry()
	res := resolver.New(registry, resolver.TypeScriptLoader{})

	err := tp.LegacyPass(registry, res, "es1999")
	require.ErrorIs(t, err, ErrBadTarget)
}

func TestParseTarget(t *testing.T) {
	cases := map[string]api.Target{
		"es5":    api.ES5,
		"es6":    api.ES2015,
		"ES2015": api.ES2015,
		"es2017": api.ES2017,
		" es2020 ": api.ES2020,
	}
	for expr, want := range cases {
		got, err := ParseTarget(expr)
		require.NoError(t, err, expr)
		require.Equal(t, want, got, expr)
	}

	_, err := ParseTarget("es3000")
	require.ErrorIs(t, err, ErrBadTarget)
}
