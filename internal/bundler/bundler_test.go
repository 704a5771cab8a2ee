package bundler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scene-arcade/internal/css"
	"scene-arcade/internal/entries"
	"scene-arcade/internal/htmldoc"
	"scene-arcade/internal/resolver"

	"github.com/stretchr/testify/require"
)

// buildFixture 准备两个都导入同一共享模块的入口文档
func buildFixture(t *testing.T) *entries.Registry {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"shared.js": "export const greet = () => 'hello';",
		"a.js":      "import { greet } from './shared.js'; console.log('a', greet());",
		"b.js":      "import { greet } from './shared.js'; console.log('b', greet());",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	compiler, err := css.NewCompiler()
	require.NoError(t, err)

	e := &entries.Extractor{
		Registry: entries.NewRegistry(),
		Required: make(entries.RequiredScripts),
		CSS:      compiler,
	}

	for _, page := range []string{"a", "b"} {
		doc, err := htmldoc.Parse(strings.NewReader(
			`<html><body><script type="module" src="` + page + `.js"></script></body></html>`))
		require.NoError(t, err)

		_, err = e.Extract(filepath.Join(dir, page+".html"), doc)
		require.NoError(t, err)
	}

	return e.Registry
}

func TestBundle_SharedChunkEmittedOnce(t *testing.T) {
	registry := buildFixture(t)
	res := resolver.New(registry, resolver.TypeScriptLoader{})

	artifacts, err := Bundle(registry, res)
	require.NoError(t, err)

	// 两个入口产物 + 一个共享块
	require.Len(t, artifacts, 3)

	var sharedChunks, entryArtifacts int
	for name, art := range artifacts {
		if strings.HasPrefix(name, "_shared/") {
			sharedChunks++
			require.False(t, art.IsEntry)
			require.Empty(t, art.EntryID)
			require.Contains(t, string(art.Code), "hello")
		} else {
			entryArtifacts++
			require.True(t, art.IsEntry)
		}
	}
	require.Equal(t, 1, sharedChunks)
	require.Equal(t, 2, entryArtifacts)

	// 共享模块的实现体不在入口产物里重复
	for name, art := range artifacts {
		if !strings.HasPrefix(name, "_shared/") {
			require.NotContains(t, string(art.Code), "hello")
		}
	}

	// 入口产物与注册表入口一一对应
	ids := make(map[string]bool)
	for _, art := range artifacts {
		if art.IsEntry {
			_, ok := registry.Get(art.EntryID)
			require.True(t, ok)
			ids[art.EntryID] = true
		}
	}
	require.Len(t, ids, 2)
}

func TestBundle_EmptyRegistry(t *testing.T) {
	registry := entries.NewRegistry()
	res := resolver.New(registry, resolver.TypeScriptLoader{})

	artifacts, err := Bundle(registry, res)
	require.NoError(t, err)
	require.Empty(t, artifacts)
}

func TestRewriteScriptNodes(t *testing.T) {
	registry := buildFixture(t)
	res := resolver.New(registry, resolver.TypeScriptLoader{})

	artifacts, err := Bundle(registry, res)
	require.NoError(t, err)

	require.NoError(t, RewriteScriptNodes(artifacts, registry, "static/v202601011200/"))

	for _, ep := range registry.All() {
		src, ok := htmldoc.Attr(ep.Node, "src")
		require.True(t, ok)
		require.Equal(t, "static/v202601011200/src/"+ep.ID+".js", src)
	}
}

func TestRewriteScriptNodes_UnknownEntry(t *testing.T) {
	artifacts := map[string]*Artifact{
		"phantom.js": {Name: "phantom.js", IsEntry: true, EntryID: "entry99"},
	}

	err := RewriteScriptNodes(artifacts, entries.NewRegistry(), "static/")
	require.Error(t, err)
}
