package entries

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scene-arcade/internal/css"
	"scene-arcade/internal/htmldoc"

	"github.com/stretchr/testify/require"
)

const extractDoc = `<!DOCTYPE html>
<html>
<head>
<link rel="stylesheet" href="main.css">
<link rel="stylesheet" href="https://fonts.example.com/remote.css">
<link rel="icon" href="favicon.ico">
</head>
<body>
<script src="lib/analytics.js"></script>
<script src="lib/analytics.js"></script>
<script src="https://cdn.example.com/vendor.js"></script>
<script type="module" src="app.js"></script>
<script type="module">console.log('inline');</script>
</body>
</html>`

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	compiler, err := css.NewCompiler()
	require.NoError(t, err)
	return &Extractor{
		Registry: NewRegistry(),
		Required: make(RequiredScripts),
		CSS:      compiler,
		Minify:   true,
	}
}

func TestExtract(t *testing.T) {
	docDir := t.TempDir()
	docPath := filepath.Join(docDir, "icehockey.html")
	require.NoError(t, os.WriteFile(filepath.Join(docDir, "main.css"), []byte("body { color: red; }"), 0644))

	doc, err := htmldoc.Parse(strings.NewReader(extractDoc))
	require.NoError(t, err)

	e := newExtractor(t)
	report, err := e.Extract(docPath, doc)
	require.NoError(t, err)

	// 本地样式表内联，远程和非样式 link 不动
	require.Len(t, report.Stylesheets, 1)
	rendered, err := htmldoc.Render(doc)
	require.NoError(t, err)
	html := string(rendered)
	require.Contains(t, html, "<style>")
	require.NotContains(t, html, `href="main.css"`)
	require.Contains(t, html, "remote.css")
	require.Contains(t, html, "favicon.ico")

	// 传统脚本跨出现去重，远程脚本跳过
	require.Equal(t, []string{filepath.Join(docDir, "lib/analytics.js")}, e.Required.Paths())

	// 每个模块脚本一个入口点，按出现顺序编号
	require.Equal(t, 2, e.Registry.Len())

	ep0, ok := e.Registry.Get("entry0")
	require.True(t, ok)
	require.Equal(t, "import './app.js';", ep0.Source)
	require.Equal(t, docDir, ep0.Dir)

	ep1, ok := e.Registry.Get("entry1")
	require.True(t, ok)
	require.Equal(t, "console.log('inline');", ep1.Source)

	// 原始 script 节点被剥离：src 属性和文本都已移除
	_, hasSrc := htmldoc.Attr(ep0.Node, "src")
	require.False(t, hasSrc)
	require.Equal(t, "", htmldoc.Text(ep1.Node))
}

func TestExtract_EntryIDsSpanDocuments(t *testing.T) {
	e := newExtractor(t)

	for _, name := range []string{"a.html", "b.html"} {
		doc, err := htmldoc.Parse(strings.NewReader(
			`<html><body><script type="module">var x = 1;</script></body></html>`))
		require.NoError(t, err)

		_, err = e.Extract(filepath.Join(t.TempDir(), name), doc)
		require.NoError(t, err)
	}

	// 入口编号跨文档连续
	require.Equal(t, 2, e.Registry.Len())
	_, ok := e.Registry.Get("entry0")
	require.True(t, ok)
	_, ok = e.Registry.Get("entry1")
	require.True(t, ok)
}

func TestModuleSource_PrefixesBareSrc(t *testing.T) {
	require.Equal(t, "import './app.js';", moduleSource(nil, "app.js", true))
	require.Equal(t, "import './js/app.js';", moduleSource(nil, "js/app.js", true))
	require.Equal(t, "import '../shared/app.js';", moduleSource(nil, "../shared/app.js", true))
	require.Equal(t, "import './app.js';", moduleSource(nil, "./app.js", true))
}

func TestScan_DoesNotMutate(t *testing.T) {
	docDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docDir, "main.css"), []byte("body{}"), 0644))

	doc, err := htmldoc.Parse(strings.NewReader(extractDoc))
	require.NoError(t, err)

	before, err := htmldoc.Render(doc)
	require.NoError(t, err)

	e := newExtractor(t)
	_, err = e.Scan(filepath.Join(docDir, "page.html"), doc)
	require.NoError(t, err)

	after, err := htmldoc.Render(doc)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
	require.Equal(t, 0, e.Registry.Len())
}
