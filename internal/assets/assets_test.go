package assets

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "lib.js")
	require.NoError(t, os.WriteFile(src, []byte("var lib = 1;"), 0644))

	dst := filepath.Join(t.TempDir(), "nested", "lib.js")
	written, err := CopyFile(src, dst)
	require.NoError(t, err)
	require.Equal(t, int64(12), written)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "var lib = 1;", string(data))
}

func TestCopyRequiredScripts(t *testing.T) {
	srcDir := t.TempDir()
	paths := []string{
		filepath.Join(srcDir, "analytics.js"),
		filepath.Join(srcDir, "klang.js"),
	}
	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("// vendored"), 0644))
	}

	dstDir := filepath.Join(t.TempDir(), "third_party")
	require.NoError(t, CopyRequiredScripts(paths, dstDir))

	for _, name := range []string{"analytics.js", "klang.js"} {
		_, err := os.Stat(filepath.Join(dstDir, name))
		require.NoError(t, err)
	}
}

func TestCopyRequiredScripts_Empty(t *testing.T) {
	require.NoError(t, CopyRequiredScripts(nil, t.TempDir()))
}

func TestMirrorDir(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.png"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "b.png"), []byte("b"), 0644))

	dstDir := filepath.Join(t.TempDir(), "mirror")
	require.NoError(t, MirrorDir(srcDir, dstDir))

	_, err := os.Stat(filepath.Join(dstDir, "a.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dstDir, "sub", "b.png"))
	require.NoError(t, err)
}

func TestMirrorDir_MissingSource(t *testing.T) {
	// 源目录不存在属于可选资源缺失，跳过而不是报错
	require.NoError(t, MirrorDir(filepath.Join(t.TempDir(), "nope"), t.TempDir()))
}

func TestEncodeShareImages(t *testing.T) {
	srcDir := t.TempDir()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "icehockey.png"), buf.Bytes(), 0644))

	dstDir := filepath.Join(t.TempDir(), "scenes")
	require.NoError(t, EncodeShareImages(srcDir, dstDir))

	// 原图照常拷贝，并排输出 .webp 变体
	_, err := os.Stat(filepath.Join(dstDir, "icehockey.png"))
	require.NoError(t, err)

	webpInfo, err := os.Stat(filepath.Join(dstDir, "icehockey.webp"))
	require.NoError(t, err)
	require.Greater(t, webpInfo.Size(), int64(0))
}

func TestManifest(t *testing.T) {
	root := t.TempDir()
	staticDir := filepath.Join(root, "static", "v1")
	require.NoError(t, os.MkdirAll(staticDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "entry0.js"), []byte("console.log(1);"), 0644))

	m := NewManifest()
	require.NoError(t, m.AddDir(root, staticDir))

	hash, ok := m["static/v1/entry0.js"]
	require.True(t, ok)
	require.Len(t, hash, 8)

	dst := filepath.Join(root, "manifest.json")
	require.NoError(t, m.Save(dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, hash, decoded["static/v1/entry0.js"])
}

func TestBrotliCompressDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('compress me');"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte("<html><body>hi</body></html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("binary"), 0644))

	require.NoError(t, BrotliCompressDir(dir))

	// 文本资源得到 .br 同级变体，原文件保留
	for _, name := range []string{"app.js", "page.html"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(dir, name+".br"))
		require.NoError(t, err)
	}

	// 非文本资源不压缩
	_, err := os.Stat(filepath.Join(dir, "photo.png.br"))
	require.True(t, os.IsNotExist(err))
}
