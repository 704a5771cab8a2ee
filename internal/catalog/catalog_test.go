package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalogDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestLoadAll_FallbackChain(t *testing.T) {
	dir := writeCatalogDir(t, map[string]string{
		"en.json": `{"scene_icehockey": "Ice Hockey", "site_name": "Arcade"}`,
		"fr.json": `{"scene_icehockey": "Hockey sur glace"}`,
	})

	catalogs, err := LoadAll(dir, "en", nil)
	require.NoError(t, err)
	require.Len(t, catalogs, 2)

	fr := catalogs["fr"]
	require.Equal(t, "Hockey sur glace", fr.Get("scene_icehockey"))

	// fr 缺失 site_name，回退默认语言
	require.Equal(t, "Arcade", fr.Get("site_name"))
	require.False(t, fr.Has("site_name"))

	// 默认语言自身也缺失时返回空串
	require.Equal(t, "", fr.Get("nonexistent"))
}

func TestLoadAll_RecordsMissingMessages(t *testing.T) {
	dir := writeCatalogDir(t, map[string]string{
		"en.json": `{"a": "A", "b": "B"}`,
		"fr.json": `{"a": "A-fr"}`,
		"de.json": `{}`,
	})

	ledger := NewLedger()
	catalogs, err := LoadAll(dir, "en", ledger.Record)
	require.NoError(t, err)
	require.Len(t, catalogs, 3)

	require.Equal(t, []string{"de", "fr"}, ledger.Langs("b"))
	require.Equal(t, []string{"de"}, ledger.Langs("a"))
	require.Empty(t, ledger.Langs("unknown"))
}

func TestLoadAll_DefaultLangMissing(t *testing.T) {
	dir := writeCatalogDir(t, map[string]string{
		"fr.json": `{"a": "A"}`,
	})

	_, err := LoadAll(dir, "en", nil)
	require.ErrorIs(t, err, ErrDefaultLangMissing)
}

func TestLoadAll_EmptyDir(t *testing.T) {
	_, err := LoadAll(t.TempDir(), "en", nil)
	require.ErrorIs(t, err, ErrNoCatalogs)
}

func TestLoadAll_InvalidJSON(t *testing.T) {
	dir := writeCatalogDir(t, map[string]string{
		"en.json": `{not valid`,
	})

	_, err := LoadAll(dir, "en", nil)
	require.Error(t, err)
}

func TestLedger_Record(t *testing.T) {
	ledger := NewLedger()
	ledger.Record("fr", "msg")
	ledger.Record("fr", "msg") // 重复记录不产生重复条目
	ledger.Record("de", "msg")

	require.Equal(t, []string{"de", "fr"}, ledger.Langs("msg"))
	require.Len(t, ledger, 1)
}
