/**
 * internal/catalog/catalog.go
 * 语言目录加载模块
 *
 * 功能：
 * - 加载 i18n 目录下所有语言的消息文件
 * - 提供按语言查询消息的函数（缺失时回退默认语言）
 * - 统计各语言缺失的消息 ID（仅用于报告，不影响构建结果）
 *
 * 目录格式：
 *   <dir>/en.json  {"scene_icehockey": "Ice Hockey", ...}
 *   <dir>/fr.json  {...}
 */

package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scene-arcade/internal/utils"
)

// ====================  错误定义 ====================

var (
	// ErrDefaultLangMissing 默认语言目录缺失（致命，后续所有文档生成都依赖默认语言基线）
	ErrDefaultLangMissing = errors.New("DEFAULT_LANG_MISSING")

	// ErrNoCatalogs 未找到任何语言文件
	ErrNoCatalogs = errors.New("NO_CATALOGS_FOUND")
)

// ====================  数据结构 ====================

// Catalog 单个语言的消息目录
// 构建开始时加载一次，之后只读
type Catalog struct {
	Lang     string            // 语言代码
	messages map[string]string // msgid -> 文本
	fallback *Catalog          // 默认语言基线（默认语言自身为 nil）
}

// Get 查询消息文本
// 当前语言缺失时回退默认语言，仍缺失时返回空字符串
func (c *Catalog) Get(msgid string) string {
	if text, ok := c.messages[msgid]; ok {
		return text
	}
	if c.fallback != nil {
		return c.fallback.Get(msgid)
	}
	return ""
}

// Has 检查当前语言是否自带该消息（不含回退）
func (c *Catalog) Has(msgid string) bool {
	_, ok := c.messages[msgid]
	return ok
}

// Len 返回消息数量
func (c *Catalog) Len() int {
	return len(c.messages)
}

// Ledger 缺失消息账本
// msgid -> 缺失该消息的语言集合
// 只用于构建结束时的报告，从不影响构建成败
type Ledger map[string]map[string]bool

// NewLedger 创建空账本
func NewLedger() Ledger {
	return make(Ledger)
}

// Record 记录某语言缺失某消息
func (l Ledger) Record(lang, msgid string) {
	langs, ok := l[msgid]
	if !ok {
		langs = make(map[string]bool)
		l[msgid] = langs
	}
	langs[lang] = true
}

// Langs 返回缺失某消息的语言列表（排序后）
func (l Ledger) Langs(msgid string) []string {
	var langs []string
	for lang := range l[msgid] {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// ====================  加载 ====================

// MissingFunc 缺失消息回调
// 每发现一个 (语言, msgid) 缺失即调用一次
type MissingFunc func(lang, msgid string)

// LoadAll 加载目录下所有语言文件
//
// 参数：
//   - dir: i18n 目录
//   - defaultLang: 默认语言代码
//   - onMissing: 缺失回调（可为 nil）
//
// 返回：
//   - map[string]*Catalog: 语言代码 -> 目录
//   - error: 默认语言缺失或文件解析失败
func LoadAll(dir, defaultLang string, onMissing MissingFunc) (map[string]*Catalog, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob catalog files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCatalogs, dir)
	}

	catalogs := make(map[string]*Catalog)
	for _, file := range files {
		lang := strings.TrimSuffix(filepath.Base(file), ".json")

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		if len(messages) == 0 {
			utils.LogPrintf("[CATALOG] WARN: Empty language file: %s", file)
		}

		catalogs[lang] = &Catalog{Lang: lang, messages: messages}
	}

	// 默认语言必须存在，否则构建无法继续
	def, ok := catalogs[defaultLang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefaultLangMissing, defaultLang)
	}

	// 以默认语言为基线，登记其他语言缺失的消息并设置回退
	for lang, cat := range catalogs {
		if lang == defaultLang {
			continue
		}

		cat.fallback = def

		for msgid := range def.messages {
			if !cat.Has(msgid) && onMissing != nil {
				onMissing(lang, msgid)
			}
		}
	}

	utils.LogPrintf("[CATALOG] Loaded %d languages (default: %s, %d messages)",
		len(catalogs), defaultLang, def.Len())

	return catalogs, nil
}

// ====================  报告 ====================

// Report 输出缺失消息汇总
// 每个 msgid 打印缺失语言数占语言总数的比例
// 仅在构建成功结束时调用，不影响退出码
func (l Ledger) Report(totalLangs int) {
	if len(l) == 0 {
		utils.LogPrintf("[CATALOG] All messages translated in all languages")
		return
	}

	var msgids []string
	for msgid := range l {
		msgids = append(msgids, msgid)
	}
	sort.Strings(msgids)

	utils.LogPrintf("[CATALOG] Missing translations for %d message ids:", len(msgids))
	for _, msgid := range msgids {
		langs := l.Langs(msgid)
		ratio := float64(len(langs)) / float64(totalLangs) * 100
		utils.LogPrintf("[CATALOG]   %s: missing in %d/%d languages (%.0f%%): %s",
			msgid, len(langs), totalLangs, ratio, strings.Join(langs, ", "))
	}
}
