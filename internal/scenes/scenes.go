/**
 * internal/scenes/scenes.go
 * 场景注册表
 *
 * 静态场景清单：每个场景对应一个源 HTML 文档和一组可选的展示元数据。
 * 构建期间只读。
 */

package scenes

// Descriptor 场景描述
type Descriptor struct {
	ID            string // 场景标识（同时是目录名和输出页面名）
	VideoLayout   bool   // 是否使用视频布局（影响分享元数据）
	MsgidOverride string // 自定义标题消息 ID（为空时使用 scene_<id>）
}

// Msgid 返回场景标题的消息 ID
func (d Descriptor) Msgid() string {
	if d.MsgidOverride != "" {
		return d.MsgidOverride
	}
	return "scene_" + d.ID
}

// registry 场景注册表
// 顺序即构建顺序
var registry = []Descriptor{
	{ID: "icehockey"},
	{ID: "snowball"},
	{ID: "penguindash"},
	{ID: "codeboogie", MsgidOverride: "scene_codeboogie_teaser"},
	{ID: "museum", VideoLayout: true},
	{ID: "workshop", VideoLayout: true},
}

// All 返回全部场景（副本，调用方不可变更注册表）
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// Lookup 按 ID 查找场景
func Lookup(id string) (Descriptor, bool) {
	for _, d := range registry {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}
