/**
 * internal/htmldoc/htmldoc.go
 * HTML 文档解析与改写辅助模块
 *
 * 功能：
 * - 文档解析 / 序列化（基于 golang.org/x/net/html）
 * - 节点克隆（序列化后重新解析，fanout 用）
 * - 属性读写、文本替换、按标签收集节点
 */

package htmldoc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// ====================  解析与序列化 ====================

// Parse 解析 HTML 文档
func Parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// ParseFile 解析 HTML 文件
func ParseFile(path string) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// Render 序列化文档为字节
func Render(doc *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	return buf.Bytes(), nil
}

// Clone 深拷贝文档
// x/net/html 的节点不提供拷贝接口，序列化后重新解析即可
func Clone(doc *html.Node) (*html.Node, error) {
	data, err := Render(doc)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// ====================  遍历与查找 ====================

// Walk 先序遍历文档的全部元素节点
func Walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// FindAll 收集指定标签的全部元素节点
func FindAll(doc *html.Node, tag string) []*html.Node {
	var out []*html.Node
	Walk(doc, func(n *html.Node) {
		if n.Data == tag {
			out = append(out, n)
		}
	})
	return out
}

// FindFirst 返回第一个指定标签的元素节点
func FindFirst(doc *html.Node, tag string) *html.Node {
	nodes := FindAll(doc, tag)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// ====================  属性操作 ====================

// Attr 读取属性值
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr 设置属性值（已存在则覆盖）
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr 删除属性
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// ====================  文本操作 ====================

// Text 返回节点的直接文本内容
func Text(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// SetText 用单个文本节点替换全部子节点
func SetText(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// ====================  URL 判定 ====================

// IsRemoteURL 判断资源引用是否为远程地址
// 远程地址不参与内联和打包
func IsRemoteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "//")
}
