/**
 * internal/assets/assets.go
 * 静态资源处理模块
 *
 * 功能：
 * - 传统脚本原样拷贝（绕过打包管线）
 * - 目录镜像（图片、音频等静态资源）
 * - 场景分享图转 WebP
 * - 资源清单（SHA256 前 8 位哈希映射）
 *
 * 依赖：
 * - github.com/HugoSmits86/nativewebp (WebP 编码)
 */

package assets

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"scene-arcade/internal/utils"

	"github.com/HugoSmits86/nativewebp"
)

// ====================  常量定义 ====================

const (
	dirPerm  = 0755
	filePerm = 0644
)

// ====================  文件拷贝 ====================

// CopyFile 复制文件
// 返回写入字节数
func CopyFile(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() { _ = dstFile.Close() }()

	written, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	return written, nil
}

// CopyRequiredScripts 拷贝传统脚本集合
// 这些脚本不经过打包，按原文件名放到目标目录
func CopyRequiredScripts(paths []string, dstDir string) error {
	if len(paths) == 0 {
		return nil
	}

	var total int64
	for _, src := range paths {
		dst := filepath.Join(dstDir, filepath.Base(src))
		written, err := CopyFile(src, dst)
		if err != nil {
			return fmt.Errorf("failed to copy required script %s: %w", src, err)
		}
		total += written
	}

	utils.LogPrintf("[ASSETS] Copied %d required scripts (%s)", len(paths), utils.FormatBytes(total))
	return nil
}

// MirrorDir 镜像目录
// 源目录不存在时记录警告并跳过
func MirrorDir(srcDir, dstDir string) error {
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		utils.LogPrintf("[ASSETS] WARN: Source dir not found, skipping: %s", srcDir)
		return nil
	}

	var count int
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		if _, err := CopyFile(path, filepath.Join(dstDir, rel)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror %s: %w", srcDir, err)
	}

	utils.LogPrintf("[ASSETS] Mirrored %d files from %s", count, srcDir)
	return nil
}

// ====================  分享图处理 ====================

// EncodeShareImages 把场景分享图转为 WebP
// 原图照常拷贝，并排输出 .webp 变体；目录不存在时跳过
func EncodeShareImages(srcDir, dstDir string) error {
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		utils.LogPrintf("[ASSETS] WARN: Share image dir not found, skipping: %s", srcDir)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(srcDir, "*.png"))
	if err != nil {
		return fmt.Errorf("failed to glob share images: %w", err)
	}

	for _, src := range files {
		name := filepath.Base(src)

		if _, err := CopyFile(src, filepath.Join(dstDir, name)); err != nil {
			return err
		}

		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src, err)
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", src, err)
		}

		var webpBuf bytes.Buffer
		if err := nativewebp.Encode(&webpBuf, img, nil); err != nil {
			return fmt.Errorf("failed to encode webp for %s: %w", src, err)
		}

		webpName := strings.TrimSuffix(name, ".png") + ".webp"
		if err := os.MkdirAll(dstDir, dirPerm); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dstDir, webpName), webpBuf.Bytes(), filePerm); err != nil {
			return fmt.Errorf("failed to write %s: %w", webpName, err)
		}
	}

	utils.LogPrintf("[ASSETS] Encoded %d share images to WebP", len(files))
	return nil
}

// ====================  资源清单 ====================

// Manifest 资源清单：相对路径 -> 内容哈希
type Manifest map[string]string

// NewManifest 创建空清单
func NewManifest() Manifest {
	return make(Manifest)
}

// hashFile 计算文件的 SHA256 哈希前 8 位
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:8], nil
}

// AddDir 把目录下全部文件登记到清单
//
// 参数：
//   - root: 相对路径的基准目录
//   - dir: 要登记的目录
func (m Manifest) AddDir(root, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		m[filepath.ToSlash(rel)] = hash
		return nil
	})
}

// Save 保存清单到 JSON 文件
func (m Manifest) Save(dst string) error {
	if len(m) == 0 {
		utils.LogPrintf("[ASSETS] No assets to manifest")
		return nil
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(dst, data, filePerm); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	utils.LogPrintf("[ASSETS] Saved asset manifest with %d entries", len(m))
	return nil
}
