/**
 * internal/deploy/r2.go
 * Cloudflare R2 部署模块
 *
 * 功能：
 * - 把带版本标签的静态产物树上传到 R2
 * - 按扩展名设置 Content-Type，.br 变体附带 Content-Encoding
 * - 未配置凭据时静默禁用
 */

package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scene-arcade/internal/config"
	"scene-arcade/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// 上传并发上限
const maxUploads = 8

// contentTypes 扩展名到 Content-Type 的映射
var contentTypes = map[string]string{
	".js":    "application/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".png":   "image/png",
	".webp":  "image/webp",
	".svg":   "image/svg+xml",
	".woff2": "font/woff2",
}

// R2Uploader R2 上传器
type R2Uploader struct {
	client *s3.Client
	bucket string
}

// NewR2Uploader 创建上传器实例
// 凭据不完整时返回 (nil, nil)，部署被禁用
func NewR2Uploader(cfg *config.Config) (*R2Uploader, error) {
	if !cfg.IsDeployConfigured() {
		utils.LogPrintf("[DEPLOY] WARN: R2 not configured, upload disabled")
		return nil, nil
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: cfg.R2Endpoint}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.R2AccessKey,
			cfg.R2SecretKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	utils.LogPrintf("[DEPLOY] R2 uploader initialized: bucket=%s", cfg.R2Bucket)

	return &R2Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.R2Bucket,
	}, nil
}

// IsConfigured 检查上传器是否可用
func (u *R2Uploader) IsConfigured() bool {
	return u != nil && u.client != nil
}

// UploadDir 上传目录树
//
// 参数：
//   - ctx: 上下文
//   - localDir: 本地目录（带版本标签的静态根）
//   - keyPrefix: 对象键前缀（如 static/v202608311204）
func (u *R2Uploader) UploadDir(ctx context.Context, localDir, keyPrefix string) error {
	if !u.IsConfigured() {
		return fmt.Errorf("R2 uploader not initialized")
	}

	var files []string
	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxUploads)

	for _, path := range files {
		g.Go(func() error {
			return u.uploadFile(ctx, path, localDir, keyPrefix)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	utils.LogPrintf("[DEPLOY] Uploaded %d files to %s/%s", len(files), u.bucket, keyPrefix)
	return nil
}

// uploadFile 上传单个文件
func (u *R2Uploader) uploadFile(ctx context.Context, path, localDir, keyPrefix string) error {
	rel, err := filepath.Rel(localDir, path)
	if err != nil {
		return err
	}
	key := keyPrefix + "/" + filepath.ToSlash(rel)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}

	// .br 变体：按原扩展名定类型，附带编码头
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".br" {
		input.ContentEncoding = aws.String("br")
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".br")))
	}
	if ct, ok := contentTypes[ext]; ok {
		input.ContentType = aws.String(ct)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return nil
}
