// Package storage 保存上传的结业材料文件，返回可直接对外引用的 URL。
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"nextstep/backend/config"
)

// Store 文件存储接口；返回的 URL 对调用方是不透明的
type Store interface {
	Save(ctx context.Context, category, filename string, r io.Reader) (string, error)
}

// LocalStore 本地磁盘存储，URL 形如 {public_prefix}/{category}/{category}-{uuid}{ext}
type LocalStore struct {
	root   string
	prefix string
}

// NewLocalStore 创建本地存储
func NewLocalStore(cfg config.StorageConfig) *LocalStore {
	prefix := strings.TrimRight(cfg.PublicPrefix, "/")
	if prefix == "" {
		prefix = "/uploads"
	}
	return &LocalStore{root: cfg.UploadDir, prefix: prefix}
}

// Root 存储根目录（用于静态文件路由）
func (s *LocalStore) Root() string { return s.root }

// Prefix 对外 URL 前缀
func (s *LocalStore) Prefix() string { return s.prefix }

// Save 实现 Store
func (s *LocalStore) Save(ctx context.Context, category, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	category = sanitize(category)
	if category == "" {
		category = "others"
	}

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建上传目录失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	name := fmt.Sprintf("%s-%s%s", category, uuid.NewString(), ext)

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("写入文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("关闭文件失败: %w", err)
	}

	return path.Join(s.prefix, category, name), nil
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return -1
	}, s)
}
