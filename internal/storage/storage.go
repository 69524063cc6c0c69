package storage

import (
	"context"
	"io"
)

// UploadResult describes a stored object.
type UploadResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// ImageUploader stores user images. 测试中可替换为内存实现。
type ImageUploader interface {
	UploadImage(ctx context.Context, body io.Reader, size int64, contentType, filename string, userID uint) (*UploadResult, error)
}

var _ ImageUploader = (*S3Uploader)(nil)
