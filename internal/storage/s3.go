package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Uploader puts images into an S3 bucket.
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Uploader 使用默认凭证链；baseURL 为空时使用桶的公共地址
func NewS3Uploader(ctx context.Context, region, bucket, baseURL string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Uploader{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// ObjectKey builds images/{yyyy}/{mm}/{userID}/{uuid}{ext}.
// ext 由检测出的类型决定，不看客户端文件名
func ObjectKey(now time.Time, userID uint, contentType string) string {
	ext := extensionFor(contentType)
	return fmt.Sprintf("images/%d/%02d/%d/%s%s", now.Year(), now.Month(), userID, uuid.New().String(), ext)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

func (u *S3Uploader) UploadImage(ctx context.Context, body io.Reader, size int64, contentType, filename string, userID uint) (*UploadResult, error) {
	now := time.Now()
	key := ObjectKey(now, userID, contentType)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("max-age=31536000"),
		Metadata: map[string]string{
			"user-id":           fmt.Sprint(userID),
			"original-filename": url.QueryEscape(filepath.Base(filename)),
			"upload-timestamp":  now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		Key:  key,
		URL:  u.baseURL + "/" + key,
		Size: size,
	}, nil
}
