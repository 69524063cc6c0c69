package handlers

import (
	"errors"
	"net/http"

	"quill/internal/apperr"
	"quill/internal/logger"
	"quill/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxImageSize = 5 * 1024 * 1024
	// multipart 边界和其他字段的余量
	maxUploadBody = maxImageSize + 512*1024
)

// UploadHandler 图片上传；uploader 为空表示未配置存储
type UploadHandler struct {
	uploader storage.ImageUploader
}

func NewUploadHandler(uploader storage.ImageUploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

// Image POST /uploads/image
func (h *UploadHandler) Image(c *gin.Context) {
	if h.uploader == nil {
		c.Error(apperr.Unavailable("Image storage is not configured"))
		return
	}

	// 解析 multipart 之前限制请求体大小
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBody)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Error(apperr.BadRequest("Image must be 5MB or smaller"))
			return
		}
		c.Error(apperr.BadRequest("Please choose an image to upload"))
		return
	}
	defer file.Close()

	if header.Size > maxImageSize {
		c.Error(apperr.BadRequest("Image must be 5MB or smaller"))
		return
	}
	contentType, err := storage.DetectImage(file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			c.Error(apperr.BadRequest("Only JPEG, PNG, GIF or WebP images are allowed"))
			return
		}
		c.Error(err)
		return
	}

	user := currentUser(c)
	result, err := h.uploader.UploadImage(c.Request.Context(), file, header.Size, contentType, header.Filename, user.ID)
	if err != nil {
		logger.Log.Error("图片上传失败", zap.Uint("user_id", user.ID), zap.Error(err))
		c.Error(err)
		return
	}
	created(c, "Image uploaded", result)
}
