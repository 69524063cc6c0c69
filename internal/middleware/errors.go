package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"quill/internal/apperr"
	"quill/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrorHandler 统一把 c.Errors 中最后一个错误渲染成 {success:false,msg}
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, msg := Translate(err)
		if status >= http.StatusInternalServerError {
			requestID, _ := c.Get("request_id")
			logger.Log.Error("Request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Any("request_id", requestID),
				zap.Error(err))
		}
		c.JSON(status, gin.H{"success": false, "msg": msg})
	}
}

// Translate maps an error to its HTTP status and client message.
func Translate(err error) (int, string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Msg
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return http.StatusBadRequest, strings.Join(msgs, ", ")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) {
		return http.StatusBadRequest, "Invalid request body"
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusBadRequest, "Duplicate value entered"
	}

	return http.StatusInternalServerError, apperr.Internal().Msg
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Please provide %s", field)
	case "email":
		return "Please provide a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "alphanum":
		return fmt.Sprintf("%s may only contain letters and numbers", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "nocontrol":
		return fmt.Sprintf("%s must not contain control characters", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
