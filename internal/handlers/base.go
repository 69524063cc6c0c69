package handlers

import (
	"math"
	"net/http"

	"quill/internal/apperr"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/utils"

	"github.com/gin-gonic/gin"
)

// respond 写出统一响应 {success, msg, data}
func respond(c *gin.Context, status int, msg string, data interface{}) {
	body := gin.H{"success": true, "msg": msg}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func ok(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusOK, msg, data)
}

func created(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusCreated, msg, data)
}

// Page is the payload of every paginated list.
type Page struct {
	Items      interface{} `json:"items"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
}

func newPage(items interface{}, page, limit int, total int64) Page {
	return Page{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
}

func pagination(c *gin.Context) (page, limit, offset int) {
	page, limit = utils.Pagination(c.Query("page"), c.Query("limit"))
	return page, limit, (page - 1) * limit
}

// bind 解析 JSON 请求体，失败时记录错误并返回 false
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(err)
		return false
	}
	return true
}

// paramID parses a numeric path parameter; malformed ids are reported as not found.
func paramID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, valid := utils.ParseID(raw)
	if !valid {
		c.Error(apperr.NoItem(raw))
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

// viewerID 未登录时为 0
func viewerID(c *gin.Context) uint {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	return 0
}
