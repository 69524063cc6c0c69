package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

	key := ObjectKey(now, 7, "image/png")
	assert.Regexp(t, `^images/2025/03/7/[0-9a-f-]{36}\.png$`, key)

	assert.Regexp(t, `\.webp$`, ObjectKey(now, 7, "image/webp"))
	assert.Regexp(t, `\.jpg$`, ObjectKey(now, 7, "image/jpeg"))

	// svg 不在白名单里，不会得到 .svg 后缀
	assert.NotContains(t, ObjectKey(now, 7, "image/svg+xml"), ".svg")

	assert.NotEqual(t, ObjectKey(now, 1, "image/gif"), ObjectKey(now, 1, "image/gif"))
}
