package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var usernameCleaner = regexp.MustCompile(`[^a-z0-9_]`)

// DefaultAvatar 根据用户名生成默认头像地址
func DefaultAvatar(username string) string {
	return "https://api.dicebear.com/7.x/initials/svg?seed=" + url.QueryEscape(username)
}

// UsernameFromEmail 从邮箱前缀提取候选用户名（Google 登录时使用）
func UsernameFromEmail(email string) string {
	local := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	name := usernameCleaner.ReplaceAllString(local, "")
	if len(name) < 3 {
		name = name + "user"
	}
	if len(name) > 24 {
		name = name[:24]
	}
	return name
}
