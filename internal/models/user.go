package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:50;not null" json:"name"`
	Username string `gorm:"size:30;uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"` // bcrypt hash
	Avatar   string `json:"avatar"`
	Bio      string `gorm:"size:300" json:"bio"`
	Location string `gorm:"size:100" json:"location"`
	Website  string `json:"website"`
	Twitter  string `json:"twitter"`
	GitHub   string `gorm:"column:github" json:"github"`
	LinkedIn string `gorm:"column:linkedin" json:"linkedin"`
	Role     string `gorm:"size:20;default:'user';not null" json:"role"`

	IsVerified         bool       `gorm:"default:false" json:"is_verified"`
	VerifyToken        string     `gorm:"size:64;index" json:"-"`
	VerifyTokenExpires *time.Time `json:"-"`
	ResetToken         string     `gorm:"size:64;index" json:"-"`
	ResetTokenExpires  *time.Time `json:"-"`
	GoogleID           string     `gorm:"index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 非数据库字段，查询时填充
	FollowersCount int64 `gorm:"-" json:"followers_count"`
	FollowingCount int64 `gorm:"-" json:"following_count"`
	PostsCount     int64 `gorm:"-" json:"posts_count"`
	IsFollowing    bool  `gorm:"-" json:"is_following"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserSummary is the author block embedded in posts, comments and notifications.
type UserSummary struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Username: u.Username, Avatar: u.Avatar}
}
