package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Follow{},
		&Tag{},
		&Post{},
		&PostLike{},
		&Bookmark{},
		&Comment{},
		&Reply{},
		&CommentLike{},
		&ReplyLike{},
		&Notification{},
	}
}
