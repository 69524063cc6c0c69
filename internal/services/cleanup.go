package services

import (
	"quill/internal/models"

	"gorm.io/gorm"
)

// 级联删除在代码里显式完成，不依赖数据库外键（SQLite 默认不开外键）

// DeleteReplies removes the given replies and their likes.
func DeleteReplies(tx *gorm.DB, replyIDs []uint) error {
	if len(replyIDs) == 0 {
		return nil
	}
	if err := tx.Where("reply_id IN ?", replyIDs).Delete(&models.ReplyLike{}).Error; err != nil {
		return err
	}
	if err := tx.Where("reply_id IN ?", replyIDs).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", replyIDs).Delete(&models.Reply{}).Error
}

// DeleteComments removes comments together with their replies and likes.
func DeleteComments(tx *gorm.DB, commentIDs []uint) error {
	if len(commentIDs) == 0 {
		return nil
	}
	var replyIDs []uint
	if err := tx.Model(&models.Reply{}).Where("comment_id IN ?", commentIDs).Pluck("id", &replyIDs).Error; err != nil {
		return err
	}
	if err := DeleteReplies(tx, replyIDs); err != nil {
		return err
	}
	if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.CommentLike{}).Error; err != nil {
		return err
	}
	if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", commentIDs).Delete(&models.Comment{}).Error
}

// DeletePosts removes posts and everything hanging off them.
func DeletePosts(tx *gorm.DB, postIDs []uint) error {
	if len(postIDs) == 0 {
		return nil
	}
	var commentIDs []uint
	if err := tx.Model(&models.Comment{}).Where("post_id IN ?", postIDs).Pluck("id", &commentIDs).Error; err != nil {
		return err
	}
	if err := DeleteComments(tx, commentIDs); err != nil {
		return err
	}
	// 孤儿回复（理论上不存在）
	if err := tx.Where("post_id IN ?", postIDs).Delete(&models.Reply{}).Error; err != nil {
		return err
	}
	for _, m := range []interface{}{&models.PostLike{}, &models.Bookmark{}, &models.Notification{}} {
		if err := tx.Where("post_id IN ?", postIDs).Delete(m).Error; err != nil {
			return err
		}
	}
	if err := tx.Exec("DELETE FROM post_tags WHERE post_id IN ?", postIDs).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", postIDs).Delete(&models.Post{}).Error
}

// DeleteUser removes an account with all its content and relations.
func DeleteUser(tx *gorm.DB, userID uint) error {
	var postIDs []uint
	if err := tx.Model(&models.Post{}).Where("user_id = ?", userID).Pluck("id", &postIDs).Error; err != nil {
		return err
	}
	if err := DeletePosts(tx, postIDs); err != nil {
		return err
	}

	var commentIDs []uint
	if err := tx.Model(&models.Comment{}).Where("user_id = ?", userID).Pluck("id", &commentIDs).Error; err != nil {
		return err
	}
	if err := DeleteComments(tx, commentIDs); err != nil {
		return err
	}

	var replyIDs []uint
	if err := tx.Model(&models.Reply{}).Where("user_id = ?", userID).Pluck("id", &replyIDs).Error; err != nil {
		return err
	}
	if err := DeleteReplies(tx, replyIDs); err != nil {
		return err
	}

	for _, m := range []interface{}{&models.PostLike{}, &models.Bookmark{}, &models.CommentLike{}, &models.ReplyLike{}} {
		if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("follower_id = ? OR following_id = ?", userID, userID).Delete(&models.Follow{}).Error; err != nil {
		return err
	}
	if err := tx.Where("user_id = ? OR actor_id = ?", userID, userID).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.User{}, userID).Error
}
