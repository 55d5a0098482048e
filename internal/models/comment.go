package models

import (
	"strconv"

	"gorm.io/gorm"
)

// Comment represents a comment on a post; comments are the usual notifiable.
type Comment struct {
	gorm.Model
	PostID  string `json:"post_id" gorm:"index"` // ID of the post the comment belongs to (MongoDB ObjectID as string)
	UserID  uint   `json:"user_id" gorm:"index"` // ID of the user who made the comment
	Content string `json:"content" validate:"required,min=1,max=500"`
}

// Ref returns the polymorphic reference for this comment.
func (c *Comment) Ref() Ref {
	return Ref{Type: CommentType, ID: strconv.FormatUint(uint64(c.ID), 10)}
}
