package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post represents a social media post stored in MongoDB.
// Notifications about comments on a post are grouped by the post.
type Post struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID        string             `json:"user_id" bson:"user_id"`
	Content       string             `json:"content" bson:"content"`
	CommentsCount int                `json:"comments_count" bson:"comments_count"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// Ref returns the polymorphic reference for this post.
func (p *Post) Ref() Ref {
	return Ref{Type: PostType, ID: p.ID.Hex()}
}
