package models

import "time"

// Type tags used in polymorphic references.
const (
	UserType    = "User"
	CommentType = "Comment"
	PostType    = "Post"
)

// User is an account that receives notifications (target) or causes them (notifier).
type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Email       string    `json:"email" gorm:"uniqueIndex"`
	FirebaseUID string    `json:"firebase_uid,omitempty" gorm:"uniqueIndex"` // Link to Firebase User UID
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserCompact is the public subset of a user embedded in notification payloads.
type UserCompact struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// ToCompact returns the public subset of the user.
func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Name: u.Name}
}

// Ref returns the polymorphic reference for this user.
func (u *User) Ref() Ref {
	return UserRef(u.ID)
}
