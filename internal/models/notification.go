package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errIncompleteRef = errors.New("target and notifiable need both type and id")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Notification is a single notification event for a target (PostgreSQL).
//
// A row with a nil GroupOwnerID is a group owner and represents one displayed group.
// A row with GroupOwnerID set is a group member aggregated into that owner.
type Notification struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	Target       Ref               `json:"target" gorm:"embedded;embeddedPrefix:target_;index:idx_notifications_target" validate:"required"`
	Notifiable   Ref               `json:"notifiable" gorm:"embedded;embeddedPrefix:notifiable_" validate:"required"`
	Key          string            `json:"key" gorm:"size:100;index" validate:"required"`
	Group        Ref               `json:"group" gorm:"embedded;embeddedPrefix:group_"`
	GroupOwnerID *uint             `json:"group_owner_id" gorm:"index"`
	Notifier     Ref               `json:"notifier" gorm:"embedded;embeddedPrefix:notifier_"`
	Parameters   datatypes.JSONMap `json:"parameters"`
	OpenedAt     *time.Time        `json:"opened_at" gorm:"index"`
	CreatedAt    time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time         `json:"updated_at"`

	GroupOwner   *Notification  `json:"group_owner,omitempty" gorm:"foreignKey:GroupOwnerID" validate:"-"`
	GroupMembers []Notification `json:"group_members,omitempty" gorm:"foreignKey:GroupOwnerID" validate:"-"`

	// Entities resolved for the polymorphic references when eager loading is requested.
	TargetEntity     any `json:"target_entity,omitempty" gorm:"-" validate:"-"`
	NotifiableEntity any `json:"notifiable_entity,omitempty" gorm:"-" validate:"-"`
	GroupEntity      any `json:"group_entity,omitempty" gorm:"-" validate:"-"`
	NotifierEntity   any `json:"notifier_entity,omitempty" gorm:"-" validate:"-"`
}

// BeforeCreate rejects rows without target, notifiable or key.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	return n.Validate()
}

// Validate checks the required fields and that target and notifiable are complete.
func (n *Notification) Validate() error {
	if err := validate.Struct(n); err != nil {
		return &ValidationError{Err: err}
	}
	if n.Target.Type == "" || n.Target.ID == "" || n.Notifiable.Type == "" || n.Notifiable.ID == "" {
		return &ValidationError{Err: errIncompleteRef}
	}
	return nil
}

// IsGroupOwner reports whether n heads a group.
func (n *Notification) IsGroupOwner() bool {
	return n.GroupOwnerID == nil
}

// IsGroupMember reports whether n belongs to another notification's group.
func (n *Notification) IsGroupMember() bool {
	return n.GroupOwnerID != nil
}

// IsOpened reports whether n has been opened.
func (n *Notification) IsOpened() bool {
	return n.OpenedAt != nil
}

// IsUnopened reports whether n is still unopened.
func (n *Notification) IsUnopened() bool {
	return n.OpenedAt == nil
}

// Members returns the loaded group members; a member never has any.
func (n *Notification) Members() []Notification {
	if n.IsGroupMember() {
		return nil
	}
	return n.GroupMembers
}
