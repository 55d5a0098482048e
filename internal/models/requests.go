package models

// NotifyRequest is the request body for creating a notification.
type NotifyRequest struct {
	TargetID       uint           `json:"target_id" validate:"required"`
	NotifiableType string         `json:"notifiable_type" validate:"required,max=50"`
	NotifiableID   string         `json:"notifiable_id" validate:"required,max=64"`
	Key            string         `json:"key" validate:"required,max=100"`
	GroupType      string         `json:"group_type,omitempty" validate:"required_with=GroupID,max=50"`
	GroupID        string         `json:"group_id,omitempty" validate:"required_with=GroupType,max=64"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}
