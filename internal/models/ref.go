package models

import (
	"fmt"
	"strconv"
)

// Ref is a polymorphic reference to another entity: a type tag plus the entity id.
// It is persisted as a <prefix>type / <prefix>id column pair.
type Ref struct {
	Type string `json:"type" gorm:"size:50"`
	ID   string `json:"id" gorm:"size:64"`
}

// NewRef builds a reference from a type tag and any id value.
func NewRef(typ string, id any) Ref {
	return Ref{Type: typ, ID: fmt.Sprint(id)}
}

// UserRef references a User row.
func UserRef(id uint) Ref {
	return Ref{Type: UserType, ID: strconv.FormatUint(uint64(id), 10)}
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// String formats the reference as Type#ID.
func (r Ref) String() string {
	if r.IsZero() {
		return "<none>"
	}
	return r.Type + "#" + r.ID
}
