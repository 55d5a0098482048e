package repositories

import (
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope is a composable filter over the notifications table.
// Scopes are combined with AND through gorm's Scopes.
type Scope = func(*gorm.DB) *gorm.DB

// column qualifies name with the statement's own table so the filters stay
// unambiguous when the table is joined against itself.
func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

// GroupOwnersOnly keeps notifications that own a group.
func GroupOwnersOnly(db *gorm.DB) *gorm.DB {
	return db.Where(clause.Eq{Column: column("group_owner_id"), Value: nil})
}

// GroupMembersOnly keeps notifications aggregated into an owner.
func GroupMembersOnly(db *gorm.DB) *gorm.DB {
	return db.Where(clause.Neq{Column: column("group_owner_id"), Value: nil})
}

// UnopenedOnly keeps notifications without an opened_at.
func UnopenedOnly(db *gorm.DB) *gorm.DB {
	return db.Where(clause.Eq{Column: column("opened_at"), Value: nil})
}

// OpenedOnly keeps the limit most recent opened notifications, latest first, so
// repeated calls return the same rows. A non-positive limit leaves the result
// unbounded and unordered; unlike the repository limits it does not fall back
// to the configured default.
func OpenedOnly(limit int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		db = openedOnly(db)
		if limit > 0 {
			db = LatestOrder(db).Limit(limit)
		}
		return db
	}
}

// openedOnly keeps every opened notification.
func openedOnly(db *gorm.DB) *gorm.DB {
	return db.Where(clause.Neq{Column: column("opened_at"), Value: nil})
}

// WithinExpirationOnly keeps notifications created after now-delay.
func WithinExpirationOnly(delay time.Duration, now time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Gt{Column: column("created_at"), Value: now.Add(-delay)})
	}
}

// FilteredByTarget keeps notifications addressed to target.
func FilteredByTarget(target models.Ref) Scope {
	return filteredByRef("target_", target)
}

// FilteredByInstance keeps notifications about one notifiable entity.
func FilteredByInstance(notifiable models.Ref) Scope {
	return filteredByRef("notifiable_", notifiable)
}

// FilteredByType matches the declared notifiable type regardless of instance.
func FilteredByType(notifiableType string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{Column: column("notifiable_type"), Value: notifiableType})
	}
}

// FilteredByGroup keeps notifications grouped under group.
func FilteredByGroup(group models.Ref) Scope {
	return filteredByRef("group_", group)
}

// FilteredByKey keeps notifications with the given key.
func FilteredByKey(key string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{Column: column("key"), Value: key})
	}
}

// GroupMembersOfOwnerIDsOnly keeps members whose owner is one of ownerIDs.
func GroupMembersOfOwnerIDsOnly(ownerIDs []uint) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.IN{Column: column("group_owner_id"), Values: uintValues(ownerIDs)})
	}
}

// groupMembersOfOwnersIn is GroupMembersOfOwnerIDsOnly over a subquery selecting owner ids.
func groupMembersOfOwnersIn(owners *gorm.DB) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Expr{SQL: "? IN (?)", Vars: []any{column("group_owner_id"), owners}})
	}
}

// LatestOrder sorts most recent first, ties broken by ascending id.
func LatestOrder(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: column("created_at"), Desc: true}).
		Order(clause.OrderByColumn{Column: column("id")})
}

// EarliestOrder sorts oldest first, ties broken by ascending id.
func EarliestOrder(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: column("created_at")}).
		Order(clause.OrderByColumn{Column: column("id")})
}

func filteredByRef(prefix string, ref models.Ref) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{Column: column(prefix + "type"), Value: ref.Type}).
			Where(clause.Eq{Column: column(prefix + "id"), Value: ref.ID})
	}
}

func uintValues(ids []uint) []any {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return values
}
