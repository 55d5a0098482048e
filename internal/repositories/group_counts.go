package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenState selects which half of a target's notifications an aggregate covers.
type OpenState int

const (
	Unopened OpenState = iota
	Opened
)

// String returns "opened" or "unopened".
func (s OpenState) String() string {
	if s == Opened {
		return "opened"
	}
	return "unopened"
}

// NotifierKey addresses one bucket of a notifier-count mapping.
type NotifierKey struct {
	OwnerID      uint
	NotifierType string
}

// GroupCounter computes group member statistics with one aggregate query per
// mapping, whatever the number of groups being displayed.
type GroupCounter interface {
	ComputeGroupCounts(ctx context.Context, ownerIDs []uint, state OpenState, limit int) (map[uint]int64, error)
	ComputeGroupMemberCounts(ctx context.Context, target models.Ref, state OpenState, limit int) (map[uint]int64, error)
	ComputeGroupMemberNotifierCounts(ctx context.Context, target models.Ref, state OpenState, limit int) (map[NotifierKey]int64, error)

	UnopenedGroupMemberCount(ctx context.Context, owner *models.Notification) (int64, error)
	OpenedGroupMemberCount(ctx context.Context, owner *models.Notification, limit int) (int64, error)
	UnopenedGroupMemberNotifierCount(ctx context.Context, owner *models.Notification) (int64, error)
	OpenedGroupMemberNotifierCount(ctx context.Context, owner *models.Notification, limit int) (int64, error)
}

// groupOwnerAlias names the owner side of the member/owner self join.
const groupOwnerAlias = "group_owners"

type groupCountRow struct {
	GroupOwnerID uint
	Count        int64
}

type groupNotifierCountRow struct {
	GroupOwnerID uint
	NotifierType string
	Count        int64
}

// ComputeGroupCounts counts members in the given state per owner id. Opened
// counts are capped at limit (the configured default when limit <= 0).
func (r *PostgresNotificationRepository) ComputeGroupCounts(ctx context.Context, ownerIDs []uint, state OpenState, limit int) (map[uint]int64, error) {
	limit = r.limit(limit)
	if len(ownerIDs) == 0 {
		return map[uint]int64{}, nil
	}
	return r.countMembers(ctx, state, limit, GroupMembersOfOwnerIDsOnly(ownerIDs), memberState(state))
}

// ComputeGroupMemberCounts maps every owner in the target's unopened or opened
// index to its number of unopened or opened members.
func (r *PostgresNotificationRepository) ComputeGroupMemberCounts(ctx context.Context, target models.Ref, state OpenState, limit int) (map[uint]int64, error) {
	limit = r.limit(limit)
	return r.countMembers(ctx, state, limit, r.indexMembersScope(target, state, limit))
}

// ComputeGroupMemberNotifierCounts maps (owner id, notifier type) to the number
// of distinct notifiers among the owner's members, leaving out members caused by
// the owner's own notifier.
func (r *PostgresNotificationRepository) ComputeGroupMemberNotifierCounts(ctx context.Context, target models.Ref, state OpenState, limit int) (map[NotifierKey]int64, error) {
	limit = r.limit(limit)
	owner := func(name string) clause.Column {
		return clause.Column{Table: groupOwnerAlias, Name: name}
	}

	var rows []groupNotifierCountRow
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Select("? AS group_owner_id, ? AS notifier_type, COUNT(DISTINCT ?) AS count",
			column("group_owner_id"), column("notifier_type"), column("notifier_id")).
		Joins("JOIN ? ON ? = ?", clause.Table{Name: r.table, Alias: groupOwnerAlias}, owner("id"), column("group_owner_id")).
		Where(clause.Eq{Column: owner("notifier_type"), Value: column("notifier_type")}).
		Where(clause.Neq{Column: owner("notifier_id"), Value: column("notifier_id")}).
		Scopes(r.indexMembersScope(target, state, limit)).
		Group(r.table + ".group_owner_id").
		Group(r.table + ".notifier_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[NotifierKey]int64, len(rows))
	for _, row := range rows {
		counts[NotifierKey{OwnerID: row.GroupOwnerID, NotifierType: row.NotifierType}] = capCount(row.Count, state, limit)
	}
	return counts, nil
}

// UnopenedGroupMemberCount counts the owner's unopened members, or 0 when the
// owner is not in the unopened index.
func (r *PostgresNotificationRepository) UnopenedGroupMemberCount(ctx context.Context, owner *models.Notification) (int64, error) {
	counts, err := r.ComputeGroupMemberCounts(ctx, owner.Target, Unopened, 0)
	if err != nil {
		return 0, err
	}
	return counts[owner.ID], nil
}

// OpenedGroupMemberCount never reports more than limit members.
func (r *PostgresNotificationRepository) OpenedGroupMemberCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	counts, err := r.ComputeGroupMemberCounts(ctx, owner.Target, Opened, limit)
	if err != nil {
		return 0, err
	}
	return counts[owner.ID], nil
}

// UnopenedGroupMemberNotifierCount counts distinct notifiers among the owner's
// unopened members, the owner's own notifier excluded.
func (r *PostgresNotificationRepository) UnopenedGroupMemberNotifierCount(ctx context.Context, owner *models.Notification) (int64, error) {
	counts, err := r.ComputeGroupMemberNotifierCounts(ctx, owner.Target, Unopened, 0)
	if err != nil {
		return 0, err
	}
	return counts[notifierKey(owner)], nil
}

// OpenedGroupMemberNotifierCount is UnopenedGroupMemberNotifierCount for opened
// members, capped at limit.
func (r *PostgresNotificationRepository) OpenedGroupMemberNotifierCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	counts, err := r.ComputeGroupMemberNotifierCounts(ctx, owner.Target, Opened, limit)
	if err != nil {
		return 0, err
	}
	return counts[notifierKey(owner)], nil
}

func (r *PostgresNotificationRepository) countMembers(ctx context.Context, state OpenState, limit int, scopes ...Scope) (map[uint]int64, error) {
	var rows []groupCountRow
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Select("? AS group_owner_id, COUNT(*) AS count", column("group_owner_id")).
		Scopes(scopes...).
		Group(r.table + ".group_owner_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.GroupOwnerID] = capCount(row.Count, state, limit)
	}
	return counts, nil
}

// indexMembersScope keeps the target's members in the given state whose owner
// belongs to the matching index.
func (r *PostgresNotificationRepository) indexMembersScope(target models.Ref, state OpenState, limit int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		var owners *gorm.DB
		if state == Opened {
			owners = r.db.Model(&models.Notification{}).Select("id").Scopes(r.openedIndexScope(target, limit))
		} else {
			owners = r.db.Model(&models.Notification{}).Select("id").
				Scopes(FilteredByTarget(target), GroupOwnersOnly, UnopenedOnly)
		}
		return db.Scopes(FilteredByTarget(target), groupMembersOfOwnersIn(owners), memberState(state))
	}
}

// openedIndexScope keeps the limit most recent owners of target that are opened
// or have at least one opened member.
func (r *PostgresNotificationRepository) openedIndexScope(target models.Ref, limit int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		openedMemberOwners := r.db.Model(&models.Notification{}).Select("group_owner_id").
			Scopes(FilteredByTarget(target), GroupMembersOnly, openedOnly)
		openedActivity := r.db.Where(clause.Neq{Column: column("opened_at"), Value: nil}).
			Or(clause.Expr{SQL: "? IN (?)", Vars: []any{column("id"), openedMemberOwners}})

		return db.Scopes(FilteredByTarget(target), GroupOwnersOnly).
			Where(openedActivity).
			Scopes(LatestOrder).
			Limit(limit)
	}
}

func memberState(state OpenState) Scope {
	if state == Opened {
		return openedOnly
	}
	return UnopenedOnly
}

func capCount(count int64, state OpenState, limit int) int64 {
	if state == Opened && count > int64(limit) {
		return int64(limit)
	}
	return count
}

func notifierKey(owner *models.Notification) NotifierKey {
	return NotifierKey{OwnerID: owner.ID, NotifierType: owner.Notifier.Type}
}
