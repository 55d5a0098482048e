package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationQuery is an immutable, chainable set of scopes over the notifications
// table. Eager-load hints only change how many round trips a result costs.
type NotificationQuery struct {
	db       *gorm.DB
	loaders  EntityLoaders
	scopes   []Scope
	preloads []string
	eager    []refField
}

func newNotificationQuery(db *gorm.DB, loaders EntityLoaders, scopes []Scope) *NotificationQuery {
	return &NotificationQuery{db: db, loaders: loaders, scopes: scopes}
}

func (q *NotificationQuery) clone() *NotificationQuery {
	c := *q
	c.scopes = append([]Scope(nil), q.scopes...)
	c.preloads = append([]string(nil), q.preloads...)
	c.eager = append([]refField(nil), q.eager...)
	return &c
}

// Where narrows the query with additional scopes.
func (q *NotificationQuery) Where(scopes ...Scope) *NotificationQuery {
	c := q.clone()
	c.scopes = append(c.scopes, scopes...)
	return c
}

// WithTarget and the other With* hints resolve a reference after the query runs.
func (q *NotificationQuery) WithTarget() *NotificationQuery     { return q.withRef(targetField) }
func (q *NotificationQuery) WithNotifiable() *NotificationQuery { return q.withRef(notifiableField) }
func (q *NotificationQuery) WithGroup() *NotificationQuery      { return q.withRef(groupField) }
func (q *NotificationQuery) WithNotifier() *NotificationQuery   { return q.withRef(notifierField) }

// WithGroupOwner preloads each member's owner.
func (q *NotificationQuery) WithGroupOwner() *NotificationQuery {
	return q.withPreload("GroupOwner")
}

// WithGroupMembers preloads each owner's members.
func (q *NotificationQuery) WithGroupMembers() *NotificationQuery {
	return q.withPreload("GroupMembers")
}

func (q *NotificationQuery) withRef(f refField) *NotificationQuery {
	c := q.clone()
	c.eager = append(c.eager, f)
	return c
}

func (q *NotificationQuery) withPreload(name string) *NotificationQuery {
	c := q.clone()
	c.preloads = append(c.preloads, name)
	return c
}

func (q *NotificationQuery) base(ctx context.Context) *gorm.DB {
	return q.db.WithContext(ctx).Model(&models.Notification{}).Scopes(q.scopes...)
}

func (q *NotificationQuery) build(ctx context.Context) *gorm.DB {
	return q.preload(q.base(ctx))
}

func (q *NotificationQuery) preload(db *gorm.DB) *gorm.DB {
	for _, name := range q.preloads {
		db = db.Preload(name)
	}
	return db
}

// Find returns every matching notification.
func (q *NotificationQuery) Find(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := q.build(ctx).Find(&notifications).Error; err != nil {
		return nil, err
	}
	if err := q.resolve(ctx, notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// Count counts matching rows, honouring any limit in the scopes.
func (q *NotificationQuery) Count(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Table("(?) AS matched", q.base(ctx).Select("id")).Count(&count).Error
	return count, err
}

// Exists reports whether any notification matches.
func (q *NotificationQuery) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	return count > 0, err
}

// IDs returns the ids of the matching notifications in query order.
func (q *NotificationQuery) IDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := q.base(ctx).Pluck("id", &ids).Error
	return ids, err
}

// Latest returns the most recent matching notification.
func (q *NotificationQuery) Latest(ctx context.Context) (*models.Notification, error) {
	return q.first(ctx, LatestOrder)
}

// Earliest returns the oldest matching notification.
func (q *NotificationQuery) Earliest(ctx context.Context) (*models.Notification, error) {
	return q.first(ctx, EarliestOrder)
}

// UniqKeys returns each distinct notification key once, in no particular order.
func (q *NotificationQuery) UniqKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := q.db.WithContext(ctx).Table("(?) AS matched", q.base(ctx)).Distinct().Pluck("key", &keys).Error
	return keys, err
}

// first picks one row of the matched set by order alone. Orders and limits in
// the scopes only decide which rows match.
func (q *NotificationQuery) first(ctx context.Context, order Scope) (*models.Notification, error) {
	matched := q.base(ctx).Select("id")
	db := q.db.WithContext(ctx).Model(&models.Notification{}).
		Where(clause.Expr{SQL: "? IN (?)", Vars: []any{column("id"), matched}})

	var n models.Notification
	if err := q.preload(db).Scopes(order).Take(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	batch := []models.Notification{n}
	if err := q.resolve(ctx, batch); err != nil {
		return nil, err
	}
	return &batch[0], nil
}

func (q *NotificationQuery) resolve(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	for _, f := range q.eager {
		if err := q.loaders.load(ctx, notifications, f); err != nil {
			return err
		}
	}
	return nil
}
