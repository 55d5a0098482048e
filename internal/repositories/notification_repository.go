package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	Query(scopes ...Scope) *NotificationQuery
	UnopenedIndex(target models.Ref) *NotificationQuery
	OpenedIndex(target models.Ref, limit int) *NotificationQuery
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	Create(ctx context.Context, notification *models.Notification) error
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
	Open(ctx context.Context, id uint, openedAt time.Time, withMembers bool) (int64, error)
	OpenAll(ctx context.Context, target models.Ref, scopes ...Scope) (int64, error)
	Delete(ctx context.Context, id uint) error

	GroupCounter
	NewGroupCountCache() *GroupCountCache
	OpenedIndexLimit() int
}

// NotifyInput describes a notification event for one target.
type NotifyInput struct {
	Target     models.Ref
	Notifiable models.Ref
	Key        string
	Group      models.Ref
	Notifier   models.Ref
	Parameters map[string]any
}

var _ NotificationRepository = (*PostgresNotificationRepository)(nil)

// PostgresNotificationRepository implements NotificationRepository on top of gorm.
type PostgresNotificationRepository struct {
	db    *gorm.DB
	table string
	opts  Options
}

// NewPostgresNotificationRepository creates a repository over db.
// The table name follows db's naming strategy so overrides apply to joins as well.
func NewPostgresNotificationRepository(db *gorm.DB, opts Options) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{
		db:    db,
		table: db.NamingStrategy.TableName("Notification"),
		opts:  opts.withDefaults(),
	}
}

// OpenedIndexLimit returns the configured default limit.
func (r *PostgresNotificationRepository) OpenedIndexLimit() int {
	return r.opts.OpenedIndexLimit
}

// Loaders exposes the entity loaders used for eager loading.
func (r *PostgresNotificationRepository) Loaders() EntityLoaders {
	return r.opts.Loaders
}

// Query starts a chainable notification query.
func (r *PostgresNotificationRepository) Query(scopes ...Scope) *NotificationQuery {
	return newNotificationQuery(r.db, r.opts.Loaders, scopes)
}

// UnopenedIndex selects the target's unopened group owners, latest first.
func (r *PostgresNotificationRepository) UnopenedIndex(target models.Ref) *NotificationQuery {
	return r.Query(FilteredByTarget(target), UnopenedOnly, GroupOwnersOnly, LatestOrder)
}

// OpenedIndex selects at most limit group owners of the target carrying opened
// activity, latest first. A non-positive limit uses the configured default.
func (r *PostgresNotificationRepository) OpenedIndex(target models.Ref, limit int) *NotificationQuery {
	return r.Query(r.openedIndexScope(target, r.limit(limit)))
}

// GetByID returns models.ErrNotFound when no notification has id.
func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Create stores notification as given; validation runs in its BeforeCreate hook.
func (r *PostgresNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// Notify stores a notification for input.Target. When a group is given and the
// target already has an unopened owner for the same key and group that has not
// expired, the new notification joins that owner as a member.
func (r *PostgresNotificationRepository) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	n := &models.Notification{
		Target:     input.Target,
		Notifiable: input.Notifiable,
		Key:        input.Key,
		Group:      input.Group,
		Notifier:   input.Notifier,
	}
	if input.Parameters != nil {
		n.Parameters = datatypes.JSONMap(input.Parameters)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	if !input.Group.IsZero() {
		owner, err := r.findGroupOwner(ctx, input)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			n.GroupOwnerID = &owner.ID
		}
	}

	if err := r.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *PostgresNotificationRepository) findGroupOwner(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	q := r.Query(
		FilteredByTarget(input.Target),
		FilteredByKey(input.Key),
		FilteredByGroup(input.Group),
		UnopenedOnly,
		GroupOwnersOnly,
	)
	if r.opts.GroupExpiryDelay > 0 {
		q = q.Where(WithinExpirationOnly(r.opts.GroupExpiryDelay, r.opts.Now()))
	}
	owner, err := q.Earliest(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return owner, err
}

// Open marks the notification as opened at openedAt and, for an owner with
// withMembers set, its unopened members too, in one transaction. It returns how
// many rows changed. Opening is one-way: rows that are already opened keep their
// timestamp.
func (r *PostgresNotificationRepository) Open(ctx context.Context, id uint, openedAt time.Time, withMembers bool) (int64, error) {
	n, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	var opened int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if n.IsUnopened() {
			res := tx.Model(&models.Notification{}).
				Where("id = ?", n.ID).Scopes(UnopenedOnly).
				Update("opened_at", openedAt)
			if res.Error != nil {
				return res.Error
			}
			opened += res.RowsAffected
		}

		if withMembers && n.IsGroupOwner() {
			res := tx.Model(&models.Notification{}).
				Scopes(GroupMembersOfOwnerIDsOnly([]uint{n.ID}), UnopenedOnly).
				Update("opened_at", openedAt)
			if res.Error != nil {
				return res.Error
			}
			opened += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return opened, nil
}

// OpenAll opens every unopened notification of target matching scopes.
func (r *PostgresNotificationRepository) OpenAll(ctx context.Context, target models.Ref, scopes ...Scope) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Scopes(FilteredByTarget(target), UnopenedOnly).
		Scopes(scopes...).
		Update("opened_at", r.opts.Now())
	return res.RowsAffected, res.Error
}

// Delete removes a notification. Deleting an owner that still has members is
// refused with a *models.DeletionRestrictedError. The store's foreign key
// violation is reported the same way, which needs gorm's TranslateError.
func (r *PostgresNotificationRepository) Delete(ctx context.Context, id uint) error {
	n, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if n.IsGroupOwner() {
		members, err := r.Query(GroupMembersOfOwnerIDsOnly([]uint{n.ID})).Count(ctx)
		if err != nil {
			return err
		}
		if members > 0 {
			return models.NewDeletionRestrictedError(
				"cannot delete notification %d because %d dependent group member notification(s) exist", n.ID, members)
		}
	}

	err = r.db.WithContext(ctx).Delete(&models.Notification{}, n.ID).Error
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		// a member joined after the check above
		return models.NewDeletionRestrictedError(
			"cannot delete notification %d because dependent group member notification(s) exist", n.ID)
	}
	return err
}

func (r *PostgresNotificationRepository) limit(limit int) int {
	if limit <= 0 {
		return r.opts.OpenedIndexLimit
	}
	return limit
}
