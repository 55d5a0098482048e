package repositories

import (
	"context"
	"sync"

	"github.com/anonto42/nano-midea/notifications/internal/models"
)

// GroupCountCache memoises group aggregates for one render pass: each mapping is
// computed once per (target, state, limit) and then answered from memory for
// every owner. It must not outlive the request that created it.
type GroupCountCache struct {
	counter GroupCounter
	limit   int

	mu        sync.Mutex
	members   map[countKey]map[uint]int64
	notifiers map[countKey]map[NotifierKey]int64
	computed  int
}

type countKey struct {
	target models.Ref
	state  OpenState
	limit  int
}

// NewGroupCountCache returns an empty cache backed by this repository.
func (r *PostgresNotificationRepository) NewGroupCountCache() *GroupCountCache {
	return NewGroupCountCache(r, r.opts.OpenedIndexLimit)
}

// NewGroupCountCache returns an empty cache over counter. Opened lookups with a
// non-positive limit use defaultLimit.
func NewGroupCountCache(counter GroupCounter, defaultLimit int) *GroupCountCache {
	if defaultLimit <= 0 {
		defaultLimit = DefaultOpenedIndexLimit
	}
	return &GroupCountCache{
		counter:   counter,
		limit:     defaultLimit,
		members:   make(map[countKey]map[uint]int64),
		notifiers: make(map[countKey]map[NotifierKey]int64),
	}
}

// Computed reports how many aggregate queries the cache has issued.
func (c *GroupCountCache) Computed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computed
}

// UnopenedGroupMemberCount answers from the target's unopened member mapping.
func (c *GroupCountCache) UnopenedGroupMemberCount(ctx context.Context, owner *models.Notification) (int64, error) {
	return c.memberCount(ctx, owner, Unopened, 0)
}

// OpenedGroupMemberCount answers from the target's opened member mapping.
func (c *GroupCountCache) OpenedGroupMemberCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	return c.memberCount(ctx, owner, Opened, limit)
}

// UnopenedGroupMemberNotifierCount answers from the unopened notifier mapping.
func (c *GroupCountCache) UnopenedGroupMemberNotifierCount(ctx context.Context, owner *models.Notification) (int64, error) {
	return c.notifierCount(ctx, owner, Unopened, 0)
}

// OpenedGroupMemberNotifierCount answers from the opened notifier mapping.
func (c *GroupCountCache) OpenedGroupMemberNotifierCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	return c.notifierCount(ctx, owner, Opened, limit)
}

// GroupMemberCount counts the owner's members in the owner's own open state.
func (c *GroupCountCache) GroupMemberCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	if owner.IsOpened() {
		return c.OpenedGroupMemberCount(ctx, owner, limit)
	}
	return c.UnopenedGroupMemberCount(ctx, owner)
}

// GroupMemberExists reports whether GroupMemberCount is positive.
func (c *GroupCountCache) GroupMemberExists(ctx context.Context, owner *models.Notification, limit int) (bool, error) {
	count, err := c.GroupMemberCount(ctx, owner, limit)
	return count > 0, err
}

// GroupNotificationCount counts the owner together with its members.
func (c *GroupCountCache) GroupNotificationCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	count, err := c.GroupMemberCount(ctx, owner, limit)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

// GroupMemberNotifierCount counts distinct other notifiers among the owner's
// members in the owner's own open state.
func (c *GroupCountCache) GroupMemberNotifierCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	if owner.IsOpened() {
		return c.OpenedGroupMemberNotifierCount(ctx, owner, limit)
	}
	return c.UnopenedGroupMemberNotifierCount(ctx, owner)
}

// GroupMemberNotifierExists reports whether GroupMemberNotifierCount is positive.
func (c *GroupCountCache) GroupMemberNotifierExists(ctx context.Context, owner *models.Notification, limit int) (bool, error) {
	count, err := c.GroupMemberNotifierCount(ctx, owner, limit)
	return count > 0, err
}

// GroupNotifierCount counts the owner's notifier together with the others.
func (c *GroupCountCache) GroupNotifierCount(ctx context.Context, owner *models.Notification, limit int) (int64, error) {
	count, err := c.GroupMemberNotifierCount(ctx, owner, limit)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (c *GroupCountCache) memberCount(ctx context.Context, owner *models.Notification, state OpenState, limit int) (int64, error) {
	key := c.key(owner, state, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.members[key]
	if !ok {
		var err error
		counts, err = c.counter.ComputeGroupMemberCounts(ctx, key.target, key.state, key.limit)
		if err != nil {
			return 0, err
		}
		c.members[key] = counts
		c.computed++
	}
	return counts[owner.ID], nil
}

func (c *GroupCountCache) notifierCount(ctx context.Context, owner *models.Notification, state OpenState, limit int) (int64, error) {
	key := c.key(owner, state, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.notifiers[key]
	if !ok {
		var err error
		counts, err = c.counter.ComputeGroupMemberNotifierCounts(ctx, key.target, key.state, key.limit)
		if err != nil {
			return 0, err
		}
		c.notifiers[key] = counts
		c.computed++
	}
	return counts[notifierKey(owner)], nil
}

func (c *GroupCountCache) key(owner *models.Notification, state OpenState, limit int) countKey {
	if state == Unopened {
		limit = 0
	} else if limit <= 0 {
		limit = c.limit
	}
	return countKey{target: owner.Target, state: state, limit: limit}
}
