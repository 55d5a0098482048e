package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/models"
)

// EntityLoader fetches the entities of one type tag in a single round trip.
// The returned map is keyed by the reference id; missing ids are simply absent.
type EntityLoader interface {
	LoadEntities(ctx context.Context, ids []string) (map[string]any, error)
}

// EntityLoaders maps a reference type tag to the loader that resolves it.
type EntityLoaders map[string]EntityLoader

// refField selects one polymorphic reference of a notification.
type refField int

const (
	targetField refField = iota
	notifiableField
	groupField
	notifierField
)

func (f refField) ref(n *models.Notification) models.Ref {
	switch f {
	case targetField:
		return n.Target
	case notifiableField:
		return n.Notifiable
	case groupField:
		return n.Group
	default:
		return n.Notifier
	}
}

func (f refField) set(n *models.Notification, entity any) {
	switch f {
	case targetField:
		n.TargetEntity = entity
	case notifiableField:
		n.NotifiableEntity = entity
	case groupField:
		n.GroupEntity = entity
	default:
		n.NotifierEntity = entity
	}
}

// Resolve loads the entity behind a single reference.
// It returns models.ErrNotFound when the type is unknown or the entity is gone.
func (l EntityLoaders) Resolve(ctx context.Context, ref models.Ref) (any, error) {
	loader, ok := l[ref.Type]
	if !ok || ref.ID == "" {
		return nil, models.ErrNotFound
	}
	entities, err := loader.LoadEntities(ctx, []string{ref.ID})
	if err != nil {
		return nil, err
	}
	entity, ok := entities[ref.ID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return entity, nil
}

// load resolves field for every notification with one LoadEntities call per type tag.
// Types without a registered loader are left unresolved.
func (l EntityLoaders) load(ctx context.Context, notifications []models.Notification, field refField) error {
	idsByType := make(map[string][]string)
	seen := make(map[models.Ref]bool)
	for i := range notifications {
		ref := field.ref(&notifications[i])
		if ref.ID == "" || seen[ref] {
			continue
		}
		if _, ok := l[ref.Type]; !ok {
			continue
		}
		seen[ref] = true
		idsByType[ref.Type] = append(idsByType[ref.Type], ref.ID)
	}

	for typ, ids := range idsByType {
		entities, err := l[typ].LoadEntities(ctx, ids)
		if err != nil {
			return err
		}
		for i := range notifications {
			ref := field.ref(&notifications[i])
			if ref.Type != typ {
				continue
			}
			if entity, ok := entities[ref.ID]; ok {
				field.set(&notifications[i], entity)
			}
		}
	}
	return nil
}
