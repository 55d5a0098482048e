package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	alice = models.UserRef(1)
	bob   = models.UserRef(2)
	carol = models.UserRef(3)
	dave  = models.UserRef(4)
	erin  = models.UserRef(5)

	article = models.Ref{Type: models.PostType, ID: "article-1"}
	photo   = models.Ref{Type: models.PostType, ID: "photo-1"}
)

// newTestDB opens an in-memory SQLite database with the notification schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Comment{}, &models.Notification{}))
	return db
}

type fixture struct {
	t    *testing.T
	ctx  context.Context
	db   *gorm.DB
	repo *PostgresNotificationRepository
	base time.Time
	seq  int
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if opts.Now == nil {
		opts.Now = func() time.Time { return base.Add(24 * time.Hour) }
	}
	db := newTestDB(t)
	return &fixture{
		t:    t,
		ctx:  context.Background(),
		db:   db,
		repo: NewPostgresNotificationRepository(db, opts),
		base: base,
	}
}

// next returns strictly increasing creation times.
func (f *fixture) next() time.Time {
	f.seq++
	return f.base.Add(time.Duration(f.seq) * time.Minute)
}

func (f *fixture) create(n *models.Notification) *models.Notification {
	f.t.Helper()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.next()
	}
	if n.Notifiable.IsZero() {
		n.Notifiable = models.NewRef(models.CommentType, f.seq)
	}
	if n.Key == "" {
		n.Key = "comment.reply"
	}
	require.NoError(f.t, f.repo.Create(f.ctx, n))
	return n
}

func (f *fixture) owner(target, notifier models.Ref, opened bool) *models.Notification {
	f.t.Helper()
	n := &models.Notification{Target: target, Notifier: notifier, Group: article}
	if opened {
		n.OpenedAt = ptrTime(f.base)
	}
	return f.create(n)
}

func (f *fixture) member(owner *models.Notification, notifier models.Ref, opened bool) *models.Notification {
	f.t.Helper()
	n := &models.Notification{
		Target:       owner.Target,
		Notifier:     notifier,
		Group:        owner.Group,
		Key:          owner.Key,
		GroupOwnerID: &owner.ID,
	}
	if opened {
		n.OpenedAt = ptrTime(f.base)
	}
	return f.create(n)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func ids(notifications []models.Notification) []uint {
	out := make([]uint, len(notifications))
	for i := range notifications {
		out[i] = notifications[i].ID
	}
	return out
}

// fakeLoader records LoadEntities calls and serves a fixed entity set.
type fakeLoader struct {
	calls    [][]string
	entities map[string]any
}

func (l *fakeLoader) LoadEntities(_ context.Context, ids []string) (map[string]any, error) {
	l.calls = append(l.calls, append([]string(nil), ids...))
	out := make(map[string]any)
	for _, id := range ids {
		if e, ok := l.entities[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}
