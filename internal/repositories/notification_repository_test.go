package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func notifyInput(target, notifier models.Ref, key string, group models.Ref) NotifyInput {
	return NotifyInput{
		Target:     target,
		Notifiable: models.NewRef(models.CommentType, 1),
		Key:        key,
		Group:      group,
		Notifier:   notifier,
	}
}

func TestNotify_JoinsUnopenedOwner(t *testing.T) {
	f := newFixture(t, Options{})

	owner, err := f.repo.Notify(f.ctx, notifyInput(alice, bob, "comment.reply", article))
	require.NoError(t, err)
	assert.True(t, owner.IsGroupOwner())

	member, err := f.repo.Notify(f.ctx, notifyInput(alice, carol, "comment.reply", article))
	require.NoError(t, err)
	require.True(t, member.IsGroupMember())
	assert.Equal(t, owner.ID, *member.GroupOwnerID)

	tests := []struct {
		name  string
		input NotifyInput
	}{
		{"other key", notifyInput(alice, carol, "post.like", article)},
		{"other group", notifyInput(alice, carol, "comment.reply", photo)},
		{"other target", notifyInput(bob, carol, "comment.reply", article)},
		{"no group", notifyInput(alice, carol, "comment.reply", models.Ref{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.repo.Notify(f.ctx, tt.input)
			require.NoError(t, err)
			assert.True(t, n.IsGroupOwner())
		})
	}
}

func TestNotify_SkipsOpenedOwnersAndPicksEarliest(t *testing.T) {
	f := newFixture(t, Options{})

	f.owner(alice, bob, true)
	earliest := f.owner(alice, bob, false)
	f.owner(alice, carol, false)

	n, err := f.repo.Notify(f.ctx, notifyInput(alice, dave, "comment.reply", article))
	require.NoError(t, err)
	require.NotNil(t, n.GroupOwnerID)
	assert.Equal(t, earliest.ID, *n.GroupOwnerID)
}

func TestNotify_GroupExpiry(t *testing.T) {
	f := newFixture(t, Options{GroupExpiryDelay: time.Hour})
	now := f.repo.opts.Now()

	f.owner(alice, bob, false)

	n, err := f.repo.Notify(f.ctx, notifyInput(alice, carol, "comment.reply", article))
	require.NoError(t, err)
	assert.True(t, n.IsGroupOwner(), "owner older than the expiry delay must not absorb members")

	// Notify stamps CreatedAt with the wall clock, so pin a fresh owner explicitly.
	fresh := f.create(&models.Notification{Target: bob, Notifier: carol, Group: article, CreatedAt: now.Add(-10 * time.Minute)})

	n, err = f.repo.Notify(f.ctx, notifyInput(bob, dave, "comment.reply", article))
	require.NoError(t, err)
	require.NotNil(t, n.GroupOwnerID)
	assert.Equal(t, fresh.ID, *n.GroupOwnerID)
}

func TestNotify_StoresParameters(t *testing.T) {
	f := newFixture(t, Options{})

	input := notifyInput(alice, bob, "comment.reply", models.Ref{})
	input.Parameters = map[string]any{"excerpt": "nice post"}

	n, err := f.repo.Notify(f.ctx, input)
	require.NoError(t, err)

	stored, err := f.repo.GetByID(f.ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "nice post", stored.Parameters["excerpt"])
}

func TestNotify_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name  string
		input NotifyInput
	}{
		{"missing target", notifyInput(models.Ref{}, bob, "comment.reply", article)},
		{"missing key", notifyInput(alice, bob, "", article)},
		{"target without id", notifyInput(models.Ref{Type: models.UserType}, bob, "comment.reply", article)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.repo.Notify(f.ctx, tt.input)
			assert.ErrorIs(t, err, models.ErrValidationFailed)
		})
	}

	err := f.repo.Create(f.ctx, &models.Notification{Target: alice, Key: "comment.reply"})
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	count, err := f.repo.Query().Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_IsMonotonic(t *testing.T) {
	f := newFixture(t, Options{})

	owner := f.owner(alice, bob, false)
	f.member(owner, carol, false)
	f.member(owner, dave, false)
	openedMember := f.member(owner, erin, true)

	at := f.base.Add(48 * time.Hour)
	changed, err := f.repo.Open(f.ctx, owner.ID, at, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	unopened, err := f.repo.Query(FilteredByTarget(alice), UnopenedOnly).Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, unopened)

	kept, err := f.repo.GetByID(f.ctx, openedMember.ID)
	require.NoError(t, err)
	assert.True(t, kept.OpenedAt.Equal(f.base))

	changed, err = f.repo.Open(f.ctx, owner.ID, at.Add(time.Hour), true)
	require.NoError(t, err)
	assert.Zero(t, changed)

	reopened, err := f.repo.GetByID(f.ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, reopened.OpenedAt.Equal(at))

	_, err = f.repo.Open(f.ctx, 9999, at, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOpen_WithoutMembers(t *testing.T) {
	f := newFixture(t, Options{})

	owner := f.owner(alice, bob, false)
	member := f.member(owner, carol, false)

	changed, err := f.repo.Open(f.ctx, owner.ID, f.base, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	stored, err := f.repo.GetByID(f.ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsUnopened())
}

func TestOpenAll(t *testing.T) {
	f := newFixture(t, Options{})

	f.owner(alice, bob, false)
	f.create(&models.Notification{Target: alice, Key: "post.like"})
	f.owner(alice, bob, true)
	f.owner(bob, carol, false)

	changed, err := f.repo.OpenAll(f.ctx, alice, FilteredByKey("comment.reply"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	changed, err = f.repo.OpenAll(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	left, err := f.repo.Query(UnopenedOnly).IDs(f.ctx)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestDelete_RestrictedWhileMembersExist(t *testing.T) {
	f := newFixture(t, Options{})

	owner := f.owner(alice, bob, false)
	first := f.member(owner, carol, false)
	second := f.member(owner, dave, true)

	err := f.repo.Delete(f.ctx, owner.ID)
	require.ErrorIs(t, err, models.ErrDeletionRestricted)

	var restricted *models.DeletionRestrictedError
	require.True(t, errors.As(err, &restricted))
	assert.NotEmpty(t, restricted.Message)
	assert.Contains(t, restricted.Message, "2 dependent")

	_, err = f.repo.GetByID(f.ctx, owner.ID)
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(f.ctx, first.ID))
	require.NoError(t, f.repo.Delete(f.ctx, second.ID))
	require.NoError(t, f.repo.Delete(f.ctx, owner.ID))

	_, err = f.repo.GetByID(f.ctx, owner.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, f.repo.Delete(f.ctx, owner.ID), models.ErrNotFound)
}

func TestOpenedIndex(t *testing.T) {
	f := newFixture(t, Options{OpenedIndexLimit: 2})

	quiet := f.owner(alice, bob, false)
	f.member(quiet, carol, false)
	active := f.owner(alice, bob, false)
	f.member(active, carol, true)
	first := f.owner(alice, bob, true)
	second := f.owner(alice, bob, true)

	got, err := f.repo.OpenedIndex(alice, 0).IDs(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{second.ID, first.ID}, got)

	got, err = f.repo.OpenedIndex(alice, 5).IDs(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{second.ID, first.ID, active.ID}, got)

	got, err = f.repo.UnopenedIndex(alice).IDs(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{active.ID, quiet.ID}, got)
}

func newMockRepository(t *testing.T) (*PostgresNotificationRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return NewPostgresNotificationRepository(db, Options{}), mock
}

func TestRepository_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset by peer")
	owner := &models.Notification{ID: 1, Target: alice}

	tests := []struct {
		name string
		exec bool
		call func(r *PostgresNotificationRepository) error
	}{
		{"get", false, func(r *PostgresNotificationRepository) error {
			_, err := r.GetByID(context.Background(), 1)
			return err
		}},
		{"member counts", false, func(r *PostgresNotificationRepository) error {
			_, err := r.UnopenedGroupMemberCount(context.Background(), owner)
			return err
		}},
		{"notifier counts", false, func(r *PostgresNotificationRepository) error {
			_, err := r.OpenedGroupMemberNotifierCount(context.Background(), owner, 0)
			return err
		}},
		{"latest", false, func(r *PostgresNotificationRepository) error {
			_, err := r.UnopenedIndex(alice).Latest(context.Background())
			return err
		}},
		{"uniq keys", false, func(r *PostgresNotificationRepository) error {
			_, err := r.Query(FilteredByTarget(alice)).UniqKeys(context.Background())
			return err
		}},
		{"cache", false, func(r *PostgresNotificationRepository) error {
			_, err := r.NewGroupCountCache().GroupNotificationCount(context.Background(), owner, 0)
			return err
		}},
		{"open all", true, func(r *PostgresNotificationRepository) error {
			_, err := r.OpenAll(context.Background(), alice)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			if tt.exec {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE").WillReturnError(boom)
				mock.ExpectRollback()
			} else {
				mock.ExpectQuery("SELECT").WillReturnError(boom)
			}

			err := tt.call(repo)
			assert.ErrorIs(t, err, boom)
			assert.NotErrorIs(t, err, models.ErrNotFound)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func ownerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "target_type", "target_id", "notifiable_type", "notifiable_id", "key", "group_owner_id", "opened_at"}).
		AddRow(1, models.UserType, "1", models.CommentType, "1", "comment.reply", nil, nil)
}

func TestOpen_RollsBackWhenMembersFail(t *testing.T) {
	repo, mock := newMockRepository(t)
	boom := errors.New("statement timeout")

	mock.ExpectQuery("SELECT").WillReturnRows(ownerRows())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE").WillReturnError(boom)
	mock.ExpectRollback()

	changed, err := repo.Open(context.Background(), 1, time.Now(), true)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_CommitsOwnerAndMembersTogether(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT").WillReturnRows(ownerRows())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	changed, err := repo.Open(context.Background(), 1, time.Now(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_ForeignKeyViolationIsRestricted(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT").WillReturnRows(ownerRows())
	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE").WillReturnError(&pgconn.PgError{
		Code:    "23503",
		Message: "update or delete on table \"notifications\" violates foreign key constraint",
	})
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 1)
	require.ErrorIs(t, err, models.ErrDeletionRestricted)

	var restricted *models.DeletionRestrictedError
	require.True(t, errors.As(err, &restricted))
	assert.Contains(t, restricted.Message, "dependent group member")
	assert.NoError(t, mock.ExpectationsWereMet())
}
