package share_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"refbook/features/share"
)

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := share.NewPostgresRepo(db)

	s := &share.Session{ID: "abcd1234", ProjectID: "p1", Name: "Research"}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO share_sessions (id, project_id, name) VALUES ($1, $2, $3) RETURNING created_at")).
		WithArgs("abcd1234", "p1", "Research").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	err = repo.Create(context.Background(), s)
	assert.NoError(t, err)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := share.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "project_id", "name", "created_at"}).
			AddRow("abcd1234", "p1", "Research", time.Now())
		mock.ExpectQuery(regexp.QuoteMeta("FROM share_sessions WHERE id = $1")).
			WithArgs("abcd1234").
			WillReturnRows(rows)

		s, err := repo.Get(context.Background(), "abcd1234")
		assert.NoError(t, err)
		assert.Equal(t, "p1", s.ProjectID)
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM share_sessions WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, share.ErrNotFound)
	})
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := share.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM share_sessions WHERE id = $1")).
			WithArgs("abcd1234").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "abcd1234"))
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM share_sessions WHERE id = $1")).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), share.ErrNotFound)
	})
}

func TestPostgresRepo_ListByProject(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := share.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "project_id", "name", "created_at"}).
		AddRow("new12345", "p1", "Newest", time.Now()).
		AddRow("old12345", "p1", "Oldest", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM share_sessions WHERE project_id = $1 ORDER BY created_at DESC")).
		WithArgs("p1").
		WillReturnRows(rows)

	sessions, err := repo.ListByProject(context.Background(), "p1")
	assert.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, "new12345", sessions[0].ID)
}
