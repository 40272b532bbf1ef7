package project_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"refbook/features/project"
)

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := project.NewPostgresRepo(db)

	p := &project.Project{ID: "p1", Name: "Research", Description: "notes"}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects (id, name, description) VALUES ($1, $2, $3) RETURNING created_at, updated_at")).
		WithArgs("p1", "Research", "notes").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	err = repo.Create(context.Background(), p)
	assert.NoError(t, err)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := project.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow("p1", "Research", "notes", time.Now(), time.Now())
		mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).
			WithArgs("p1").
			WillReturnRows(rows)

		p, err := repo.Get(context.Background(), "p1")
		assert.NoError(t, err)
		assert.Equal(t, "Research", p.Name)
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, project.ErrNotFound)
	})
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := project.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
		AddRow("p2", "Newest", "", time.Now(), time.Now()).
		AddRow("p1", "Oldest", "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WillReturnRows(rows)

	projects, err := repo.List(context.Background())
	assert.NoError(t, err)
	assert.Len(t, projects, 2)
	assert.Equal(t, "Newest", projects[0].Name)
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := project.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects WHERE id = $1")).
			WithArgs("p1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "p1"))
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects WHERE id = $1")).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), project.ErrNotFound)
	})
}
