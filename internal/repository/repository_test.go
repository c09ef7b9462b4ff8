package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithDB(mock), mock
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO embeddings").
		WithArgs("scenario-1", "combined", int64(7), 42.5, false, 3, 1.5, 20.0, 2, 1,
			[]byte(`{"nodes":2}`), []byte("result")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("00000000-0000-0000-0000-000000000001", now))

	emb := &Embedding{
		Scenario:         "scenario-1",
		Objective:        "combined",
		Seed:             7,
		ObjectiveValue:   42.5,
		ChangedInstances: 3,
		InitTimeMs:       1.5,
		RuntimeMs:        20.0,
		NodeCount:        2,
		TemplateCount:    1,
		RequestData:      []byte(`{"nodes":2}`),
		ResultData:       []byte("result"),
	}
	require.NoError(t, store.Create(context.Background(), emb))
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", emb.ID)
	assert.Equal(t, now, emb.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEmbeddingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, scenario, objective").
		WithArgs("scenario-1", 50, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "scenario", "objective", "objective_value", "infeasible",
			"changed_instances", "runtime_ms", "created_at",
		}).AddRow("id-1", "scenario-1", "combined", 10.0, false, 2, 15.0, now))

	summaries, err := store.List(context.Background(), &ListOptions{Scenario: "scenario-1"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "id-1", summaries[0].ID)
	assert.InDelta(t, 10.0, summaries[0].ObjectiveValue, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM embeddings").
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Delete(context.Background(), "id-1"))

	mock.ExpectExec("DELETE FROM embeddings").
		WithArgs("id-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.Delete(context.Background(), "id-2"), ErrEmbeddingNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
