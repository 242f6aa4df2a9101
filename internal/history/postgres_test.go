package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestCreateTables(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS load_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.CreateTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunAssignsID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO load_runs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &Run{
		Profile:       "simple",
		StartedAt:     time.Now().Add(-time.Minute),
		FinishedAt:    time.Now(),
		Users:         10,
		TotalRequests: 1000,
		TotalFailures: 5,
		FailureRate:   0.5,
		P95ResponseMS: 120,
		TotalRPS:      16.7,
	}
	require.NoError(t, store.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID, "missing id gets a generated uuid")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "profile", "started_at", "finished_at", "users", "total_requests",
		"total_failures", "failure_rate", "p95_response_ms", "total_rps", "notes",
	}).
		AddRow("id-2", "simple", now, now, 10, 2000, 0, 0.0, 90.0, 33.3, "").
		AddRow("id-1", "structured", now.Add(-time.Hour), now.Add(-time.Hour), 5, 500, 10, 2.0, 150.0, 8.3, "baseline")

	mock.ExpectQuery(regexp.QuoteMeta("FROM load_runs ORDER BY started_at DESC LIMIT")).
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "id-2", runs[0].ID)
	assert.Equal(t, "baseline", runs[1].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM load_runs WHERE id =")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
