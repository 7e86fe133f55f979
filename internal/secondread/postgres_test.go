package secondread

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirads-audit-server/internal/domain"
)

var readingRowColumns = []string{
	"id", "case_id", "reader_username", "status", "original_category",
	"second_category", "agreement", "comments", "created_at", "completed_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, store.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return store, mock
}

func TestNewPostgresStore_RequiresDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO second_readings")).
		WithArgs(sqlmock.AnyArg(), "case-1", "dr.kaya", "pending", "LR-4", "", "", "", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r := &Reading{CaseID: "case-1", ReaderUsername: "dr.kaya", OriginalCategory: "LR-4"}
	require.NoError(t, store.Create(context.Background(), r))
	assert.NotEmpty(t, r.ID)
}

func TestPostgresStore_Create_DuplicatePending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO second_readings")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.Create(context.Background(), &Reading{CaseID: "case-1", ReaderUsername: "dr.kaya"})
	assert.ErrorIs(t, err, ErrDuplicatePending)
}

func TestPostgresStore_Complete(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := created.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE second_readings SET")).
		WithArgs("completed", "disagree", "LR-3", "Washout not convincing", sqlmock.AnyArg(), "r-1", "pending").
		WillReturnRows(sqlmock.NewRows(readingRowColumns).
			AddRow("r-1", "case-1", "dr.kaya", "completed", "LR-4", "LR-3", "disagree",
				"Washout not convincing", created, completed))

	r, err := store.Complete(context.Background(), "r-1", Completion{
		Agreement:      AgreementDisagree,
		SecondCategory: "LR-3",
		Comments:       "Washout not convincing",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, AgreementDisagree, r.Agreement)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, completed, *r.CompletedAt)
}

func TestPostgresStore_Complete_AlreadyCompleted(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE second_readings SET")).
		WillReturnRows(sqlmock.NewRows(readingRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM second_readings")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(readingRowColumns).
			AddRow("r-1", "case-1", "dr.kaya", "completed", "", "", "agree", "", created, created))

	_, err := store.Complete(context.Background(), "r-1", Completion{Agreement: AgreementAgree})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestPostgresStore_Complete_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE second_readings SET")).
		WillReturnRows(sqlmock.NewRows(readingRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM second_readings")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(readingRowColumns))

	_, err := store.Complete(context.Background(), "missing", Completion{Agreement: AgreementAgree})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM second_readings")).
		WithArgs("pending", 10).
		WillReturnRows(sqlmock.NewRows(readingRowColumns).
			AddRow("r-2", "case-2", "dr.demir", "pending", "LR-5", "", "", "", created, nil).
			AddRow("r-1", "case-1", "dr.kaya", "pending", "", "", "", "", created, nil))

	readings, err := store.List(context.Background(), StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "r-2", readings[0].ID)
	assert.Nil(t, readings[0].CompletedAt)
}

func TestPostgresStore_ListByCase(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE case_id = $1")).
		WithArgs("case-9").
		WillReturnRows(sqlmock.NewRows(readingRowColumns))

	readings, err := store.ListByCase(context.Background(), "case-9")
	require.NoError(t, err)
	assert.NotNil(t, readings)
	assert.Empty(t, readings)
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM second_readings")).
		WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}
