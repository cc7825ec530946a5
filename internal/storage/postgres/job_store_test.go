package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/job"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock, "jobs")
	require.NoError(t, err)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func sampleRecord() job.Record {
	return job.NewRecord("job-1", job.Request{
		URL:    "https://example.com",
		Mode:   crawler.ModeAuto,
		Format: job.FormatPDF,
		Config: crawler.DefaultCrawlConfig(),
	}, fixedNow)
}

func recordJSON(t *testing.T, rec job.Record) []byte {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return data
}

func TestNewJobStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewJobStoreWithPool(nil, "jobs")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewJobStoreWithPool(mock, "jobs; DROP TABLE x")
	require.Error(t, err)

	store, err := NewJobStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRecord()
	insert := regexp.QuoteMeta("INSERT INTO jobs (job_id, record, updated_at)")

	mock.ExpectExec(insert).
		WithArgs("job-1", recordJSON(t, rec), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Create(context.Background(), rec))

	mock.ExpectExec(insert).
		WithArgs("job-1", pgxmock.AnyArg(), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.ErrorIs(t, store.Create(context.Background(), rec), job.ErrExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRecord()
	query := regexp.QuoteMeta("SELECT record FROM jobs WHERE job_id = $1")

	mock.ExpectQuery(query).WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(recordJSON(t, rec)))
	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", got.ID)
	require.Equal(t, job.StatusPending, got.Status)
	require.Equal(t, crawler.DefaultMaxURLs, got.Request.Config.MaxURLs)

	mock.ExpectQuery(query).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, job.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCommits(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM jobs WHERE job_id = $1 FOR UPDATE")).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(recordJSON(t, rec)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET record = $2, updated_at = $3 WHERE job_id = $1")).
		WithArgs("job-1", pgxmock.AnyArg(), fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	got, err := store.Update(context.Background(), "job-1", func(r *job.Record) error {
		return r.Transition(job.StatusAnalyzing, fixedNow)
	})
	require.NoError(t, err)
	require.Equal(t, job.StatusAnalyzing, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRecord()
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT record FROM jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(recordJSON(t, rec)))
	mock.ExpectRollback()

	got, err := store.Update(context.Background(), "job-1", func(r *job.Record) error {
		r.AddPage(crawler.PageRecord{URL: "https://example.com"})
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, got.Pages)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT record FROM jobs").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	_, err = store.Update(context.Background(), "missing", func(*job.Record) error { return nil })
	require.ErrorIs(t, err, job.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewJobStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres: connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}
