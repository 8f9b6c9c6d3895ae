package data

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (MediaModel, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return MediaModel{DB: db}, mock
}

func TestMarkProcessingFromPending(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE media_assets").
		WithArgs(id, MediaStatusProcessing, MediaStatusPending, MediaStatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.MarkProcessing(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessingFromCompletedRejected(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	// Completed rows never match the status guard: zero rows affected.
	mock.ExpectExec("UPDATE media_assets").
		WithArgs(id, MediaStatusProcessing, MediaStatusPending, MediaStatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := m.MarkProcessing(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedRequiresProcessing(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE media_assets").
		WithArgs(id, MediaStatusCompleted, MediaStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := m.MarkCompleted(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRecordsCause(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE media_assets").
		WithArgs(id, MediaStatusFailed, "decode error", MediaStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.MarkFailed(context.Background(), id, "decode error"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesRow(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM media_assets").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.Delete(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRow(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM media_assets").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, m.Delete(context.Background(), id), ErrRecordNotFound)
}

func TestGetByIDNotFound(t *testing.T) {
	m, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM media_assets").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := m.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
