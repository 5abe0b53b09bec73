package export

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svnlab/easy-file/errors"
)

func TestFindRecordByIDStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM export_record WHERE id = ?").
		WillReturnError(errors.New("disk I/O error"))

	store := NewStore(db)
	_, err = store.FindRecordByID(42)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrRecordNotFound), "store failure is not a not-found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshStatusStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE export_record").
		WillReturnError(errors.New("database is locked"))

	store := NewStore(db)
	_, err = store.RefreshStatus(42, StatusPending, StatusExecuting, "worker")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeUploadInfoStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE export_record SET").
		WillReturnError(errors.New("database is locked"))

	store := NewStore(db)
	status := StatusFailed
	_, err = store.ChangeUploadInfo(42, UploadInfoChange{Status: &status})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
