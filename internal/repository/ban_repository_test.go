package repository

import (
    "context"
    "database/sql"
    "regexp"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/require"
)

const liftUpdate = `UPDATE visitor_bans SET is_active = 0 WHERE id = ? AND user_id = ? AND is_active = 1`
const liftOwnerSelect = `SELECT user_id FROM visitor_bans WHERE id = ?`

func newBanRepoMock(t *testing.T) (*BanRepo, sqlmock.Sqlmock) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })
    return NewBanRepo(db), mock
}

func TestLiftOwnedActiveBan(t *testing.T) {
    repo, mock := newBanRepoMock(t)

    // The ownership condition rides inside the UPDATE itself, so the
    // single statement both checks and deactivates.
    mock.ExpectExec(regexp.QuoteMeta(liftUpdate)).
        WithArgs(uint64(7), uint64(3)).
        WillReturnResult(sqlmock.NewResult(0, 1))

    require.NoError(t, repo.Lift(context.Background(), 7, 3))
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestLiftForeignBanForbidden(t *testing.T) {
    repo, mock := newBanRepoMock(t)

    mock.ExpectExec(regexp.QuoteMeta(liftUpdate)).
        WithArgs(uint64(7), uint64(3)).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta(liftOwnerSelect)).
        WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(uint64(9)))

    err := repo.Lift(context.Background(), 7, 3)
    require.ErrorIs(t, err, ErrForbidden)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestLiftMissingBan(t *testing.T) {
    repo, mock := newBanRepoMock(t)

    mock.ExpectExec(regexp.QuoteMeta(liftUpdate)).
        WithArgs(uint64(7), uint64(3)).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta(liftOwnerSelect)).
        WithArgs(uint64(7)).
        WillReturnError(sql.ErrNoRows)

    err := repo.Lift(context.Background(), 7, 3)
    require.ErrorIs(t, err, sql.ErrNoRows)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestLiftTwiceIsIdempotent(t *testing.T) {
    repo, mock := newBanRepoMock(t)

    mock.ExpectExec(regexp.QuoteMeta(liftUpdate)).
        WithArgs(uint64(7), uint64(3)).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta(liftOwnerSelect)).
        WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(uint64(3)))

    require.NoError(t, repo.Lift(context.Background(), 7, 3))
    require.NoError(t, mock.ExpectationsWereMet())
}
