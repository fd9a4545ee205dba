package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0      = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	grace   = 10 * time.Second
	columns = []string{"id", "user_id", "token_hash", "expires_at", "device_label", "created_at", "last_used_at", "revoked_at"}
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("raw-token")
	h2 := HashToken("raw-token")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, HashToken("raw-token2"))
	assert.NotContains(t, h1, "raw-token")
	assert.Len(t, h1, 43)
	// base64url without padding
	assert.Equal(t, "ungWv48Bz-pBQUDeXa4iI7ADYaOWF3qctBD_YfIAFa0", HashToken("abc"))
}

func TestCreate_StoresHashOnly(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(id, user_id, token_hash, expires_at, device_label, created_at, last_used_at\).*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*$`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "u1", HashToken("raw"), t0.Add(time.Hour), "laptop", t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), "u1", "raw", t0.Add(time.Hour), "laptop", t0)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, HashToken("raw"), got.TokenHash)
	assert.Equal(t, t0, got.LastUsedAt)
	assert.Nil(t, got.RevokedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_EmptyDeviceIsNull(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).
		WithArgs(sqlmock.AnyArg(), "u1", HashToken("raw"), t0.Add(time.Hour), nil, t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Create(context.Background(), "u1", "raw", t0.Add(time.Hour), "", t0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), "u1", "raw", t0, "", t0)
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindActiveByHash_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id, user_id, token_hash, expires_at, device_label, created_at, last_used_at, revoked_at\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2\s+AND\s+\(revoked_at IS NULL OR revoked_at\s*>\s*\$3\)\s*$`

	revoked := t0.Add(-3 * time.Second)
	rows := sqlmock.NewRows(columns).
		AddRow("id1", "u1", HashToken("raw"), t0.Add(time.Hour), "phone", t0.Add(-time.Hour), t0.Add(-time.Minute), revoked)

	mock.ExpectQuery(q).
		WithArgs(HashToken("raw"), t0, t0.Add(-grace)).
		WillReturnRows(rows)

	got, err := repo.FindActiveByHash(context.Background(), "raw", t0, grace)
	require.NoError(t, err)
	assert.Equal(t, "id1", got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "phone", got.DeviceLabel)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(revoked))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByHash_NullColumns(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columns).
		AddRow("id1", "u1", HashToken("raw"), t0.Add(time.Hour), nil, t0, t0, nil)
	mock.ExpectQuery(`SELECT`).WillReturnRows(rows)

	got, err := repo.FindActiveByHash(context.Background(), "raw", t0, grace)
	require.NoError(t, err)
	assert.Empty(t, got.DeviceLabel)
	assert.Nil(t, got.RevokedAt)
}

func TestFindActiveByHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByHash(context.Background(), "missing", t0, grace)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindActiveByHash_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("db err"))

	_, err := repo.FindActiveByHash(context.Background(), "raw", t0, grace)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestTouch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+last_used_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectExec(q).WithArgs("id1", t0).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Touch(context.Background(), "id1", t0))

	mock.ExpectExec(q).WithArgs("id1", t0).WillReturnError(errors.New("db err"))
	require.ErrorContains(t, repo.Touch(context.Background(), "id1", t0), "db err")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke_OnlyMovesEarlier(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+\(revoked_at IS NULL OR revoked_at > \$2\)\s*$`

	mock.ExpectExec(q).WithArgs("id1", t0).WillReturnResult(sqlmock.NewResult(0, 1))
	// a later stamp matches nothing and is still a success
	mock.ExpectExec(q).WithArgs("id1", t0.Add(time.Second)).WillReturnResult(sqlmock.NewResult(0, 0))
	// a hard revoke pulls the stamp back before the grace window
	mock.ExpectExec(q).WithArgs("id1", t0.Add(-grace)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "id1", t0))
	require.NoError(t, repo.Revoke(context.Background(), "id1", t0.Add(time.Second)))
	require.NoError(t, repo.Revoke(context.Background(), "id1", t0.Add(-grace)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+refresh_tokens`).WillReturnError(errors.New("db err"))
	err := repo.Revoke(context.Background(), "id1", t0)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked_at\s*=\s*\$2\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+\(revoked_at IS NULL OR revoked_at > \$2\)\s*$`
	mock.ExpectExec(q).WithArgs("u1", t0).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllForUser(context.Background(), "u1", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)WHERE\s+id\s*=\s*\$1.*revoked_at > \$3\)\s+FOR\s+UPDATE\s*$`
	rows := sqlmock.NewRows(columns).
		AddRow("id1", "u1", "h1", t0.Add(time.Hour), nil, t0, t0, nil)
	mock.ExpectQuery(q).WithArgs("id1", t0, t0.Add(-grace)).WillReturnRows(rows)
	mock.ExpectQuery(q).WithArgs("id2", t0, t0.Add(-grace)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("id3", t0, t0.Add(-grace)).WillReturnError(errors.New("db err"))

	got, err := repo.LockActive(context.Background(), "id1", t0, grace)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = repo.LockActive(context.Background(), "id2", t0, grace)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.LockActive(context.Background(), "id3", t0, grace)
	require.ErrorContains(t, err, "db error: db err")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)WHERE\s+user_id\s*=\s*\$1.*ORDER\s+BY\s+last_used_at\s+DESC`
	rows := sqlmock.NewRows(columns).
		AddRow("id1", "u1", "h1", t0.Add(time.Hour), "laptop", t0, t0, nil).
		AddRow("id2", "u1", "h2", t0.Add(time.Hour), nil, t0, t0.Add(-time.Minute), nil)
	mock.ExpectQuery(q).WithArgs("u1", t0, t0.Add(-grace)).WillReturnRows(rows)

	got, err := repo.ListActiveForUser(context.Background(), "u1", t0, grace)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id1", got[0].ID)
	assert.Equal(t, "laptop", got[0].DeviceLabel)
	assert.Equal(t, "id2", got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveForUser_RowError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columns).
		AddRow("id1", "u1", "h1", t0.Add(time.Hour), nil, t0, t0, nil).
		RowError(0, errors.New("row broke"))
	mock.ExpectQuery(`SELECT`).WillReturnRows(rows)

	_, err := repo.ListActiveForUser(context.Background(), "u1", t0, grace)
	require.ErrorContains(t, err, "row broke")
}

func TestSweep(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1\s+AND\s+\(revoked_at IS NULL OR revoked_at\s*<=\s*\$2\)\s*$`
	mock.ExpectExec(q).WithArgs(t0, t0.Add(-grace)).WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.Sweep(context.Background(), t0, grace)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	mock.ExpectExec(q).WillReturnError(errors.New("db err"))
	_, err = repo.Sweep(context.Background(), t0, grace)
	require.ErrorContains(t, err, "db err")

	require.NoError(t, mock.ExpectationsWereMet())
}
