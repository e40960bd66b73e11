package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

func TestSQLPersister_SaveStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, err := NewSQLPersister(db, DialectPostgres)
	require.NoError(t, err)

	snap := NewSnapshot()
	snap.UIDModes = []UIDEntry{{Op: registry.OpCamera, UID: testUID, Mode: registry.ModeErrored}}
	snap.PackageModes = []PackageEntry{{Op: registry.OpCamera, UID: testUID, Package: testPkg, Mode: registry.ModeIgnored}}
	digest, err := snap.Digest()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM appops_uid_modes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM appops_package_modes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appops_uid_modes (op, uid, mode) VALUES ($1, $2, $3)")).
		WithArgs(registry.OpCamera, testUID, "deny").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appops_package_modes (op, uid, package, mode) VALUES ($1, $2, $3, $4)")).
		WithArgs(registry.OpCamera, testUID, testPkg, "ignore").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO appops_meta").
		WithArgs("version", SnapshotVersion).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO appops_meta").
		WithArgs("digest", digest).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, p.Save(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPersister_SaveRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, err := NewSQLPersister(db, DialectSQLite)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM appops_uid_modes").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	assert.Error(t, p.Save(context.Background(), sampleSnapshot()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPersister_LoadEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, err := NewSQLPersister(db, DialectSQLite)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM appops_meta WHERE name = ?")).
		WithArgs("version").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	snap, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NewSnapshot(), snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPersister_LoadRejectsBadMode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, err := NewSQLPersister(db, DialectSQLite)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM appops_meta").WithArgs("version").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("1.0.0"))
	mock.ExpectQuery("SELECT value FROM appops_meta").WithArgs("digest").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("sha256:00"))
	mock.ExpectQuery("SELECT op, uid, mode FROM appops_uid_modes").
		WillReturnRows(sqlmock.NewRows([]string{"op", "uid", "mode"}).AddRow(registry.OpCamera, testUID, "sometimes"))

	_, err = p.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestSQLPersister_UnsupportedDialect(t *testing.T) {
	_, err := NewSQLPersister(nil, Dialect("oracle"))
	assert.Error(t, err)
}

func openSQLite(t *testing.T) *SQLPersister {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	p, err := NewSQLPersister(db, DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))
	return p
}

func TestSQLPersister_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := openSQLite(t)

	empty, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewSnapshot(), empty)

	require.NoError(t, p.Save(ctx, sampleSnapshot()))
	back, err := p.Load(ctx)
	require.NoError(t, err)

	want := sampleSnapshot()
	want.sort()
	assert.Equal(t, want, back)

	// A second save replaces rather than appends.
	smaller := NewSnapshot()
	smaller.UIDModes = []UIDEntry{{Op: registry.OpWifiScan, UID: 1, Mode: registry.ModeIgnored}}
	require.NoError(t, p.Save(ctx, smaller))
	back, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, smaller, back)
}

func TestSQLPersister_SQLiteDetectsOutOfBandEdits(t *testing.T) {
	ctx := context.Background()
	p := openSQLite(t)
	require.NoError(t, p.Save(ctx, sampleSnapshot()))

	_, err := p.db.ExecContext(ctx, `UPDATE appops_uid_modes SET mode = 'allow'`)
	require.NoError(t, err)

	_, err = p.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestSQLPersister_Rebind(t *testing.T) {
	pg := &SQLPersister{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLPersister{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
