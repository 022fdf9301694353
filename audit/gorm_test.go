package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

func setupSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Entry{}))
	store, err := NewGormStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func setupMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store, err := NewGormStore(db, nil)
	require.NoError(t, err)
	return store, mock
}

func TestNewGormStore_NilDB(t *testing.T) {
	_, err := NewGormStore(nil, nil)
	assert.Error(t, err)
}

func TestGormStore_Contract(t *testing.T) {
	runStoreContract(t, setupSQLiteStore(t))
}

func TestGormStore_LedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	ledger, err := NewLedger(ctx, store, zap.NewNop())
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ledger.Record(ctx, explanation(id, consensus.VoteApprove, false)))
	}

	reopened, err := NewLedger(ctx, store, zap.NewNop())
	require.NoError(t, err)
	seq, hash := reopened.Head()
	assert.Equal(t, uint64(3), seq)

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.Hash, hash)

	report, err := reopened.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Entries)
}

func TestGormStore_AppendFailure(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "audit_entries"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	e := chain(t, 1)[0]
	err := store.Append(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert audit entry 1")
}

func TestGormStore_QueryFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		store, mock := setupMockStore(t)
		mock.ExpectQuery(`SELECT count\(\*\) FROM "audit_entries"`).WillReturnError(errors.New("timeout"))
		_, err := store.Count(ctx)
		assert.Error(t, err)
	})

	t.Run("last", func(t *testing.T) {
		store, mock := setupMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "audit_entries"`).WillReturnError(errors.New("timeout"))
		_, err := store.Last(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("ledger open", func(t *testing.T) {
		store, mock := setupMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "audit_entries"`).WillReturnError(errors.New("timeout"))
		_, err := NewLedger(ctx, store, nil)
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrAuditFailed))
	})
}
