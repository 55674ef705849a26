package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/errors"
	"qcaudit/storage/storagetest"
)

func openTestDB(t *testing.T) *AuditRepository {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAuditRepository(db)
}

func TestAuditRepository_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) repository.IAuditRepository {
		return openTestDB(t)
	})
}

func TestAuditRepository_InMemoryDSN(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)
	rec := storagetest.NewRecord(t, 7, 1, "PO-MEM", 2)
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Query(ctx, repository.Filter{Search: "mem"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Entries(), 1)
}

func TestAuditRepository_LikeEscape(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	require.NoError(t, repo.Create(ctx, storagetest.NewRecord(t, 1, 1, "PO_100", 0)))
	require.NoError(t, repo.Create(ctx, storagetest.NewRecord(t, 2, 1, "PO-100", 0)))

	got, err := repo.Query(ctx, repository.Filter{Search: "po_"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestAuditRepository_CommitFailureKeepsVersion(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	failCommit := func(tx *sql.Tx) error {
		return stderrors.New("disk I/O error")
	}

	rec := storagetest.NewRecord(t, 1, 1, "PO-TX", 0)
	repo.commit = failCommit
	err := repo.Create(ctx, rec)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDatabase))
	assert.Equal(t, int64(0), rec.Version)

	repo.commit = (*sql.Tx).Commit
	require.NoError(t, repo.Create(ctx, rec))
	require.Equal(t, int64(1), rec.Version)

	_, err = rec.AddDefect(audit.DefectEntry{Severity: audit.Major, Count: 2})
	require.NoError(t, err)
	repo.commit = failCommit
	err = repo.Update(ctx, rec)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDatabase))
	assert.Equal(t, int64(1), rec.Version)

	stored, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Zero(t, stored.Derived().Found.Major)

	// 重试不会产生虚假的版本冲突
	repo.commit = (*sql.Tx).Commit
	require.NoError(t, repo.Update(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)
}

func TestSelectBuilder(t *testing.T) {
	q, args := newSelect("id").From("audits").
		Where("a = ?", 1).
		WhereIn("result", []any{"Pass", "Fail"}).
		WhereIn("empty", nil).
		OrderBy("id DESC").Offset(5).Build()
	assert.Equal(t, "SELECT id FROM audits WHERE a = ? AND result IN (?,?) ORDER BY id DESC LIMIT -1 OFFSET 5", q)
	assert.Equal(t, []any{1, "Pass", "Fail"}, args)

	q, _ = newSelect().From("t").Limit(3).Build()
	assert.Equal(t, "SELECT * FROM t LIMIT 3", q)
}
