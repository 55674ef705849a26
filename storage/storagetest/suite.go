// Package storagetest 提供各仓储实现共用的契约测试
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/errors"
	"qcaudit/sampling"
	"qcaudit/tolerance"
)

// NewRecord 构造一条已推导的测试记录
func NewRecord(t *testing.T, id int64, day int, order string, majors int) *audit.Record {
	t.Helper()
	rec, err := audit.NewRecord(id, audit.Header{
		Customer:       audit.Customer{ID: "cust-1", Name: "North Buyer"},
		Supplier:       "Supplier A",
		Factory:        "Factory 3",
		InspectionDate: time.Date(2026, 6, day, 0, 0, 0, 0, time.UTC),
		OrderNo:        order,
		StyleNo:        "ST-" + order,
		Color:          "Navy",
		Cartons: audit.Cartons{
			Total:       40,
			Selected:    6,
			GrossWeight: decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
		},
		Checklist: audit.Checklist{Workmanship: audit.CheckPass, HandFeel: audit.CheckNA},
		CreatedBy: "qa.wang",
	}, audit.Inputs{TotalOrderQty: 2000, Standard: sampling.StandardNormal, Attempt: audit.FirstAttempt})
	require.NoError(t, err)
	rec.Rederive(audit.OpCreate)
	if majors > 0 {
		e, err := audit.NewDefectEntry("skipped stitch", audit.Major, majors, "img://d1")
		require.NoError(t, err)
		_, err = rec.AddDefect(e)
		require.NoError(t, err)
	}
	sc, err := audit.NewSizeCheck("M", 500, 495)
	require.NoError(t, err)
	require.NoError(t, rec.SetSizeChecks([]audit.SizeCheck{sc}))
	row := tolerance.Row{POM: "Chest", Tol: tolerance.Value(1), Std: tolerance.Value(52), SizeName: "M"}
	row.Readings[0] = tolerance.Value(52.5)
	rec.SetMeasurements([]audit.Measurement{audit.NewMeasurement(row)})
	rec.SetImages([]audit.ImageRef{{ID: "img-1", Ref: "s3://bucket/1.jpg", Caption: "Carton", Order: 1}})
	rec.ClearDomainEvents()
	return rec
}

// Run 对仓储实现执行全部契约用例
func Run(t *testing.T, newRepo func(t *testing.T) repository.IAuditRepository) {
	t.Run("CreateGetRoundTrip", func(t *testing.T) { testRoundTrip(t, newRepo(t)) })
	t.Run("OptimisticVersion", func(t *testing.T) { testVersion(t, newRepo(t)) })
	t.Run("DeleteAndExists", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("Query", func(t *testing.T) { testQuery(t, newRepo(t)) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newRepo(t)) })
}

func testRoundTrip(t *testing.T, repo repository.IAuditRepository) {
	ctx := context.Background()
	rec := NewRecord(t, 101, 2, "PO-1", 6)
	require.NoError(t, repo.Create(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := repo.GetByID(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, rec.Header.OrderNo, got.Header.OrderNo)
	assert.True(t, rec.Header.InspectionDate.Equal(got.Header.InspectionDate))
	assert.True(t, got.Header.Cartons.GrossWeight.Valid)
	assert.True(t, got.Header.Cartons.GrossWeight.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, rec.Inputs(), got.Inputs())
	assert.Equal(t, rec.Derived().SampleSize, got.Derived().SampleSize)
	assert.Equal(t, rec.Derived().Limits, got.Derived().Limits)
	assert.Equal(t, rec.Derived().Found, got.Derived().Found)
	assert.Equal(t, audit.Fail, got.Result())
	assert.Equal(t, rec.Entries(), got.Entries())
	assert.Equal(t, rec.SizeChecks(), got.SizeChecks())
	assert.Equal(t, rec.Images(), got.Images())
	require.Len(t, got.Measurements(), 1)
	assert.Equal(t, "Chest", got.Measurements()[0].POM)
	assert.True(t, got.Measurements()[0].Readings[0].Decimal.Equal(decimal.RequireFromString("52.5")))
	assert.False(t, got.Measurements()[0].Readings[1].Valid)
	assert.Equal(t, int64(1), got.Version)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, errors.IsNotFound(err))

	err = repo.Create(ctx, NewRecord(t, 101, 2, "PO-dup", 0))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConflict))
}

func testVersion(t *testing.T, repo repository.IAuditRepository) {
	ctx := context.Background()
	rec := NewRecord(t, 201, 3, "PO-2", 0)
	require.NoError(t, repo.Create(ctx, rec))

	a, err := repo.GetByID(ctx, 201)
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, 201)
	require.NoError(t, err)

	e, err := audit.NewDefectEntry("stain", audit.Minor, 2, "")
	require.NoError(t, err)
	_, err = a.AddDefect(e)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	// b 持有旧版本，更新必须失败
	err = b.SetInputs(audit.Inputs{TotalOrderQty: 10})
	require.NoError(t, err)
	err = repo.Update(ctx, b)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConflict))

	got, err := repo.GetByID(ctx, 201)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Derived().Found.Minor)
	assert.Equal(t, 2000, got.Inputs().TotalOrderQty)

	err = repo.Update(ctx, NewRecord(t, 202, 3, "PO-none", 0))
	assert.True(t, errors.IsNotFound(err))
}

func testDelete(t *testing.T, repo repository.IAuditRepository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewRecord(t, 301, 4, "PO-3", 1)))
	require.NoError(t, repo.Create(ctx, NewRecord(t, 302, 4, "PO-4", 0)))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, repo.Delete(ctx, 301))
	ok, err := repo.Exists(ctx, 301)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.Exists(ctx, 302)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, errors.IsNotFound(repo.Delete(ctx, 301)))
	_, err = repo.GetByID(ctx, 301)
	assert.True(t, errors.IsNotFound(err))
}

func testQuery(t *testing.T, repo repository.IAuditRepository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewRecord(t, 401, 1, "PO-A", 0)))
	require.NoError(t, repo.Create(ctx, NewRecord(t, 402, 5, "PO-B", 9)))
	require.NoError(t, repo.Create(ctx, NewRecord(t, 403, 5, "PO-C", 0)))
	require.NoError(t, repo.Create(ctx, NewRecord(t, 404, 9, "XY-D", 0)))

	all, err := repo.Query(ctx, repository.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{404, 403, 402, 401}, idsOf(all))

	fails, err := repo.Query(ctx, repository.Filter{Results: []audit.Result{audit.Fail}})
	require.NoError(t, err)
	assert.Equal(t, []int64{402}, idsOf(fails))

	ranged, err := repo.Query(ctx, repository.Filter{
		From: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{403, 402}, idsOf(ranged))

	searched, err := repo.Query(ctx, repository.Filter{Search: "po-"})
	require.NoError(t, err)
	assert.Equal(t, []int64{403, 402, 401}, idsOf(searched))

	paged, err := repo.Query(ctx, repository.Filter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{403, 402}, idsOf(paged))

	none, err := repo.Query(ctx, repository.Filter{CustomerID: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testIsolation(t *testing.T, repo repository.IAuditRepository) {
	ctx := context.Background()
	rec := NewRecord(t, 501, 6, "PO-5", 0)
	require.NoError(t, repo.Create(ctx, rec))

	// 未持久化的修改不应泄漏到存储
	e, err := audit.NewDefectEntry("hole", audit.Critical, 1, "")
	require.NoError(t, err)
	_, err = rec.AddDefect(e)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Derived().Found.Critical)
	assert.Equal(t, audit.Pass, got.Result())
}

func idsOf(recs []*audit.Record) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
