package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/messaging"
	syncx "qcaudit/messaging/transport/sync"
	"qcaudit/patterns/retry"
	"qcaudit/sampling"
	"qcaudit/storage/memory"
	"qcaudit/tolerance"
)

type recorder struct {
	mu      sync.Mutex
	derived []audit.DerivedEvent
	deleted []audit.DeletedEvent
}

func (r *recorder) handler() messaging.IMessageHandler {
	return messaging.NewHandler("recorder", func(_ context.Context, m messaging.IMessage) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		switch m.GetType() {
		case audit.EventDerived:
			var e audit.DerivedEvent
			if err := messaging.DecodePayload(m, &e); err != nil {
				return err
			}
			r.derived = append(r.derived, e)
		case audit.EventDeleted:
			var e audit.DeletedEvent
			if err := messaging.DecodePayload(m, &e); err != nil {
				return err
			}
			r.deleted = append(r.deleted, e)
		}
		return nil
	})
}

func (r *recorder) derivedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.derived)
}

type fixture struct {
	svc  *AuditService
	repo *memory.AuditRepository
	rec  *recorder
	logs *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := syncx.NewSyncTransport()
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })

	rec := &recorder{}
	require.NoError(t, tr.Subscribe(messaging.WildcardType, rec.handler()))
	bus := messaging.NewMessageBus(tr)

	var seq atomic.Int64
	logs := &bytes.Buffer{}
	repo := memory.NewAuditRepository()
	svc := NewAuditService(repo,
		WithPublisher(bus),
		WithLogger(logging.NewWriterLogger(logs, "test", logging.DebugLevel)),
		WithIDGenerator(func() int64 { return 1000 + seq.Add(1) }),
		WithClock(func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }),
	)
	return &fixture{svc: svc, repo: repo, rec: rec, logs: logs}
}

func header(order string) audit.Header {
	return audit.Header{
		Customer:       audit.Customer{ID: "c1", Name: "Buyer"},
		InspectionDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		OrderNo:        order,
		StyleNo:        "ST-" + order,
	}
}

func defect(t *testing.T, sev audit.Severity, count int) audit.DefectEntry {
	t.Helper()
	e, err := audit.NewDefectEntry("defect", sev, count, "")
	require.NoError(t, err)
	return e
}

func TestAuditService_CreateAndDefectFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, header("PO-1"), audit.Inputs{TotalOrderQty: 2000})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), rec.ID)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, 125, rec.Derived().SampleSize)
	assert.Equal(t, sampling.Limits{Critical: 0, Major: 5, Minor: 10}, rec.Derived().Limits)
	assert.Equal(t, audit.Pass, rec.Result())
	assert.False(t, rec.CreatedAt.IsZero())

	rec, added, err := f.svc.AddDefect(ctx, rec.ID, defect(t, audit.Major, 6))
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, audit.Fail, rec.Result())

	rec, err = f.svc.UpdateDefect(ctx, rec.ID, added.ID, audit.DefectPatch{Count: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, audit.Pass, rec.Result())

	rec, err = f.svc.RemoveDefect(ctx, rec.ID, added.ID)
	require.NoError(t, err)
	assert.Zero(t, rec.Derived().Found.Total())

	stored, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)

	require.Equal(t, 4, f.rec.derivedCount())
	ops := []audit.Op{}
	for _, e := range f.rec.derived {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []audit.Op{audit.OpCreate, audit.OpInsert, audit.OpUpdate, audit.OpDelete}, ops)
	assert.Equal(t, audit.Pass, f.rec.derived[1].PreviousResult)
	assert.Equal(t, audit.Fail, f.rec.derived[1].Result)
	assert.Equal(t, added.ID, f.rec.derived[1].EntryID)
}

func TestAuditService_UpdateInputsAndReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, header("PO-2"), audit.Inputs{TotalOrderQty: 2000})
	require.NoError(t, err)

	rec, err = f.svc.UpdateInputs(ctx, rec.ID, audit.Inputs{TotalOrderQty: 2000, PresentedQty: 40})
	require.NoError(t, err)
	assert.Equal(t, 8, rec.Derived().SampleSize)

	rec, err = f.svc.ReplaceDefects(ctx, rec.ID, []audit.DefectEntry{
		defect(t, audit.Minor, 1),
		defect(t, audit.Minor, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Derived().Found.Minor)
	assert.Equal(t, audit.Fail, rec.Result())
	// 替换只推导一次
	assert.Equal(t, 3, f.rec.derivedCount())

	_, err = f.svc.UpdateInputs(ctx, rec.ID, audit.Inputs{TotalOrderQty: -1})
	assert.True(t, errors.IsValidation(err))
	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Inputs().PresentedQty)
}

func TestAuditService_ConcurrentInsertsSameRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, header("PO-3"), audit.Inputs{TotalOrderQty: 2000})
	require.NoError(t, err)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.AddDefect(ctx, rec.ID, audit.DefectEntry{Description: "stain", Severity: audit.Minor, Count: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, got.Entries(), n)
	assert.Equal(t, n, got.Derived().Found.Minor)
	assert.Equal(t, int64(n+1), got.Version)
	assert.NoError(t, got.Verify())
}

func TestAuditService_ParallelRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const records = 8
	var wg sync.WaitGroup
	for i := 0; i < records; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.svc.Create(ctx, header("PO-P"), audit.Inputs{TotalOrderQty: 100})
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < 5; j++ {
				_, _, err := f.svc.AddDefect(ctx, rec.ID, audit.DefectEntry{Severity: audit.Major, Count: 1})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	all, err := f.svc.List(ctx, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, all, records)
	for _, r := range all {
		assert.Equal(t, 5, r.Derived().Found.Major)
	}
	assert.Zero(t, f.svc.locks.Len())
}

func TestAuditService_LocksReleasedAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		rec, err := f.svc.Create(ctx, header("PO-L"), audit.Inputs{TotalOrderQty: 100})
		require.NoError(t, err)
		_, _, err = f.svc.AddDefect(ctx, rec.ID, defect(t, audit.Minor, 1))
		require.NoError(t, err)
		require.NoError(t, f.svc.Delete(ctx, rec.ID))
	}

	n, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.svc.locks.Len())
}

func TestRecordLocks_SerializesAndReleases(t *testing.T) {
	l := newRecordLocks()
	unlock := l.Lock(7)
	assert.Equal(t, 1, l.Len())

	acquired := make(chan struct{})
	go func() {
		u := l.Lock(7)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, time.Millisecond)
}

func TestAuditService_AddDefectDefaultsCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, header("PO-DC"), audit.Inputs{TotalOrderQty: 2000})
	require.NoError(t, err)

	rec, added, err := f.svc.AddDefect(ctx, rec.ID, audit.DefectEntry{Description: "stain", Severity: audit.Major})
	require.NoError(t, err)
	assert.Equal(t, 1, added.Count)
	assert.Equal(t, 1, rec.Derived().Found.Major)

	rec, err = f.svc.ReplaceDefects(ctx, rec.ID, []audit.DefectEntry{
		{Severity: audit.Minor},
		{Severity: audit.Minor, Count: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Derived().Found.Minor)
	assert.Zero(t, rec.Derived().Found.Major)

	// 显式改为 0 仍被拒绝
	zero := 0
	_, err = f.svc.UpdateDefect(ctx, rec.ID, rec.Entries()[0].ID, audit.DefectPatch{Count: &zero})
	assert.True(t, errors.IsValidation(err))
}

func TestAuditService_SetImagesKeepsCallerSlice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, header("PO-IMG"), audit.Inputs{TotalOrderQty: 10})
	require.NoError(t, err)

	bad := []audit.ImageRef{{Ref: "a.jpg"}, {Ref: ""}}
	_, err = f.svc.SetImages(ctx, rec.ID, bad)
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, bad[0].ID)

	good := []audit.ImageRef{{Ref: "a.jpg", Order: 1}}
	rec, err = f.svc.SetImages(ctx, rec.ID, good)
	require.NoError(t, err)
	assert.Empty(t, good[0].ID)
	require.Len(t, rec.Images(), 1)
	assert.NotEmpty(t, rec.Images()[0].ID)
}

func TestAuditService_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.AddDefect(ctx, 42, defect(t, audit.Minor, 1))
	assert.True(t, errors.IsNotFound(err))

	rec, err := f.svc.Create(ctx, header("PO-4"), audit.Inputs{TotalOrderQty: 10})
	require.NoError(t, err)

	_, _, err = f.svc.AddDefect(ctx, rec.ID, audit.DefectEntry{Severity: audit.Minor, Count: -2})
	assert.True(t, errors.IsValidation(err))
	_, _, err = f.svc.AddDefect(ctx, rec.ID, audit.DefectEntry{Severity: "cosmetic", Count: 1})
	assert.True(t, errors.IsValidation(err))
	_, err = f.svc.RemoveDefect(ctx, rec.ID, "missing")
	assert.True(t, errors.IsNotFound(err))
	_, err = f.svc.SetImages(ctx, rec.ID, []audit.ImageRef{{Caption: "no ref"}})
	assert.True(t, errors.IsValidation(err))

	_, err = f.svc.Create(ctx, header("PO-5"), audit.Inputs{TotalOrderQty: -5})
	assert.True(t, errors.IsValidation(err))

	// 失败的修改不产生事件
	assert.Equal(t, 1, f.rec.derivedCount())
}

func TestAuditService_Hooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, header("PO-6"), audit.Inputs{TotalOrderQty: 2000})
	require.NoError(t, err)

	rec, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	added, err := rec.AddDefect(defect(t, audit.Critical, 1))
	require.NoError(t, err)
	require.NoError(t, f.svc.OnDefectEntryChanged(ctx, rec, added, audit.OpInsert))

	stored, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.Fail, stored.Result())
	assert.Equal(t, 1, stored.Derived().Found.Critical)

	require.NoError(t, f.svc.OnInputChanged(ctx, stored))
	assert.Equal(t, int64(3), stored.Version)

	err = f.svc.OnDefectEntryChanged(ctx, stored, added, audit.Op("upsert"))
	assert.True(t, errors.IsValidation(err))

	// 旧版本对象提交会冲突
	err = f.svc.OnInputChanged(ctx, rec)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConflict))
}

func TestAuditService_DeletePublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, header("PO-7"), audit.Inputs{TotalOrderQty: 50})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, rec.ID))
	_, err = f.svc.Get(ctx, rec.ID)
	assert.True(t, errors.IsNotFound(err))
	require.Len(t, f.rec.deleted, 1)
	assert.Equal(t, audit.DeletedEvent{RecordID: rec.ID, OrderNo: "PO-7", StyleNo: "ST-PO-7"}, f.rec.deleted[0])

	assert.True(t, errors.IsNotFound(f.svc.Delete(ctx, rec.ID)))
}

type flakyPublisher struct {
	calls atomic.Int32
}

func (p *flakyPublisher) Publish(context.Context, messaging.IMessage) error {
	p.calls.Add(1)
	return stderrors.New("broker down")
}
func (p *flakyPublisher) PublishAll(context.Context, []messaging.IMessage) error { return nil }
func (p *flakyPublisher) Subscribe(string, messaging.IMessageHandler) error      { return nil }
func (p *flakyPublisher) Unsubscribe(string, messaging.IMessageHandler) error    { return nil }
func (p *flakyPublisher) Start(context.Context) error                            { return nil }
func (p *flakyPublisher) Close() error                                           { return nil }
func (p *flakyPublisher) Stats() messaging.TransportStats                        { return messaging.TransportStats{} }

func TestAuditService_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyPublisher{}
	bus := messaging.NewMessageBus(flaky)
	bus.Use(messaging.NewRetryMiddleware(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 2 * time.Millisecond}, logging.NewNoopLogger()))

	logs := &bytes.Buffer{}
	svc := NewAuditService(memory.NewAuditRepository(),
		WithPublisher(bus),
		WithLogger(logging.NewWriterLogger(logs, "", logging.WarnLevel)))

	rec, err := svc.Create(ctx, header("PO-8"), audit.Inputs{TotalOrderQty: 300})
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Contains(t, logs.String(), "领域事件发布失败")

	_, err = svc.Get(ctx, rec.ID)
	assert.NoError(t, err)
}

func TestAuditService_LimitMissWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, header("PO-9"), audit.Inputs{TotalOrderQty: 2000, Standard: sampling.StandardStrict})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Derived().Limits.Major)
	assert.Equal(t, sampling.Misses{"major"}, rec.Derived().LimitMisses)
	assert.Contains(t, f.logs.String(), "允收数查表未命中")

	p, err := f.svc.Preview(2000, "strict", 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, audit.Fail, p.Result)
	assert.Equal(t, sampling.StandardStrict, p.StandardUsed)
}

func TestAuditService_AuxiliaryCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, header("PO-AUX"), audit.Inputs{TotalOrderQty: 500})
	require.NoError(t, err)

	h := header("PO-AUX")
	h.Color = "Navy"
	rec, err = f.svc.UpdateHeader(ctx, rec.ID, h)
	require.NoError(t, err)
	assert.Equal(t, "Navy", rec.Header.Color)
	assert.Equal(t, 50, rec.Derived().SampleSize)

	sc, err := audit.NewSizeCheck("M", 200, 190)
	require.NoError(t, err)
	rec, err = f.svc.SetSizeChecks(ctx, rec.ID, []audit.SizeCheck{sc})
	require.NoError(t, err)
	require.Len(t, rec.SizeChecks(), 1)
	assert.Equal(t, "-5", rec.SizeChecks()[0].DeviationPercent().String())

	row := tolerance.Row{POM: "Chest", Std: tolerance.Value(50), Tol: tolerance.Value(1)}
	row.Readings[0] = tolerance.Value(50.5)
	_, err = f.svc.SetMeasurements(ctx, rec.ID, []audit.Measurement{audit.NewMeasurement(row)})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)
	assert.Len(t, stored.SizeChecks(), 1)
	require.Len(t, stored.Measurements(), 1)
	assert.Equal(t, "Chest", stored.Measurements()[0].POM)
	assert.Equal(t, audit.Pass, stored.Result())

	// 非法行被拒绝，版本不变
	_, err = f.svc.SetSizeChecks(ctx, rec.ID, []audit.SizeCheck{{Size: "L", OrderedQty: -1}})
	assert.True(t, errors.IsValidation(err))
	h.Cartons.Total = -1
	_, err = f.svc.UpdateHeader(ctx, rec.ID, h)
	assert.True(t, errors.IsValidation(err))

	stored, err = f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)
}

func intPtr(v int) *int { return &v }
