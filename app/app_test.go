package app

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/config"
	"qcaudit/domain/audit"
	"qcaudit/errors"
	"qcaudit/messaging"
	"qcaudit/sampling"
)

func testConfig(t *testing.T, driver, dsn string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Storage.Driver = driver
	cfg.Storage.DSN = dsn
	return cfg
}

func TestApp_EndToEnd(t *testing.T) {
	drivers := []struct {
		name, driver string
		dsn          func(t *testing.T) string
	}{
		{"memory", "memory", func(*testing.T) string { return "" }},
		{"sqlite", "sqlite", func(t *testing.T) string { return filepath.Join(t.TempDir(), "qc.db") }},
		{"badger", "badger", func(*testing.T) string { return "" }},
	}
	for _, d := range drivers {
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			var logs bytes.Buffer
			a := New("", WithConfig(testConfig(t, d.driver, d.dsn(t))), WithLogOutput(&logs))
			require.NoError(t, a.Setup(ctx))
			defer func() { assert.NoError(t, a.Shutdown(ctx)) }()
			require.NotNil(t, a.Cache)

			var mu sync.Mutex
			var results []string
			require.NoError(t, a.Bus.Subscribe(audit.EventDerived, messaging.NewHandler("recorder", func(_ context.Context, m messaging.IMessage) error {
				var evt audit.DerivedEvent
				if err := messaging.DecodePayload(m, &evt); err != nil {
					return err
				}
				mu.Lock()
				results = append(results, string(evt.Result))
				mu.Unlock()
				return nil
			})))

			rec, err := a.Service.Create(ctx, audit.Header{OrderNo: "PO-APP", StyleNo: "ST-APP"},
				audit.Inputs{TotalOrderQty: 2000, Standard: sampling.StandardNormal})
			require.NoError(t, err)
			assert.Equal(t, 125, rec.Derived().SampleSize)

			e, err := audit.NewDefectEntry("stain", audit.Critical, 1, "")
			require.NoError(t, err)
			rec, _, err = a.Service.AddDefect(ctx, rec.ID, e)
			require.NoError(t, err)
			assert.Equal(t, audit.Fail, rec.Result())

			got, err := a.Service.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, audit.Fail, got.Result())

			mu.Lock()
			assert.Equal(t, []string{"Pass", "Fail"}, results)
			mu.Unlock()
			assert.Contains(t, logs.String(), "依赖装配完成")
		})
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "memory", "")
	cfg.Events.Transport = "kafka"
	err := New("", WithConfig(cfg)).Setup(context.Background())
	assert.True(t, errors.IsValidation(err))
}

func TestApp_RedisWithoutAddr(t *testing.T) {
	cfg := testConfig(t, "memory", "")
	cfg.Events.Transport = "redis"
	cfg.Events.Redis.Addr = ""
	a := New("", WithConfig(cfg), WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, a.LoadConfig())
	err := a.SetupDependencies(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConfig))
}

func TestApp_NotSetUp(t *testing.T) {
	a := New("")
	assert.True(t, errors.IsErrorCode(a.StartBackgroundTasks(context.Background()), errors.ErrCodeConfig))
	assert.NoError(t, a.Shutdown(context.Background()))
}
