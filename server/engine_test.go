package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/logging"
)

type fakeServer struct {
	mu    sync.Mutex
	steps []string

	loadErr, setupErr, bgErr, runErr, shutdownErr error
	// blockRun 为 true 时 Run 等待 ctx 结束
	blockRun bool
	bgDone   chan struct{}
}

func (s *fakeServer) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *fakeServer) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *fakeServer) Name() string { return "fake" }

func (s *fakeServer) LoadConfig() error {
	s.record("LoadConfig")
	return s.loadErr
}

func (s *fakeServer) SetupDependencies(context.Context) error {
	s.record("SetupDependencies")
	return s.setupErr
}

func (s *fakeServer) StartBackgroundTasks(ctx context.Context) error {
	s.record("StartBackgroundTasks")
	if s.bgErr != nil {
		return s.bgErr
	}
	s.bgDone = make(chan struct{})
	go func() {
		<-ctx.Done()
		close(s.bgDone)
	}()
	return nil
}

func (s *fakeServer) Run(ctx context.Context) error {
	s.record("Run")
	if s.blockRun {
		<-ctx.Done()
	}
	return s.runErr
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.record("Shutdown")
	return s.shutdownErr
}

func newTestEngine(s IServer, opts ...Option) *Engine {
	opts = append([]Option{WithSignals(), WithLogger(logging.NewNoopLogger())}, opts...)
	return NewEngine(s, opts...)
}

func TestEngine_Lifecycle(t *testing.T) {
	s := &fakeServer{}
	var hooks []string
	e := newTestEngine(s,
		WithBeforeStart(func(context.Context) error { hooks = append(hooks, "before"); return nil }),
		WithAfterStop(func(context.Context) error { hooks = append(hooks, "after"); return nil }),
	)
	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}, s.Steps())
	assert.Equal(t, []string{"before", "after"}, hooks)
	assert.Equal(t, StateStopped, e.State())

	select {
	case <-s.bgDone:
	case <-time.After(time.Second):
		t.Fatal("后台任务的 ctx 未被取消")
	}
}

func TestEngine_ContextCancelStopsRun(t *testing.T) {
	s := &fakeServer{blockRun: true}
	e := newTestEngine(s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, func() bool { return e.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start 未返回")
	}
	assert.Equal(t, "Shutdown", s.Steps()[len(s.Steps())-1])
}

func TestEngine_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		server    *fakeServer
		wantSteps []string
		wantState State
	}{
		{"load", &fakeServer{loadErr: boom}, []string{"LoadConfig"}, StateError},
		{"setup", &fakeServer{setupErr: boom}, []string{"LoadConfig", "SetupDependencies", "Shutdown"}, StateError},
		{"background", &fakeServer{bgErr: boom}, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Shutdown"}, StateError},
		{"run", &fakeServer{runErr: boom}, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}, StateError},
		{"shutdown", &fakeServer{shutdownErr: boom}, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}, StateError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.server)
			err := e.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.wantSteps, tt.server.Steps())
			assert.Equal(t, tt.wantState, e.State())
		})
	}
}

func TestEngine_BeforeStartFailure(t *testing.T) {
	s := &fakeServer{}
	e := newTestEngine(s, WithBeforeStart(func(context.Context) error { return errors.New("hook") }))
	require.Error(t, e.Start(context.Background()))
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "Shutdown"}, s.Steps())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Unknown", State(99).String())
}
