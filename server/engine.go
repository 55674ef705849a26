package server

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"

	"qcaudit/logging"
)

// IServer 常驻进程需要实现的生命周期钩子
type IServer interface {
	Name() string
	// LoadConfig 解析配置文件与环境变量
	LoadConfig() error
	// SetupDependencies 打开存储、事件传输，构建服务
	SetupDependencies(ctx context.Context) error
	// StartBackgroundTasks 启动消费者等非阻塞任务
	StartBackgroundTasks(ctx context.Context) error
	// Run 阻塞直到 ctx 结束或出错
	Run(ctx context.Context) error
	// Shutdown 释放资源
	Shutdown(ctx context.Context) error
}

// Engine 编排启动流程：LoadConfig -> Setup -> BeforeStart -> Background -> Run -> Shutdown -> AfterStop
type Engine struct {
	server  IServer
	options *Options
	logger  logging.Logger
	state   atomic.Int32
}

func NewEngine(server IServer, opts ...Option) *Engine {
	options := DefaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Component("server")
	}
	return &Engine{
		server:  server,
		options: options,
		logger:  logger.WithFields(logging.String("app", options.Name)),
	}
}

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Start 执行完整生命周期，直到 Run 返回、ctx 结束或收到关闭信号
func (e *Engine) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if len(e.options.Signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, e.options.Signals...)
		defer stop()
	}

	e.logger.Info(ctx, "启动中", logging.String("version", e.options.Version))
	e.setState(StateInitializing)
	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, e.options.StartupTimeout)
	err := e.server.SetupDependencies(setupCtx)
	setupCancel()
	if err != nil {
		e.setState(StateError)
		return e.abort(fmt.Errorf("failed to setup dependencies: %w", err))
	}
	e.setState(StatePrepared)

	for _, hook := range e.options.OnBeforeStart {
		if err := hook(ctx); err != nil {
			e.setState(StateError)
			return e.abort(fmt.Errorf("OnBeforeStart hook failed: %w", err))
		}
	}
	if err := e.server.StartBackgroundTasks(ctx); err != nil {
		e.setState(StateError)
		return e.abort(fmt.Errorf("failed to start background tasks: %w", err))
	}

	e.setState(StateRunning)
	runErr := e.server.Run(ctx)
	if runErr != nil {
		e.logger.Error(ctx, "运行出错，开始关闭", logging.Error(runErr))
	} else {
		e.logger.Info(ctx, "开始关闭")
	}
	cancel()

	e.setState(StateStopping)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(parent), e.options.ShutdownTimeout)
	defer shutdownCancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.setState(StateError)
		return err
	}
	for _, hook := range e.options.OnAfterStop {
		if err := hook(shutdownCtx); err != nil {
			e.logger.Warn(shutdownCtx, "OnAfterStop 回调失败", logging.Error(err))
		}
	}
	if runErr != nil {
		e.setState(StateError)
		return fmt.Errorf("server execution error: %w", runErr)
	}
	e.setState(StateStopped)
	e.logger.Info(shutdownCtx, "已停止")
	return nil
}

// abort 启动中途失败时释放已申请的资源
func (e *Engine) abort(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Warn(ctx, "失败后的清理出错", logging.Error(err))
	}
	return cause
}
