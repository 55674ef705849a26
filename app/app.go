// Package app 按配置装配存储、事件传输与审核服务
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"qcaudit/codegen/ids"
	"qcaudit/config"
	"qcaudit/domain/repository"
	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/messaging"
	"qcaudit/messaging/transport/natsjetstream"
	"qcaudit/messaging/transport/redisstreams"
	synctransport "qcaudit/messaging/transport/sync"
	"qcaudit/patterns/retry"
	"qcaudit/server"
	"qcaudit/service"
	"qcaudit/storage/badger"
	"qcaudit/storage/cached"
	"qcaudit/storage/memory"
	"qcaudit/storage/sqlite"
)

// App 装配完成的运行时。生命周期：LoadConfig -> SetupDependencies -> StartBackgroundTasks -> Shutdown
type App struct {
	configPath string
	logOut     io.Writer

	Config  *config.Config
	Logger  logging.Logger
	Repo    repository.IAuditRepository
	Cache   *cached.AuditRepository
	Bus     *messaging.MessageBus
	Service *service.AuditService

	closers []func() error
}

var _ server.IServer = (*App)(nil)

// Option 装配选项
type Option func(*App)

// WithConfig 直接使用给定配置，跳过 LoadConfig 的文件读取
func WithConfig(cfg *config.Config) Option {
	return func(a *App) { a.Config = cfg }
}

// WithLogOutput 日志输出目标，默认 stderr
func WithLogOutput(w io.Writer) Option {
	return func(a *App) { a.logOut = w }
}

func New(configPath string, opts ...Option) *App {
	a := &App{configPath: configPath, logOut: os.Stderr}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Name() string { return "qcaudit" }

// LoadConfig 读取配置并初始化日志与 ID 节点
func (a *App) LoadConfig() error {
	if a.Config == nil {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.Config = cfg
	} else if err := a.Config.Validate(); err != nil {
		return err
	}

	a.Logger = logging.NewWriterLogger(a.logOut, "[qcaudit] ", a.Config.LogLevel())
	if err := ids.SetDefaultNode(a.Config.IDs.Node); err != nil {
		return errors.WrapError(err, errors.ErrCodeConfig, "初始化 ID 节点失败")
	}
	return nil
}

// SetupDependencies 依次构建存储、缓存、事件总线与服务
func (a *App) SetupDependencies(ctx context.Context) error {
	if a.Config == nil {
		return errors.NewError(errors.ErrCodeConfig, "配置未加载")
	}
	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	a.Repo = repo

	if size := a.Config.Storage.CacheSize; size > 0 {
		c, err := cached.New(repo, size)
		if err != nil {
			return err
		}
		a.Cache = c
		a.Repo = c
	}

	transport, err := a.openTransport()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, transport.Close)

	a.Bus = messaging.NewMessageBus(transport)
	a.Bus.Use(messaging.NewLoggingMiddleware(a.Logger.WithFields(logging.String("component", "messaging"))))
	a.Bus.Use(messaging.NewRetryMiddleware(a.retryConfig(), a.Logger.WithFields(logging.String("component", "messaging.retry"))))

	a.Service = service.NewAuditService(a.Repo,
		service.WithLogger(a.Logger.WithFields(logging.String("component", "service.audit"))),
		service.WithPublisher(a.Bus),
	)
	a.Logger.Info(ctx, "依赖装配完成",
		logging.String("storage", a.Config.Storage.Driver),
		logging.String("transport", a.Config.Events.Transport),
		logging.Int("cache_size", a.Config.Storage.CacheSize))
	return nil
}

// StartBackgroundTasks 启动事件传输
func (a *App) StartBackgroundTasks(ctx context.Context) error {
	if a.Bus == nil {
		return errors.NewError(errors.ErrCodeConfig, "依赖未装配")
	}
	return a.Bus.Transport().Start(ctx)
}

// Run 常驻模式下阻塞到 ctx 结束，事件由传输层的消费协程处理
func (a *App) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Shutdown 逆序释放资源，汇总全部关闭错误
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Logger != nil {
		a.Logger.Info(ctx, "已关闭", logging.Int("errors", len(errs)))
	}
	return stderrors.Join(errs...)
}

// Setup LoadConfig + SetupDependencies + StartBackgroundTasks；失败时释放已打开的资源
func (a *App) Setup(ctx context.Context) error {
	if err := a.LoadConfig(); err != nil {
		return err
	}
	if err := a.SetupDependencies(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}
	if err := a.StartBackgroundTasks(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}
	return nil
}

func (a *App) openRepository(ctx context.Context) (repository.IAuditRepository, error) {
	st := a.Config.Storage
	switch st.Driver {
	case "memory":
		return memory.NewAuditRepository(), nil
	case "sqlite":
		db, err := sqlite.Open(ctx, sqlite.Config{DSN: st.DSN})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return sqlite.NewAuditRepository(db), nil
	case "badger":
		db, err := badger.Open(st.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return badger.NewAuditRepository(db), nil
	}
	return nil, errors.NewErrorf(errors.ErrCodeConfig, "未知的存储驱动: %s", st.Driver)
}

func (a *App) openTransport() (messaging.Transport, error) {
	ev := a.Config.Events
	switch ev.Transport {
	case "sync":
		return synctransport.NewSyncTransport(), nil
	case "nats":
		return natsjetstream.NewTransport(natsjetstream.Config{
			URL:    ev.NATS.URL,
			Stream: ev.NATS.Stream,
			Logger: a.Logger.WithFields(logging.String("component", "transport.nats")),
		}), nil
	case "redis":
		return redisstreams.NewTransport(redisstreams.Config{
			Addr:   ev.Redis.Addr,
			MaxLen: ev.Redis.MaxLen,
			Logger: a.Logger.WithFields(logging.String("component", "transport.redis")),
		})
	}
	return nil, errors.NewError(errors.ErrCodeConfig, fmt.Sprintf("未知的事件传输: %s", ev.Transport))
}

func (a *App) retryConfig() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = a.Config.Events.Retry.MaxAttempts
	if d := a.Config.Events.Retry.InitialDelay; d > 0 {
		rc.InitialDelay = d
		rc.MaxDelay = 50 * d
	}
	if rc.MaxDelay < time.Millisecond {
		rc.MaxDelay = time.Millisecond
	}
	return rc
}
