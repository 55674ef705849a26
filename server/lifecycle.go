// Package server 定义常驻进程的生命周期接口与启动编排
package server

import (
	"context"
	"os"
	"syscall"
	"time"

	"qcaudit/logging"
)

// State 生命周期状态
type State int

const (
	StatePending State = iota
	StateInitializing
	// StatePrepared 依赖已就绪，等待启动
	StatePrepared
	StateRunning
	StateStopping
	StateStopped
	// StateError 发生不可恢复的错误
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInitializing:
		return "Initializing"
	case StatePrepared:
		return "Prepared"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Hook 生命周期回调，ctx 可用于超时控制
type Hook func(ctx context.Context) error

// Options 启动配置
type Options struct {
	Name            string
	Version         string
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
	Logger          logging.Logger

	// Signals 触发优雅关闭的信号；为空时只等待 ctx 结束或 Run 返回
	Signals []os.Signal

	OnBeforeStart []Hook
	OnAfterStop   []Hook
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		Name:            "qcaudit",
		Version:         "0.0.0",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithVersion(version string) Option {
	return func(o *Options) { o.Version = version }
}

func WithStartupTimeout(t time.Duration) Option {
	return func(o *Options) { o.StartupTimeout = t }
}

func WithShutdownTimeout(t time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = t }
}

func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithSignals 替换关闭信号；不传参数表示不监听信号
func WithSignals(sigs ...os.Signal) Option {
	return func(o *Options) { o.Signals = sigs }
}

// WithBeforeStart 依赖装配之后、后台任务启动之前执行
func WithBeforeStart(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStart = append(o.OnBeforeStart, fn) }
}

// WithAfterStop 关闭完成后执行
func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.OnAfterStop = append(o.OnAfterStop, fn) }
}
