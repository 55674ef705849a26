// Package retry 提供带指数退避的重试执行
package retry

import (
	"context"
	"time"
)

// Operation 可重试的操作
type Operation func(ctx context.Context) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数
	MaxDelay      time.Duration // 单次等待上限

	// Retryable 判断错误是否值得重试，nil 表示全部重试
	Retryable func(err error) bool

	// OnRetry 每次失败且将要重试时回调
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig 默认 3 次尝试，2ms 起步翻倍，上限 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      1 * time.Second,
	}
}

// Do 执行 op，直到成功、尝试用尽、错误不可重试或 ctx 结束。
// 返回最后一次的错误。
func Do(ctx context.Context, op Operation, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// Backoff 第 attempt 次失败后的等待时长
func Backoff(cfg Config, attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && time.Duration(delay) > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}
