package messaging

import (
	"context"
	"time"

	"qcaudit/logging"
	"qcaudit/patterns/retry"
)

// RetryMiddleware 对下游发布做指数退避重试
type RetryMiddleware struct {
	cfg    retry.Config
	logger logging.Logger
}

func NewRetryMiddleware(cfg retry.Config, logger logging.Logger) *RetryMiddleware {
	if logger == nil {
		logger = logging.Component("messaging.retry")
	}
	return &RetryMiddleware{cfg: cfg, logger: logger}
}

func (m *RetryMiddleware) Name() string { return "PublishRetry" }

func (m *RetryMiddleware) Handle(ctx context.Context, message IMessage, next HandlerFunc) error {
	cfg := m.cfg
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		m.logger.Warn(ctx, "发布失败，准备重试",
			logging.String("message_id", message.GetID()),
			logging.String("type", message.GetType()),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
	}
	return retry.Do(ctx, func(ctx context.Context) error {
		return next(ctx, message)
	}, cfg)
}

// LoggingMiddleware 记录每条消息的发布结果与耗时
type LoggingMiddleware struct {
	logger logging.Logger
}

func NewLoggingMiddleware(logger logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.Component("messaging")
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Name() string { return "PublishLogging" }

func (m *LoggingMiddleware) Handle(ctx context.Context, message IMessage, next HandlerFunc) error {
	start := time.Now()
	err := next(ctx, message)
	fields := []logging.Field{
		logging.String("message_id", message.GetID()),
		logging.String("type", message.GetType()),
		logging.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		m.logger.Error(ctx, "消息发布失败", append(fields, logging.Error(err))...)
		return err
	}
	m.logger.Debug(ctx, "消息已发布", fields...)
	return nil
}
