// Package logging 提供统一的日志接口抽象
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel 解析配置中的级别名，未知名称返回 InfoLevel 与 false
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, true
	case "info", "":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field { return Field{Key: key, Value: value} }
func Error(err error) Field { return Field{Key: "error", Value: err} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// RecordID 审核记录 ID 字段
func RecordID(id int64) Field { return Field{Key: "record_id", Value: id} }

// StdLogger 基于标准库 log 的实现，按级别过滤
type StdLogger struct {
	out    *log.Logger
	level  Level
	prefix string
	fields []Field
}

// NewStdLogger 创建输出到 stderr 的 Logger
func NewStdLogger(prefix string) *StdLogger {
	return NewWriterLogger(os.Stderr, prefix, InfoLevel)
}

// NewWriterLogger 创建输出到指定 writer 的 Logger
func NewWriterLogger(w io.Writer, prefix string, level Level) *StdLogger {
	return &StdLogger{
		out:    log.New(w, "", log.LstdFlags),
		level:  level,
		prefix: prefix,
	}
}

func (l *StdLogger) emit(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	if l.prefix != "" {
		sb.WriteString(l.prefix)
		sb.WriteString(" ")
	}
	sb.WriteString(msg)
	for _, f := range l.fields {
		writeField(&sb, f)
	}
	for _, f := range fields {
		writeField(&sb, f)
	}
	l.out.Println(sb.String())
}

func writeField(sb *strings.Builder, f Field) {
	sb.WriteString(" ")
	sb.WriteString(f.Key)
	sb.WriteString("=")
	switch v := f.Value.(type) {
	case string:
		sb.WriteString(v)
	case error:
		sb.WriteString(v.Error())
	default:
		fmt.Fprint(sb, v)
	}
}

func (l *StdLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.emit(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.emit(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.emit(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(_ context.Context, msg string, fields ...Field) {
	l.emit(ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StdLogger{out: l.out, level: l.level, prefix: l.prefix, fields: merged}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

type holder struct{ l Logger }

var global atomic.Pointer[holder]

func init() {
	global.Store(&holder{l: NewStdLogger("")})
}

// SetLogger 设置全局Logger，nil 时回退为 NoopLogger
func SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoopLogger()
	}
	global.Store(&holder{l: logger})
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	return global.Load().l
}

// Component 返回带 component 字段的全局 Logger
func Component(name string) Logger {
	return GetLogger().WithFields(String("component", name))
}
