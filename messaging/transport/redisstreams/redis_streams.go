// Package redisstreams 基于 Redis Streams 消费组的消息传输
package redisstreams

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/messaging"
)

// client go-redis 命令子集，便于测试替换
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config Redis Streams 传输配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	GroupName    string
	ConsumerName string
	BlockTimeout time.Duration
	ReadCount    int64
	// MaxLen 流近似长度上限，0 表示不裁剪
	MaxLen int64
	Logger logging.Logger

	MinReadBackoff time.Duration // 读错误最小退避，默认 100ms
	MaxReadBackoff time.Duration // 读错误最大退避，默认 5s
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	handlers *messaging.HandlerSet
	readers  map[string]bool

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ messaging.Transport = (*Transport)(nil)

// NewTransport 创建传输；未提供 Client 时按 Addr 建立连接
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.Client != nil {
		return newWithClient(cfg, cfg.Client, false), nil
	}
	if cfg.Addr == "" {
		return nil, errors.NewError(errors.ErrCodeConfig, "redis 地址未配置")
	}
	cl := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	return newWithClient(cfg, cl, true), nil
}

func (cfg Config) withDefaults() Config {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "qcaudit:"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "qcaudit"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("transport.redisstreams")
	}
	return cfg
}

func newWithClient(cfg Config, cl client, own bool) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    cfg.Logger,
		handlers:  messaging.NewHandlerSet(),
		readers:   make(map[string]bool),
	}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	values, err := encodeMessage(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: t.streamName(message.GetType()), Values: values}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "xadd 失败")
	}
	return nil
}

// PublishAll 逐条写入
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if messageType == messaging.WildcardType {
		return errors.NewError(errors.ErrCodeValidation, "redis streams 不支持通配订阅")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers.Add(messageType, handler)
	if t.running {
		t.startReaderLocked(messageType)
	}
	return nil
}

func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.handlers.Remove(messageType, handler)
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "redis streams 传输已在运行")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	for _, mt := range t.handlers.Types() {
		t.startReaderLocked(mt)
	}
	t.running = true
	return nil
}

// Close 停止读取协程，自有连接一并关闭
func (t *Transport) Close() error {
	t.mu.Lock()
	running, cancel := t.running, t.cancel
	t.running = false
	t.readers = make(map[string]bool)
	t.mu.Unlock()

	if running && cancel != nil {
		cancel()
		t.wg.Wait()
	}
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	return t.handlers.Stats(running)
}

func (t *Transport) startReaderLocked(messageType string) {
	if t.readers[messageType] {
		return
	}
	t.readers[messageType] = true
	t.wg.Add(1)
	go t.readLoop(t.ctx, messageType)
}

func (t *Transport) readLoop(ctx context.Context, messageType string) {
	defer t.wg.Done()
	stream := t.streamName(messageType)
	if err := t.ensureGroup(ctx, stream); err != nil {
		t.logger.Warn(ctx, "创建消费组失败", logging.String("stream", stream), logging.Error(err))
	}
	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	backoff := t.cfg.MinReadBackoff
	for ctx.Err() == nil {
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if stderrors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn(ctx, "xreadgroup 失败", logging.Duration("backoff", backoff), logging.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, t.cfg.MaxReadBackoff)
			continue
		}
		backoff = t.cfg.MinReadBackoff
		for _, sr := range res {
			for _, entry := range sr.Messages {
				t.consume(ctx, sr.Stream, entry)
			}
		}
	}
}

// consume 处理失败的条目不确认，留在 PEL 中等待重投
func (t *Transport) consume(ctx context.Context, stream string, entry redis.XMessage) {
	msg, err := decodeMessage(entry)
	if err != nil {
		t.logger.Warn(ctx, "redis 条目解码失败", logging.String("entry", entry.ID), logging.Error(err))
		_ = t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err()
		return
	}
	var errs []error
	for _, h := range t.handlers.Lookup(msg.GetType()) {
		if err := h.Handle(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		t.logger.Warn(ctx, "redis 消息处理失败", logging.String("message_id", msg.ID), logging.Error(err))
		return
	}
	if err := t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err(); err != nil {
		t.logger.Warn(ctx, "xack 失败", logging.Error(err))
	}
}

func (t *Transport) ensureGroup(ctx context.Context, stream string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func (t *Transport) streamName(messageType string) string {
	return t.cfg.StreamPrefix + messageType
}

func encodeMessage(msg messaging.IMessage) (map[string]any, error) {
	env, err := messaging.ToEnvelope(msg)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "编码元数据失败")
	}
	return map[string]any{
		"id":        env.ID,
		"type":      env.Type,
		"timestamp": env.Timestamp,
		"payload":   string(env.Payload),
		"metadata":  string(metadata),
	}, nil
}

// decodeMessage 条目值经 redis 往返后均为字符串
func decodeMessage(entry redis.XMessage) (*messaging.Message, error) {
	env := messaging.Envelope{}
	env.ID, _ = entry.Values["id"].(string)
	env.Type, _ = entry.Values["type"].(string)
	if env.ID == "" {
		env.ID = entry.ID
	}

	if raw, _ := entry.Values["payload"].(string); raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, errors.NewErrorf(errors.ErrCodeQueue, "条目 %s 负载不是合法 JSON", entry.ID)
		}
		env.Payload = json.RawMessage(raw)
	}
	if raw, _ := entry.Values["metadata"].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &env.Metadata); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeQueue, "解码元数据失败")
		}
	}

	switch v := entry.Values["timestamp"].(type) {
	case int64:
		env.Timestamp = v
	case string:
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			env.Timestamp = ns
		}
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixNano()
	}
	return env.Message(), nil
}
