// Package natsjetstream 基于 NATS JetStream 的消息传输
package natsjetstream

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/messaging"
)

// Config JetStream 传输配置
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	DurablePrefix string
	AckWait       time.Duration
	MaxAckPending int
	Logger        logging.Logger
	Conn          *nats.Conn

	// 流参数
	Retention string // workqueue|limits|interest（默认 limits）
	MaxBytes  int64
	Replicas  int
}

// publisher JetStream 发布能力子集
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	pub      publisher
	ownsConn bool

	handlers *messaging.HandlerSet
	subs     map[string]*nats.Subscription

	mu      sync.Mutex
	running bool
}

var _ messaging.Transport = (*Transport)(nil)

// NewTransport 创建传输，连接在 Start 时建立
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "QCAUDIT"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "qcaudit."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "qcaudit-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("transport.nats")
	}
	return &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: messaging.NewHandlerSet(),
		subs:     make(map[string]*nats.Subscription),
	}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.Lock()
	pub, running := t.pub, t.running
	t.mu.Unlock()
	if !running || pub == nil {
		return errors.NewError(errors.ErrCodeQueue, "nats transport 未启动")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := messaging.Marshal(message)
	if err != nil {
		return err
	}
	// 以消息 ID 去重，重试发布不会产生重复
	if _, err := pub.Publish(t.subjectName(message.GetType()), data, nats.MsgId(message.GetID())); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "jetstream 发布失败")
	}
	return nil
}

func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers.Add(messageType, handler)
	if t.running {
		return t.subscribeLocked(messageType)
	}
	return nil
}

func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, left := t.handlers.Remove(messageType, handler); left == 0 {
		if sub, ok := t.subs[messageType]; ok {
			_ = sub.Drain()
			delete(t.subs, messageType)
		}
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "nats transport 已在运行")
	}
	if err := t.ensureConnection(); err != nil {
		return err
	}
	if err := t.ensureStream(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "创建 jetstream 流失败")
	}
	for _, mt := range t.handlers.Types() {
		if err := t.subscribeLocked(mt); err != nil {
			return err
		}
	}
	t.running = true
	t.logger.Info(ctx, "jetstream 传输已启动", logging.String("stream", t.cfg.Stream))
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for mt, sub := range t.subs {
		_ = sub.Drain()
		delete(t.subs, mt)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn, t.js, t.pub = nil, nil, nil
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	return t.handlers.Stats(running)
}

func (t *Transport) ensureConnection() error {
	if t.conn != nil && t.js != nil {
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("qcaudit"))
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeQueue, "连接 nats 失败")
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "获取 jetstream 上下文失败")
	}
	t.js = js
	t.pub = js
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = t.js.AddStream(t.streamConfig())
	return err
}

func (t *Transport) streamConfig() *nats.StreamConfig {
	retention := nats.LimitsPolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "workqueue":
		retention = nats.WorkQueuePolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:              t.cfg.Stream,
		Subjects:          []string{t.cfg.SubjectPrefix + ">"},
		Retention:         retention,
		MaxMsgsPerSubject: -1,
	}
	if t.cfg.MaxBytes > 0 {
		sc.MaxBytes = t.cfg.MaxBytes
	}
	if t.cfg.Replicas > 0 {
		sc.Replicas = t.cfg.Replicas
	}
	return sc
}

func (t *Transport) subscribeLocked(messageType string) error {
	if _, exists := t.subs[messageType]; exists {
		return nil
	}
	subject := t.subjectName(messageType)
	durable := t.durableName(messageType)
	sub, err := t.js.QueueSubscribe(subject, durable, t.handleMessage(messageType),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending))
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "订阅 jetstream 失败: "+subject)
	}
	t.subs[messageType] = sub
	return nil
}

// handleMessage 解码失败的消息直接确认丢弃；处理失败则 Nak 等待重投
func (t *Transport) handleMessage(defaultType string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()
		decoded, err := messaging.Unmarshal(msg.Data)
		if err != nil {
			t.logger.Warn(ctx, "nats 消息解码失败", logging.Error(err))
			_ = msg.Ack()
			return
		}
		if decoded.Type == "" {
			decoded.Type = defaultType
		}
		if err := t.dispatch(ctx, decoded); err != nil {
			t.logger.Warn(ctx, "nats 消息处理失败", logging.String("message_id", decoded.ID), logging.Error(err))
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil && !stderrors.Is(err, nats.ErrMsgNotBound) {
			t.logger.Warn(ctx, "nats ack 失败", logging.Error(err))
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, message messaging.IMessage) error {
	var errs []error
	for _, h := range t.handlers.Lookup(message.GetType()) {
		if err := h.Handle(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (t *Transport) subjectName(messageType string) string {
	return t.cfg.SubjectPrefix + messageType
}

// durableName 消费者名不允许包含 '.'
func (t *Transport) durableName(messageType string) string {
	return t.cfg.DurablePrefix + strings.NewReplacer(".", "_", "*", "all", ">", "all").Replace(messageType)
}
