package natsjetstream

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/errors"
	"qcaudit/messaging"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "QCAUDIT"}, nil
}

func runningTransport(pub publisher) *Transport {
	tr := NewTransport(Config{})
	tr.pub = pub
	tr.running = true
	return tr
}

func TestPublish_EncodesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	tr := runningTransport(pub)

	msg := messaging.NewMessage("evt-1", "audit.derived", map[string]any{"record_id": 7})
	require.NoError(t, tr.Publish(context.Background(), msg))
	require.Equal(t, []string{"qcaudit.audit.derived"}, pub.subjects)

	decoded, err := messaging.Unmarshal(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "evt-1", decoded.ID)
	var p struct {
		RecordID int64 `json:"record_id"`
	}
	require.NoError(t, messaging.DecodePayload(decoded, &p))
	assert.Equal(t, int64(7), p.RecordID)
}

func TestPublish_Errors(t *testing.T) {
	tr := NewTransport(Config{})
	err := tr.Publish(context.Background(), messaging.NewMessage("x", "t", nil))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))

	tr = runningTransport(&fakePublisher{err: stderrors.New("no responders")})
	err = tr.Publish(context.Background(), messaging.NewMessage("x", "t", nil))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))
}

func TestHandleMessage_Dispatch(t *testing.T) {
	tr := NewTransport(Config{})
	var got []string
	require.NoError(t, tr.Subscribe("audit.deleted", messaging.NewHandler("rec", func(_ context.Context, m messaging.IMessage) error {
		got = append(got, m.GetType()+":"+m.GetID())
		return nil
	})))

	data, err := messaging.Marshal(&messaging.Message{ID: "d1", Payload: map[string]any{}})
	require.NoError(t, err)
	tr.handleMessage("audit.deleted")(&nats.Msg{Data: data})
	tr.handleMessage("audit.deleted")(&nats.Msg{Data: []byte("garbage")})

	assert.Equal(t, []string{"audit.deleted:d1"}, got)
}

func TestNames(t *testing.T) {
	tr := NewTransport(Config{SubjectPrefix: "qc.", DurablePrefix: "svc-"})
	assert.Equal(t, "qc.audit.derived", tr.subjectName("audit.derived"))
	assert.Equal(t, "svc-audit_derived", tr.durableName("audit.derived"))
	assert.Equal(t, []string{"qc.>"}, tr.streamConfig().Subjects)
	assert.Equal(t, nats.LimitsPolicy, tr.streamConfig().Retention)
}
