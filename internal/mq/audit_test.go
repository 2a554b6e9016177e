package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakeBackend struct {
	published []published
	inbox     []Message
	err       error
}

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, _ string, handler Handler) error {
	for _, msg := range f.inbox {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func TestAuditPublisher_Record(t *testing.T) {
	backend := &fakeBackend{}
	publisher := NewAuditPublisher(New(backend), "audit")

	event := types.AuditEvent{
		ID:      "e1",
		Kind:    types.AuditTokenCreated,
		Subject: "alice",
		At:      time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, publisher.Record(context.Background(), event))

	require.Len(t, backend.published, 1)
	msg := backend.published[0]
	assert.Equal(t, "audit", msg.channel)
	assert.Equal(t, "application/json", msg.attrs[AttrContentType])
	assert.Equal(t, "token.created", msg.attrs["kind"])

	var decoded types.AuditEvent
	require.NoError(t, json.Unmarshal(msg.data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestAuditPublisher_RecordError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := NewAuditPublisher(&fakeBackend{err: boom}, "audit")

	err := publisher.Record(context.Background(), types.AuditEvent{Kind: types.AuditUserDeleted})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "user.deleted")
}

func TestSubscribeAudit_SkipsUndecodable(t *testing.T) {
	good, err := json.Marshal(types.AuditEvent{ID: "e2", Kind: types.AuditUserCreated, Subject: "bob"})
	require.NoError(t, err)
	backend := &fakeBackend{inbox: []Message{
		{ID: "1", Data: []byte("not json")},
		{ID: "2", Data: good},
	}}

	var got []types.AuditEvent
	err = SubscribeAudit(context.Background(), backend, "audit", func(_ context.Context, event types.AuditEvent) error {
		got = append(got, event)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Subject)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil, ""))

	attrs := headersToAttributes(amqp.Table{
		"kind":    "token.created",
		"raw":     []byte("bytes"),
		"attempt": int32(2),
	}, "application/json")
	assert.Equal(t, map[string]string{
		AttrContentType: "application/json",
		"kind":          "token.created",
		"raw":           "bytes",
		"attempt":       "2",
	}, attrs)
}

func TestOpen_Disabled(t *testing.T) {
	queue, err := Open(context.Background(), config.MQConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, queue)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)
}
