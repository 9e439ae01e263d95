package kafka

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	messages  []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type payload struct {
	RunID string `json:"run_id"`
	Count int    `json:"count"`
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "research-events")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "run-1", Value: payload{RunID: "run-1", Count: 2}}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "run-1", string(w.messages[0].Key))
	assert.JSONEq(t, `{"run_id":"run-1","count":2}`, string(w.messages[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "t")

	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorContains(t, err, "broker down")

	err = p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	assert.ErrorContains(t, err, "marshaling")
}

func TestConsumerDispatchesAndCommits(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{
		{Key: []byte("a"), Value: []byte(`{"run_id":"a","count":1}`)},
		{Key: []byte("b"), Value: []byte(`not json`)},
		{Key: []byte("c"), Value: []byte(`{"run_id":"c","count":3}`)},
	}}

	var got []payload
	c := NewConsumerWithReader(r, "t", true, func(ctx context.Context, key, value []byte) error {
		p, err := DecodeJSON[payload](value)
		if err != nil {
			return err
		}
		got = append(got, p)
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []payload{{"a", 1}, {"c", 3}}, got)
	assert.Len(t, r.committed, 2, "failed messages are not committed")
}

func TestConsumerStopsOnCancelledContext(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{{Value: []byte(`{}`)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsumerWithReader(r, "t", false, func(ctx context.Context, key, value []byte) error {
		t.Fatal("handler must not run after cancellation")
		return nil
	})
	require.NoError(t, c.Start(ctx))
	assert.True(t, r.closed)
}

func TestPingErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, Ping(ctx, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = Ping(ctx, []string{addr})
	assert.ErrorContains(t, err, addr)
}
