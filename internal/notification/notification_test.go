package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestDispatcherDeliversAndSwallowsErrors(t *testing.T) {
	sink := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(sink, zap.NewNop(), DispatcherConfig{QueueSize: 8, Workers: 1})
	d.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send(context.Background(), Message{Kind: KindFraudAlert, Destination: "a@b.c"}))
	}
	d.Stop()

	assert.Equal(t, 3, sink.count())
	// sends after Stop are dropped, not panics
	assert.NoError(t, d.Send(context.Background(), Message{Kind: KindFraudAlert}))
}

type blockingNotifier struct {
	release chan struct{}
}

func (b *blockingNotifier) Send(ctx context.Context, _ Message) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcherSendNeverBlocks(t *testing.T) {
	sink := &blockingNotifier{release: make(chan struct{})}
	d := NewDispatcher(sink, zap.NewNop(), DispatcherConfig{QueueSize: 1, Workers: 1, SendTimeout: time.Second})
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = d.Send(context.Background(), Message{Kind: KindTransactionHeld})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}
	close(sink.release)
	d.Stop()
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}

	err := Multi{bad, ok}.Send(context.Background(), Message{Kind: KindTransactionApproved})
	require.Error(t, err)
	assert.Equal(t, 1, ok.count())
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "wallet.notifications")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(client, "wallet.notifications")
	require.NoError(t, n.Send(ctx, Message{Kind: KindFraudAlert, Destination: "u@x.io", Subject: "alert", Body: "body"}))

	select {
	case msg := <-sub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, KindFraudAlert, got.Kind)
		assert.Equal(t, "u@x.io", got.Destination)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestSMTPNotifierComposesMail(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Addr: "localhost:25", From: "noreply@walletapp.com"})
	var (
		gotTo  []string
		gotMsg string
	)
	n.sendMail = func(_ string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	require.NoError(t, n.Send(context.Background(), Message{Destination: "user@example.com", Subject: "Withdraw Approved", Body: "done"}))
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.True(t, strings.Contains(gotMsg, "Subject: Withdraw Approved\r\n"))
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\ndone"))

	gotTo = nil
	require.NoError(t, n.Send(context.Background(), Message{Destination: "not-an-address"}))
	assert.Nil(t, gotTo)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysByDestination(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}

	require.NoError(t, n.Send(context.Background(), Message{Kind: KindTransferReceived, Destination: "user-1"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "user-1", string(w.msgs[0].Key))
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)
	require.NoError(t, n.Close())
}
