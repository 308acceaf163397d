package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBus(t *testing.T) (*RedisBus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBus(client), client
}

func TestRedisBus_PublishBatch(t *testing.T) {
	bus, client := newTestBus(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "alerts")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	receivers, err := bus.PublishBatch(ctx, "alerts", [][]byte{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)})
	if err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if len(receivers) != 2 || receivers[0] != 1 || receivers[1] != 1 {
		t.Errorf("PublishBatch() receivers = %v, want [1 1]", receivers)
	}

	ch := sub.Channel()
	for _, want := range []string{`{"id":"a"}`, `{"id":"b"}`} {
		select {
		case msg := <-ch:
			if msg.Payload != want {
				t.Errorf("received %q, want %q", msg.Payload, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestRedisBus_PublishNoSubscribers(t *testing.T) {
	bus, _ := newTestBus(t)

	n, err := bus.Publish(context.Background(), "alerts", []byte("x"))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Publish() receivers = %d, want 0", n)
	}

	receivers, err := bus.PublishBatch(context.Background(), "alerts", nil)
	if err != nil || receivers != nil {
		t.Errorf("PublishBatch(nil) = %v, %v", receivers, err)
	}
}

func TestRedisBus_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	bus := NewRedisBus(client)

	if _, err := bus.PublishBatch(context.Background(), "alerts", [][]byte{[]byte("x")}); err == nil {
		t.Error("PublishBatch() error = nil, want error")
	}
	if _, err := bus.Publish(context.Background(), "alerts", []byte("x")); err == nil {
		t.Error("Publish() error = nil, want error")
	}
}
