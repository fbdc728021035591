package kafka

import (
	"testing"
	"time"
)

func TestPublishBeforeCloseEnqueues(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 4)
	p.Publish([]byte("k"), []byte("v"))
	if got := len(p.inbox); got != 1 {
		t.Fatalf("inbox length = %d, want 1", got)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 4)
	p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// must neither panic nor block
		p.Publish([]byte("k"), []byte("v"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Close")
	}
	if got := len(p.inbox); got != 0 {
		t.Fatalf("closed producer enqueued %d messages, want 0", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 4)
	p.Close()
	p.Close()
}
