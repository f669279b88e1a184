package kafka

import (
	"context"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestStartReturnsNilOnCancelledContext(t *testing.T) {
	consumer := NewConsumer([]string{"localhost:9092"}, "test-group", []string{"test-topic"})
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx, func(msg kafkago.Message) error {
			t.Error("handler must not run after cancellation")
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
