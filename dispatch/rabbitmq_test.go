package dispatch

import (
	"context"
	"os"
	"testing"
	"time"

	"bulkjobs/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a broker; set RABBITMQ_TEST_URL to run.
func TestRabbitMQ_DispatchAndConsume(t *testing.T) {
	url := os.Getenv("RABBITMQ_TEST_URL")
	if url == "" {
		t.Skip("RABBITMQ_TEST_URL not set")
	}

	mq, err := NewRabbitMQ(url, zerolog.Nop())
	require.NoError(t, err)
	defer mq.Close()
	require.NoError(t, mq.SetupTopology())
	_, err = mq.ch.QueuePurge(BulkQueue, false)
	require.NoError(t, err)

	task := models.BulkTask{
		JobID:       "65f0c0ffee0000000000abcd",
		Request:     models.BulkRequest{Action: "delete", Collection: "products", IDs: []string{"p1"}},
		RequestedBy: "admin-1",
	}
	require.NoError(t, mq.Dispatch(context.Background(), task))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan models.BulkTask, 1)
	go func() {
		_ = mq.Consume(ctx, 1, func(_ context.Context, tk models.BulkTask) {
			got <- tk
		})
	}()

	select {
	case tk := <-got:
		assert.Equal(t, task, tk)
	case <-ctx.Done():
		t.Fatal("task was not consumed")
	}
}
