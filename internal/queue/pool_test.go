package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/model"
)

func TestPool_Register(t *testing.T) {
	p := New(nil, Config{
		NumWorkers:     2,
		PollInterval:   10 * time.Millisecond,
		HeartbeatEvery: 50 * time.Millisecond,
		StaleAfter:     time.Second,
		ReaperInterval: 20 * time.Millisecond,
	})

	called := false
	p.Register(model.JobTypeClassify, func(ctx context.Context, job *model.Job) error {
		called = true
		return nil
	})

	handler, ok := p.handlers[model.JobTypeClassify]
	require.True(t, ok)
	require.NoError(t, handler(context.Background(), &model.Job{}))
	require.True(t, called)
}

func TestWorkerIDFor(t *testing.T) {
	require.Equal(t, "worker-0", workerIDFor(0))
	require.Equal(t, "worker-7", workerIDFor(7))
}

func TestPool_New_NotRunning(t *testing.T) {
	p := New(nil, Config{
		NumWorkers:     1,
		PollInterval:   5 * time.Millisecond,
		HeartbeatEvery: time.Second,
		StaleAfter:     time.Minute,
		ReaperInterval: time.Second,
	})
	// With a nil JobStore, Dispatch would panic if actually invoked, so this
	// test never calls Start; it only checks that a new pool starts out not
	// running.
	require.False(t, p.running)
}
