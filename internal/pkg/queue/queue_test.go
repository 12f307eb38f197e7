package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQueue(client, "test_queue")
}

func TestQueue_PushPop(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "job-1"))

	jobID, err := q.Pop(ctx, 1*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "job-1"))
	require.NoError(t, q.Push(ctx, "job-2"))
	require.NoError(t, q.Push(ctx, "job-3"))

	for _, want := range []string{"job-1", "job-2", "job-3"} {
		got, err := q.Pop(ctx, 1*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	q := setupQueue(t)

	jobID, err := q.Pop(context.Background(), 1*time.Second)
	require.NoError(t, err)
	assert.Empty(t, jobID)
}

func TestQueue_Length(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, q.Push(ctx, "job-1"))
	require.NoError(t, q.Push(ctx, "job-2"))

	n, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueue_Ping(t *testing.T) {
	q := setupQueue(t)
	assert.NoError(t, q.Ping(context.Background()))
}
