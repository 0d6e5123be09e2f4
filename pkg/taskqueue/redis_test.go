package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQueue 基于miniredis创建队列
func setupQueue(t *testing.T) *RedisQueue {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.RedisAddr = mr.Addr()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	queue, err := NewRedisQueue(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })
	return queue
}

func TestNewRedisQueueUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := NewRedisQueue(cfg)
	assert.Error(t, err)
}

func TestRedisQueue_EnqueueAndGet(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	payload := &IngestPayload{RunID: "run-1", FilePath: "/data/report.pdf", FileName: "report.pdf"}
	taskID, err := queue.Enqueue(ctx, TaskIngestDocument, "run-1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskIngestDocument, task.Type)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, "run-1", task.RunID)

	var decoded IngestPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &decoded))
	assert.Equal(t, *payload, decoded)

	tasks, err := queue.GetTasksByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	_, err = queue.GetTask(ctx, "missing")
	assert.Equal(t, ErrTaskNotFound, err)
}

func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskIngestDocument, "run-2", &IngestPayload{RunID: "run-2"})
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	result := map[string]int{"committed": 7}
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))
	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, task.Done())
	assert.NotNil(t, task.CompletedAt)
	assert.JSONEq(t, `{"committed":7}`, string(task.Result))
}

func TestRedisQueue_WaitForTask(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskIngestDocument, "run-3", nil)
	require.NoError(t, err)

	_, err = queue.WaitForTask(ctx, taskID, 300*time.Millisecond)
	assert.Equal(t, ErrTaskTimeout, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		queue.UpdateTaskStatus(context.Background(), taskID, StatusFailed, nil, "boom")
	}()

	task, err := queue.WaitForTask(ctx, taskID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)
}

func TestRedisQueue_DeleteTask(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskIngestDocument, "run-4", nil)
	require.NoError(t, err)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = queue.GetTask(ctx, taskID)
	assert.Equal(t, ErrTaskNotFound, err)
	tasks, err := queue.GetTasksByRun(ctx, "run-4")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestWorkerProcess(t *testing.T) {
	queue := setupQueue(t)
	worker := NewRedisWorker(queue, nil)
	ctx := context.Background()

	okID, err := queue.Enqueue(ctx, TaskIngestDocument, "run-5", &IngestPayload{RunID: "run-5"})
	require.NoError(t, err)

	var seen string
	handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
		var p IngestPayload
		if err := UnmarshalPayload(task.Payload, &p); err != nil {
			return nil, err
		}
		seen = p.RunID
		return map[string]string{"run_id": p.RunID}, nil
	})
	require.NoError(t, worker.process(ctx, okID, handler))
	assert.Equal(t, "run-5", seen)

	task, err := queue.GetTask(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)

	failID, err := queue.Enqueue(ctx, TaskIngestDocument, "run-6", nil)
	require.NoError(t, err)
	failing := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
		return nil, errors.New("parse failed")
	})
	require.Error(t, worker.process(ctx, failID, failing))

	task, err = queue.GetTask(ctx, failID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "parse failed", task.Error)
}

// TestRedisWorker 需要本地Redis
func TestRedisWorker(t *testing.T) {
	redisAddr := "localhost:6379"
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Skipping Redis worker test: Redis not available at localhost:6379")
	}
	client.Close()

	cfg := DefaultConfig()
	cfg.RedisAddr = redisAddr
	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	defer queue.Close()

	worker := NewRedisWorker(queue, cfg)
	done := make(chan string, 1)
	worker.RegisterHandler(TaskIngestDocument, HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
		done <- task.ID
		return json.RawMessage(`{}`), nil
	}))
	require.NoError(t, worker.Start())
	defer worker.Stop()

	taskID, err := queue.Enqueue(context.Background(), TaskIngestDocument, "run-worker", nil)
	require.NoError(t, err)

	select {
	case got := <-done:
		assert.Equal(t, taskID, got)
	case <-time.After(10 * time.Second):
		t.Fatal("task was not processed")
	}
}
