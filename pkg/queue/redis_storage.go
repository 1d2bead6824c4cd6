package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the queue repositories on top of Redis.
//
// Layout under the key prefix:
//
//	<p>:task:<id>          task body (JSON)
//	<p>:keys               hash of dedupe key -> task id
//	<p>:pending:<queue>    zset of task ids scored by scheduled time (ms)
//	<p>:processing:<queue> zset of task ids scored by lock expiry (ms)
//	<p>:dead:<queue>       list of dead tasks (JSON), newest first
//
// Tasks are claimed in scheduled-time order; Priority is not honoured.
// All keys of a queue must live on the same node.
type RedisStorage struct {
	client  redis.UniversalClient
	prefix  string
	deadCap int64
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix sets the prefix of every key written by the storage.
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithDeadLetterCap bounds the number of dead tasks kept per queue.
func WithDeadLetterCap(n int64) RedisStorageOption {
	return func(s *RedisStorage) {
		if n > 0 {
			s.deadCap = n
		}
	}
}

// NewRedisStorage creates a Redis backed storage.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) *RedisStorage {
	s := &RedisStorage{
		client:  client,
		prefix:  "queue",
		deadCap: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var createScript = redis.NewScript(`
if ARGV[1] ~= '' then
  if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
    return 0
  end
end
redis.call('SET', KEYS[2], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[2])
return 1
`)

// claimScript takes (pending, processing) key pairs. Expired locks are
// returned to pending first, then the earliest due task across all queues is
// moved to processing.
var claimScript = redis.NewScript(`
local best, bestScore, bestIdx
for i = 1, #KEYS, 2 do
  local expired = redis.call('ZRANGEBYSCORE', KEYS[i+1], '-inf', ARGV[1])
  for _, id in ipairs(expired) do
    redis.call('ZREM', KEYS[i+1], id)
    redis.call('ZADD', KEYS[i], ARGV[1], id)
  end
  local head = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, 1)
  if head[1] and (not bestScore or tonumber(head[2]) < bestScore) then
    best, bestScore, bestIdx = head[1], tonumber(head[2]), i
  end
end
if not best then
  return false
end
redis.call('ZREM', KEYS[bestIdx], best)
redis.call('ZADD', KEYS[bestIdx+1], ARGV[2], best)
return best
`)

var failScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('SET', KEYS[3], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

var finishScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
if ARGV[2] ~= '' and redis.call('HGET', KEYS[2], ARGV[2]) == ARGV[1] then
  redis.call('HDEL', KEYS[2], ARGV[2])
end
redis.call('DEL', KEYS[3])
if ARGV[3] ~= '' then
  redis.call('LPUSH', KEYS[4], ARGV[3])
  redis.call('LTRIM', KEYS[4], 0, tonumber(ARGV[4]) - 1)
end
return 1
`)

// CreateTask implements EnqueuerRepository
func (s *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	body, err := json.Marshal(task)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{s.keysKey(), s.taskKey(task.ID), s.pendingKey(task.Queue)},
		task.Key, task.ID.String(), body, task.ScheduledAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis create task: %w", err)
	}
	if created == 0 {
		return ErrDuplicateTask
	}
	return nil
}

// ClaimTask implements WorkerRepository
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	keys := make([]string, 0, len(queues)*2)
	for _, q := range queues {
		keys = append(keys, s.pendingKey(q), s.processingKey(q))
	}

	now := time.Now()
	lockUntil := now.Add(lockDuration)

	id, err := claimScript.Run(ctx, s.client, keys, now.UnixMilli(), lockUntil.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("redis claim task: %w", err)
	}

	taskID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("redis claim task: invalid id %q: %w", id, err)
	}

	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	task.Status = TaskStatusProcessing
	task.LockedUntil = &lockUntil
	task.LockedBy = &workerID
	if !task.Exhausted {
		task.Attempts++
	}

	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask implements WorkerRepository
func (s *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	return s.finish(ctx, task, nil)
}

// FailTask implements WorkerRepository
func (s *RedisStorage) FailTask(ctx context.Context, taskID uuid.UUID, f Failure) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}

	task.Status = TaskStatusPending
	task.LastError = f.Error
	task.ScheduledAt = f.RetryAt
	task.Exhausted = task.Exhausted || f.Exhausted
	task.LockedUntil = nil
	task.LockedBy = nil

	body, err := json.Marshal(task)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}

	ok, err := failScript.Run(ctx, s.client,
		[]string{s.processingKey(task.Queue), s.pendingKey(task.Queue), s.taskKey(task.ID)},
		task.ID.String(), body, f.RetryAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis fail task: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

// MoveToDLQ implements WorkerRepository
func (s *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if errorMsg == "" {
		errorMsg = task.LastError
	}
	return s.finish(ctx, task, &DeadTask{
		ID:       uuid.New(),
		TaskID:   task.ID,
		Key:      task.Key,
		Queue:    task.Queue,
		TaskName: task.TaskName,
		Payload:  task.Payload,
		Error:    errorMsg,
		Attempts: task.Attempts,
		FailedAt: time.Now(),
	})
}

// Stats implements Inspector
func (s *RedisStorage) Stats(ctx context.Context, queue string) (Stats, error) {
	pipe := s.client.Pipeline()
	pending := pipe.ZCard(ctx, s.pendingKey(queue))
	processing := pipe.ZCard(ctx, s.processingKey(queue))
	dead := pipe.LLen(ctx, s.deadKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("redis queue stats: %w", err)
	}
	return Stats{
		Queue:      queue,
		Pending:    int(pending.Val()),
		Processing: int(processing.Val()),
		Dead:       int(dead.Val()),
	}, nil
}

// ListDead implements Inspector, newest first
func (s *RedisStorage) ListDead(ctx context.Context, queue string, limit int) ([]DeadTask, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := s.client.LRange(ctx, s.deadKey(queue), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list dead tasks: %w", err)
	}
	out := make([]DeadTask, 0, len(raw))
	for _, item := range raw {
		var d DeadTask
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("redis list dead tasks: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *RedisStorage) finish(ctx context.Context, task *Task, dead *DeadTask) error {
	var deadBody []byte
	if dead != nil {
		var err error
		if deadBody, err = json.Marshal(dead); err != nil {
			return errors.Join(ErrPayloadMarshal, err)
		}
	}

	ok, err := finishScript.Run(ctx, s.client,
		[]string{s.processingKey(task.Queue), s.keysKey(), s.taskKey(task.ID), s.deadKey(task.Queue)},
		task.ID.String(), task.Key, deadBody, strconv.FormatInt(s.deadCap, 10),
	).Int()
	if err != nil {
		return fmt.Errorf("redis finish task: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, task.ID)
	}
	return nil
}

func (s *RedisStorage) load(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	raw, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis load task: %w", err)
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("redis decode task %s: %w", taskID, err)
	}
	return &task, nil
}

func (s *RedisStorage) save(ctx context.Context, task *Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}
	if err := s.client.Set(ctx, s.taskKey(task.ID), body, 0).Err(); err != nil {
		return fmt.Errorf("redis save task: %w", err)
	}
	return nil
}

func (s *RedisStorage) taskKey(id uuid.UUID) string { return s.prefix + ":task:" + id.String() }
func (s *RedisStorage) keysKey() string             { return s.prefix + ":keys" }
func (s *RedisStorage) pendingKey(q string) string  { return s.prefix + ":pending:" + q }
func (s *RedisStorage) processingKey(q string) string {
	return s.prefix + ":processing:" + q
}
func (s *RedisStorage) deadKey(q string) string { return s.prefix + ":dead:" + q }
