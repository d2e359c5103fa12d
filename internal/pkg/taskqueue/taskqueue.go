package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisc "github.com/mx-space/catalog/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether no worker will touch the task again.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNotPending   = errors.New("only pending tasks can be cancelled")
)

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v interface{}) error {
	return json.Unmarshal(t.Payload, v)
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Type   string
	Status Status
}

// Queue is a Redis-backed task queue. Task bodies live under <prefix>task:<id>, a sorted set
// indexes them by creation time and one hash per type maps dedup keys to live task ids.
type Queue struct {
	rc     *redisc.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Queue)

func WithPrefix(prefix string) Option {
	return func(q *Queue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func New(rc *redisc.Client, opts ...Option) *Queue {
	q := &Queue{rc: rc, prefix: "catalog:", ttl: 7 * 24 * time.Hour, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) taskKey(id string) string        { return q.prefix + "task:" + id }
func (q *Queue) indexKey() string                { return q.prefix + "tasks:index" }
func (q *Queue) dedupKey(taskType string) string { return q.prefix + "tasks:dedup:" + taskType }

// Enqueue stores a pending task. While a task with the same type and dedup key is unfinished, that
// task is returned instead of a new one.
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*Task, error) {
	rdb := q.rc.Raw()
	if dedupKey != "" {
		id, err := rdb.HGet(ctx, q.dedupKey(taskType), dedupKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		if id != "" {
			existing, err := q.Get(ctx, id)
			if err != nil && !errors.Is(err, ErrTaskNotFound) {
				return nil, err
			}
			if existing != nil && !existing.Status.Finished() {
				return existing, nil
			}
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode task payload: %w", err)
	}
	now := q.now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   raw,
		Status:    StatusPending,
		DedupKey:  dedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	pipe := rdb.TxPipeline()
	pipe.Set(ctx, q.taskKey(task.ID), data, q.ttl)
	pipe.ZAdd(ctx, q.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: task.ID})
	if dedupKey != "" {
		pipe.HSet(ctx, q.dedupKey(taskType), dedupKey, task.ID)
		pipe.Expire(ctx, q.dedupKey(taskType), q.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return task, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*Task, error) {
	data, err := q.rc.Raw().Get(ctx, q.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

func (q *Queue) save(ctx context.Context, task *Task) error {
	task.UpdatedAt = q.now()
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if task.Status.Finished() && task.DedupKey != "" {
		q.rc.Raw().HDel(ctx, q.dedupKey(task.Type), task.DedupKey)
	}
	return q.rc.Raw().Set(ctx, q.taskKey(task.ID), data, q.ttl).Err()
}

// Claim marks up to limit pending tasks of taskType as running, oldest first, and returns them.
func (q *Queue) Claim(ctx context.Context, taskType string, limit int) ([]*Task, error) {
	ids, err := q.rc.Raw().ZRange(ctx, q.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var claimed []*Task
	for _, id := range ids {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		task, err := q.Get(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			q.rc.Raw().ZRem(ctx, q.indexKey(), id)
			continue
		}
		if err != nil {
			return claimed, err
		}
		if task.Type != taskType || task.Status != StatusPending {
			continue
		}
		task.Status = StatusRunning
		task.Attempts++
		if err := q.save(ctx, task); err != nil {
			return claimed, err
		}
		claimed = append(claimed, task)
	}
	return claimed, nil
}

// Complete marks a task completed with an optional result.
func (q *Queue) Complete(ctx context.Context, id string, result interface{}) error {
	task, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	task.Status = StatusCompleted
	task.Error = ""
	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
	}
	return q.save(ctx, task)
}

// Fail marks a task failed with the cause.
func (q *Queue) Fail(ctx context.Context, id string, cause error) error {
	task, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	task.Status = StatusFailed
	if cause != nil {
		task.Error = cause.Error()
	}
	return q.save(ctx, task)
}

// Cancel marks a pending task cancelled.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	task, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != StatusPending {
		return ErrNotPending
	}
	task.Status = StatusCancelled
	task.Error = "cancelled"
	return q.save(ctx, task)
}

// List returns matching tasks, newest first, with the total match count.
func (q *Queue) List(ctx context.Context, f Filter, page, size int) ([]*Task, int64, error) {
	ids, err := q.rc.Raw().ZRevRange(ctx, q.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := q.Get(ctx, id)
		if err != nil {
			continue
		}
		if f.Type != "" && task.Type != f.Type {
			continue
		}
		if f.Status != "" && task.Status != f.Status {
			continue
		}
		matched = append(matched, task)
	}

	total := int64(len(matched))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = len(matched)
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return []*Task{}, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Delete removes a task regardless of its state.
func (q *Queue) Delete(ctx context.Context, id string) error {
	task, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := q.rc.Raw().TxPipeline()
	pipe.Del(ctx, q.taskKey(id))
	pipe.ZRem(ctx, q.indexKey(), id)
	if task.DedupKey != "" {
		pipe.HDel(ctx, q.dedupKey(task.Type), task.DedupKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Purge removes finished tasks created before the cutoff and returns how many were removed.
func (q *Queue) Purge(ctx context.Context, before time.Time) (int, error) {
	ids, err := q.rc.Raw().ZRangeByScore(ctx, q.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", before.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		task, err := q.Get(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			q.rc.Raw().ZRem(ctx, q.indexKey(), id)
			continue
		}
		if err != nil {
			return removed, err
		}
		if !task.Status.Finished() {
			continue
		}
		if err := q.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
