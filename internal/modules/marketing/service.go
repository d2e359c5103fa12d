package marketing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/marketing"
	"github.com/mx-space/catalog/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskPublishCourseRun is the queue type of course run publication tasks.
const TaskPublishCourseRun = "marketing.publish_course_run"

// SiteFactory builds a marketing-site client for a partner.
type SiteFactory interface {
	Marketing(p *models.Partner) (*marketing.Client, error)
}

type publishPayload struct {
	CourseRunID string `json:"course_run_id"`
	Key         string `json:"key"`
}

// PublishResult is stored on completed tasks.
type PublishResult struct {
	NodeID string `json:"node_id"`
}

type Service struct {
	db     *gorm.DB
	queue  *taskqueue.Queue
	sites  SiteFactory
	logger *zap.Logger
	batch  int
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("MarketingService")
		}
	}
}

// WithBatchSize caps how many tasks one drain claims.
func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batch = n
		}
	}
}

func NewService(db *gorm.DB, queue *taskqueue.Queue, sites SiteFactory, opts ...ServiceOption) *Service {
	s := &Service{db: db, queue: queue, sites: sites, logger: zap.NewNop(), batch: 50}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CourseRunPublished queues the run for publication. Repeated saves before a drain share one task.
func (s *Service) CourseRunPublished(ctx context.Context, run *models.CourseRun) error {
	if run == nil || run.ID == "" {
		return errors.New("course run has no id")
	}
	task, err := s.queue.Enqueue(ctx, TaskPublishCourseRun, publishPayload{CourseRunID: run.ID, Key: run.Key}, run.ID)
	if err != nil {
		return err
	}
	s.logger.Debug("course run publication queued", zap.String("key", run.Key), zap.String("task", task.ID))
	return nil
}

// Drain publishes pending runs and returns how many succeeded. Per-task failures are recorded on
// the task and do not stop the drain.
func (s *Service) Drain(ctx context.Context) (int, error) {
	tasks, err := s.queue.Claim(ctx, TaskPublishCourseRun, s.batch)
	if err != nil {
		return 0, fmt.Errorf("claim publication tasks: %w", err)
	}

	published := 0
	for _, task := range tasks {
		var p publishPayload
		if err := task.Decode(&p); err != nil {
			s.fail(ctx, task, fmt.Errorf("decode payload: %w", err))
			continue
		}
		nodeID, err := s.publish(ctx, p.CourseRunID)
		if err != nil {
			s.fail(ctx, task, err)
			continue
		}
		if err := s.queue.Complete(ctx, task.ID, PublishResult{NodeID: nodeID}); err != nil {
			return published, err
		}
		published++
		s.logger.Info("course run published to marketing site", zap.String("key", p.Key), zap.String("node", nodeID))
	}
	return published, nil
}

func (s *Service) fail(ctx context.Context, task *taskqueue.Task, cause error) {
	s.logger.Warn("course run publication failed", zap.String("task", task.ID), zap.Error(cause))
	if err := s.queue.Fail(ctx, task.ID, cause); err != nil {
		s.logger.Error("failed to record task failure", zap.String("task", task.ID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, runID string) (string, error) {
	var run models.CourseRun
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("Course.Partner").
		Where("id = ? AND draft = ?", runID, false).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("official course run %s not found", runID)
	}
	if err != nil {
		return "", err
	}
	if run.Course == nil || run.Course.Partner == nil {
		return "", fmt.Errorf("course run %s has no partner", run.Key)
	}

	client, err := s.sites.Marketing(run.Course.Partner)
	if err != nil {
		return "", err
	}
	if err := client.Login(ctx); err != nil {
		return "", err
	}
	authorID, err := client.UserID(ctx)
	if err != nil {
		return "", err
	}
	return client.UpsertNode(ctx, "field_course_id", run.Key, courseRunNode(&run, authorID))
}

func courseRunNode(run *models.CourseRun, authorID string) map[string]interface{} {
	node := map[string]interface{}{
		"type":              "course",
		"title":             run.Title(),
		"status":            1,
		"author":            map[string]string{"id": authorID},
		"field_course_id":   run.Key,
		"field_course_uuid": run.UUID,
		"field_course_slug": run.Slug,
	}
	if run.Start != nil {
		node["field_course_start_date"] = run.Start.Unix()
	}
	if run.End != nil {
		node["field_course_end_date"] = run.End.Unix()
	}
	return node
}

// Tasks lists publication tasks, newest first.
func (s *Service) Tasks(ctx context.Context, status taskqueue.Status, page, size int) ([]*taskqueue.Task, int64, error) {
	return s.queue.List(ctx, taskqueue.Filter{Type: TaskPublishCourseRun, Status: status}, page, size)
}

func (s *Service) Task(ctx context.Context, id string) (*taskqueue.Task, error) {
	return s.queue.Get(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id string) error { return s.queue.Cancel(ctx, id) }

func (s *Service) Delete(ctx context.Context, id string) error { return s.queue.Delete(ctx, id) }

// Purge drops finished tasks older than retention.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	return s.queue.Purge(ctx, time.Now().Add(-retention))
}
