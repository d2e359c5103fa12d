package publisher

import (
	"context"
	"fmt"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/modules/catalog"
)

// CreateCourse stores an editorial course together with its entitlements.
func (s *Service) CreateCourse(ctx context.Context, pc *models.PublisherCourse) error {
	if pc.PartnerID == "" || pc.Key == "" {
		return fmt.Errorf("partner_id and key are required")
	}
	return s.db.WithContext(ctx).Omit("Organizations.*").Create(pc).Error
}

// CreateCourseRun stores an editorial run together with its seats.
func (s *Service) CreateCourseRun(ctx context.Context, pr *models.PublisherCourseRun) error {
	if pr.CourseID == "" || pr.LMSCourseID == "" {
		return fmt.Errorf("course_id and lms_course_id are required")
	}
	pr.Course = nil
	return s.db.WithContext(ctx).Omit("TranscriptLanguages.*", "Staff.*").Create(pr).Error
}

func (s *Service) GetCourseRun(ctx context.Context, id string) (*models.PublisherCourseRun, error) {
	pr, err := loadPublisherRun(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// Publish loads the run's partner and publishes the run.
func (s *Service) Publish(ctx context.Context, publisherRunID string, opts Options) (*models.CourseRun, error) {
	pr, err := loadPublisherRun(s.db.WithContext(ctx), publisherRunID)
	if err != nil {
		return nil, err
	}
	partner, err := first[models.Partner](s.db.WithContext(ctx), "id = ?", pr.Course.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, fmt.Errorf("partner %s: %w", pr.Course.PartnerID, catalog.ErrNotFound)
	}
	return s.PublishToCourseMetadata(ctx, partner, pr, opts)
}
