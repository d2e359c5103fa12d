package catalog

import (
	"context"
	"fmt"

	"github.com/mx-space/catalog/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureDraftWorld returns the draft counterpart of a course or course run, creating the draft
// course with all its runs, seats and entitlements when it does not exist yet.
func (s *Service) EnsureDraftWorld(ctx context.Context, entity interface{}) (interface{}, error) {
	switch e := entity.(type) {
	case *models.Course:
		return s.EnsureDraftCourse(ctx, e)
	case *models.CourseRun:
		return s.EnsureDraftCourseRun(ctx, e)
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedEntity, entity)
	}
}

func (s *Service) EnsureDraftCourse(ctx context.Context, course *models.Course) (*models.Course, error) {
	var draft *models.Course
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		draft, err = s.ensureDraftCourse(ctx, tx, course)
		return err
	})
	return draft, err
}

func (s *Service) EnsureDraftCourseRun(ctx context.Context, run *models.CourseRun) (*models.CourseRun, error) {
	var draft *models.CourseRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		draft, err = s.ensureDraftCourseRun(ctx, tx, run)
		return err
	})
	return draft, err
}

func (s *Service) ensureDraftCourseRun(ctx context.Context, tx *gorm.DB, run *models.CourseRun) (*models.CourseRun, error) {
	if run.Draft {
		return run, nil
	}
	stored, err := mustFirst[models.CourseRun](tx, "id = ?", run.ID)
	if err != nil {
		return nil, err
	}
	if stored.DraftVersionID != nil {
		run.DraftVersionID = stored.DraftVersionID
		return mustFirst[models.CourseRun](preloadRun(tx), "id = ?", *stored.DraftVersionID)
	}

	course, err := mustFirst[models.Course](tx, "id = ?", stored.CourseID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ensureDraftCourse(ctx, tx, course); err != nil {
		return nil, err
	}
	return mustFirst[models.CourseRun](preloadRun(tx).Scopes(ScopeDraft.Apply), map[string]interface{}{"key": stored.Key})
}

func (s *Service) ensureDraftCourse(ctx context.Context, tx *gorm.DB, course *models.Course) (*models.Course, error) {
	if course.Draft {
		return course, nil
	}
	working, err := mustFirst[models.Course](tx, "id = ?", course.ID)
	if err != nil {
		return nil, err
	}
	if working.DraftVersionID != nil {
		course.DraftVersionID = working.DraftVersionID
		return mustFirst[models.Course](preloadCourse(tx), "id = ?", *working.DraftVersionID)
	}
	originalSlug := working.Slug
	originalCanonical := working.CanonicalCourseRunID

	// The canonical run column is unique, so the draft starts without one.
	working.CanonicalCourseRunID = nil

	draftCourse, originalCourse, err := setDraftState(tx, working, func(c *models.Course) {
		c.Slug = originalSlug
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("draft course %s: %w", course.Key, err)
	}
	course.DraftVersionID = originalCourse.DraftVersionID

	if err := tx.Model(&models.CourseEditor{}).
		Where("course_id = ?", originalCourse.ID).
		Update("course_id", draftCourse.ID).Error; err != nil {
		return nil, fmt.Errorf("move editors: %w", err)
	}

	var runs []models.CourseRun
	if err := tx.Scopes(ScopeOfficial.Apply).
		Where("course_id = ?", originalCourse.ID).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, err
	}

	var canonicalUUID string
	if originalCanonical != nil {
		for _, r := range runs {
			if r.ID == *originalCanonical {
				canonicalUUID = r.UUID
			}
		}
	}

	for i := range runs {
		run := &runs[i]
		originalRunID := run.ID
		runSlug := run.Slug
		draftRun, _, err := setDraftState(tx, run, func(r *models.CourseRun) {
			r.CourseID = draftCourse.ID
			r.Slug = runSlug
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("draft course run %s: %w", run.Key, err)
		}

		var seats []models.Seat
		if err := tx.Scopes(ScopeOfficial.Apply).
			Where("course_run_id = ?", originalRunID).
			Order("created_at ASC").
			Find(&seats).Error; err != nil {
			return nil, err
		}
		for j := range seats {
			if _, _, err := setDraftState(tx, &seats[j], func(seat *models.Seat) {
				seat.CourseRunID = draftRun.ID
			}, nil); err != nil {
				return nil, fmt.Errorf("draft seat %s: %w", seats[j].Type, err)
			}
		}

		if canonicalUUID != "" && draftRun.UUID == canonicalUUID {
			id := draftRun.ID
			draftCourse.CanonicalCourseRunID = &id
		}
	}

	var entitlements []models.CourseEntitlement
	if err := tx.Scopes(ScopeOfficial.Apply).
		Where("course_id = ?", originalCourse.ID).
		Order("created_at ASC").
		Find(&entitlements).Error; err != nil {
		return nil, err
	}
	if len(entitlements) > 0 {
		for i := range entitlements {
			if _, _, err := setDraftState(tx, &entitlements[i], func(e *models.CourseEntitlement) {
				e.CourseID = draftCourse.ID
			}, nil); err != nil {
				return nil, fmt.Errorf("draft entitlement %s: %w", entitlements[i].Mode, err)
			}
		}
	} else if _, err := s.createMissingEntitlement(ctx, tx, draftCourse); err != nil {
		return nil, err
	}

	draftCourse.Slug = originalSlug
	if err := Persist(tx, draftCourse, Update); err != nil {
		return nil, fmt.Errorf("save draft course: %w", err)
	}

	s.logger.Info("draft world created",
		zap.String("course", originalCourse.Key),
		zap.String("official_id", originalCourse.ID),
		zap.String("draft_id", draftCourse.ID),
		zap.Int("runs", len(runs)),
	)
	return mustFirst[models.Course](preloadCourse(tx), "id = ?", draftCourse.ID)
}

// mustFirst is first with a missing row reported as ErrNotFound.
func mustFirst[T any](tx *gorm.DB, query interface{}, args ...interface{}) (*T, error) {
	out, err := first[T](tx, query, args...)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%T: %w", out, ErrNotFound)
	}
	return out, nil
}
