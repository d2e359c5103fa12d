package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/mx-space/catalog/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotDraft = errors.New("only draft rows can be promoted")

// UpdateOrCreateOfficialCourse writes the official version of a draft course and its entitlements.
func (s *Service) UpdateOrCreateOfficialCourse(ctx context.Context, draft *models.Course) (*models.Course, error) {
	var official *models.Course
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		official, err = s.promoteCourse(tx, draft.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetCourse(ctx, ScopeOfficial, official.ID)
}

// UpdateOrCreateOfficialRun writes the official versions of a draft run, its course, seats and the
// course entitlements. With notifyServices the commerce and LMS pushes run after the commit.
func (s *Service) UpdateOrCreateOfficialRun(ctx context.Context, draft *models.CourseRun, notifyServices bool) (*models.CourseRun, error) {
	var officialID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.promoteCourseRun(tx, draft.ID)
		if err != nil {
			return err
		}
		officialID = run.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	official, err := s.GetCourseRun(ctx, ScopeOfficial, officialID)
	if err != nil {
		return nil, err
	}
	if official == nil {
		return nil, fmt.Errorf("official course run %s: %w", officialID, ErrNotFound)
	}

	if notifyServices {
		if _, err := s.PushToEcommerceForCourseRun(ctx, official); err != nil {
			return official, err
		}
		if err := s.PushTracksToLMSForCourseRun(ctx, official); err != nil {
			return official, err
		}
		s.notifyPublication(ctx, official)
	}
	return official, nil
}

func (s *Service) promoteCourse(tx *gorm.DB, draftCourseID string) (*models.Course, error) {
	working, err := mustFirst[models.Course](tx, "id = ?", draftCourseID)
	if err != nil {
		return nil, err
	}
	if !working.Draft {
		return nil, fmt.Errorf("course %s: %w", working.Key, ErrNotDraft)
	}

	official, err := setOfficialState(tx, working, nil)
	if err != nil {
		return nil, fmt.Errorf("promote course %s: %w", working.Key, err)
	}

	var entitlements []models.CourseEntitlement
	if err := tx.Scopes(ScopeDraft.Apply).
		Where("course_id = ?", draftCourseID).
		Order("created_at ASC").
		Find(&entitlements).Error; err != nil {
		return nil, err
	}
	for i := range entitlements {
		ent := &entitlements[i]
		ent.CourseID = official.ID
		if _, err := setOfficialState(tx, ent, nil); err != nil {
			return nil, fmt.Errorf("promote entitlement %s: %w", ent.Mode, err)
		}
	}

	active, err := ActiveURLSlug(tx, draftCourseID)
	if err != nil {
		return nil, err
	}
	if active != "" {
		if _, err := s.setActiveURLSlug(tx, official, active); err != nil {
			return nil, err
		}
	}
	return official, nil
}

func (s *Service) promoteCourseRun(tx *gorm.DB, draftRunID string) (*models.CourseRun, error) {
	working, err := mustFirst[models.CourseRun](tx, "id = ?", draftRunID)
	if err != nil {
		return nil, err
	}
	if !working.Draft {
		return nil, fmt.Errorf("course run %s: %w", working.Key, ErrNotDraft)
	}
	draftCourseID := working.CourseID

	officialCourse, err := s.promoteCourse(tx, draftCourseID)
	if err != nil {
		return nil, err
	}

	working.CourseID = officialCourse.ID
	officialRun, err := setOfficialState(tx, working, nil)
	if err != nil {
		return nil, fmt.Errorf("promote course run %s: %w", working.Key, err)
	}

	var seats []models.Seat
	if err := tx.Scopes(ScopeDraft.Apply).
		Where("course_run_id = ?", draftRunID).
		Order("created_at ASC").
		Find(&seats).Error; err != nil {
		return nil, err
	}
	for i := range seats {
		seat := &seats[i]
		seat.CourseRunID = officialRun.ID
		if _, err := setOfficialState(tx, seat, nil); err != nil {
			return nil, fmt.Errorf("promote seat %s: %w", seat.Type, err)
		}
	}

	draftCourse, err := mustFirst[models.Course](tx, "id = ?", draftCourseID)
	if err != nil {
		return nil, err
	}
	if draftCourse.CanonicalCourseRunID != nil && *draftCourse.CanonicalCourseRunID == draftRunID {
		id := officialRun.ID
		officialCourse.CanonicalCourseRunID = &id
		if err := Persist(tx, officialCourse, Update); err != nil {
			return nil, fmt.Errorf("link canonical run: %w", err)
		}
	}

	s.logger.Info("official course run written",
		zap.String("key", officialRun.Key),
		zap.String("official_id", officialRun.ID),
		zap.String("draft_id", draftRunID),
		zap.Int("seats", len(seats)),
	)
	return officialRun, nil
}
