package catalog

import (
	"context"
	"fmt"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/lms"
	"go.uber.org/zap"
)

// PushTracksToLMSForCourseRun creates the run's seatless enrollment modes on the LMS. Modes the LMS
// already has are left alone and nothing is ever removed. A failing mode is logged and skipped.
func (s *Service) PushTracksToLMSForCourseRun(ctx context.Context, run *models.CourseRun) error {
	runType := run.Type
	if runType == nil && run.TypeID != nil {
		loaded, err := first[models.CourseRunType](s.db.WithContext(ctx).Preload("Tracks"), "id = ?", *run.TypeID)
		if err != nil {
			return err
		}
		runType = loaded
	}
	if runType == nil {
		return nil
	}

	var seatless []models.Track
	for _, t := range runType.Tracks {
		if t.SeatType == nil {
			seatless = append(seatless, t)
		}
	}
	if len(seatless) == 0 {
		return nil
	}

	course, err := s.runCourse(ctx, run)
	if err != nil {
		return err
	}
	partner := course.Partner
	if !partner.HasOAuthCredentials() || s.clients == nil {
		s.logger.Info("lms api client is not configured, cannot publish lms tracks", zap.String("key", run.Key))
		return nil
	}
	client := s.clients.LMS(partner)
	if client == nil {
		s.logger.Info("no lms coursemode api url configured, cannot publish lms tracks", zap.String("key", run.Key))
		return nil
	}

	modes, err := client.CourseModes(ctx, run.Key)
	if err != nil {
		s.recordPush(ctx, models.PushLMS, partner.ID, run.Key, map[string]string{"course_id": run.Key}, nil, err)
		return fmt.Errorf("list lms course modes for %s: %w", run.Key, err)
	}
	existing := make(map[string]struct{}, len(modes))
	for _, m := range modes {
		existing[m.ModeSlug] = struct{}{}
	}

	for _, track := range seatless {
		if _, ok := existing[track.ModeSlug]; ok {
			continue
		}
		req := lms.CourseModeRequest{
			CourseID:        run.Key,
			ModeSlug:        track.ModeSlug,
			ModeDisplayName: track.ModeName,
			Currency:        "usd",
			MinPrice:        0,
		}
		err := client.CreateCourseMode(ctx, req)
		s.recordPush(ctx, models.PushLMS, partner.ID, run.Key, req, nil, err)
		if err != nil {
			s.logger.Warn("failed publishing lms mode",
				zap.String("mode", track.ModeSlug),
				zap.String("key", run.Key),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("published lms mode", zap.String("mode", track.ModeSlug), zap.String("key", run.Key))
	}
	return nil
}
