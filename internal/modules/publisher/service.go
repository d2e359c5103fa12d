package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/modules/catalog"
	"github.com/mx-space/catalog/internal/pkg/imagestore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options controls a single publication.
type Options struct {
	// CreateOfficial promotes the written draft tree to official rows without notifying partner services.
	CreateOfficial bool
	// FailOnURLSlug turns a URL slug conflict into an error instead of falling back to the default slug.
	FailOnURLSlug bool
}

type Service struct {
	db      *gorm.DB
	catalog *catalog.Service
	images  imagestore.Store
	logger  *zap.Logger
}

func NewService(db *gorm.DB, cat *catalog.Service, opts ...ServiceOption) *Service {
	s := &Service{db: db, catalog: cat, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("PublisherService")
		}
	}
}

func WithImageStore(store imagestore.Store) ServiceOption {
	return func(s *Service) { s.images = store }
}

// PublishToCourseMetadata writes an editorial course run into the catalog as draft rows, and
// optionally official rows, in one transaction. It returns the draft run, or the official run
// when opts.CreateOfficial is set.
func (s *Service) PublishToCourseMetadata(ctx context.Context, partner *models.Partner, publisherRun *models.PublisherCourseRun, opts Options) (*models.CourseRun, error) {
	var result *models.CourseRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.publish(ctx, tx, partner, publisherRun.ID, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, partner *models.Partner, publisherRunID string, opts Options) (*models.CourseRun, error) {
	cat := s.catalog.WithTx(tx)

	pr, err := loadPublisherRun(tx, publisherRunID)
	if err != nil {
		return nil, err
	}
	pc := pr.Course

	video, err := ensureVideo(tx, pc.VideoLink)
	if err != nil {
		return nil, err
	}

	existing, err := findDiscoveryCourse(tx, partner, pc, pr)
	if err != nil {
		return nil, err
	}
	key, courseUUID := pc.Key, ""
	if existing != nil {
		key, courseUUID = existing.Key, existing.UUID
		if _, err := cat.EnsureDraftCourse(ctx, existing); err != nil {
			return nil, fmt.Errorf("ensure draft world for %s: %w", existing.Key, err)
		}
	}

	course, created, err := upsertDraftCourse(tx, partner, key, courseUUID, pc, video)
	if err != nil {
		return nil, err
	}

	if err := s.storeImage(ctx, tx, course, pc); err != nil {
		return nil, err
	}
	if err := linkCourseRelations(tx, course, pc); err != nil {
		return nil, err
	}

	officialRun, err := first[models.CourseRun](tx.Scopes(catalog.ScopeOfficial.Apply), map[string]interface{}{"key": pr.LMSCourseID})
	if err != nil {
		return nil, err
	}
	run, err := s.upsertDraftRun(ctx, cat, tx, course, pr, officialRun)
	if err != nil {
		return nil, err
	}
	if err := linkRunRelations(tx, run, pr); err != nil {
		return nil, err
	}
	if officialRun != nil && officialRun.DraftVersionID == nil {
		id := run.ID
		officialRun.DraftVersionID = &id
		if err := cat.SaveCourseRun(ctx, officialRun, catalog.Update, true); err != nil {
			return nil, fmt.Errorf("link official run %s: %w", officialRun.Key, err)
		}
	}

	if err := upsertEntitlements(tx, course, pc.Entitlements); err != nil {
		return nil, err
	}
	if err := s.setURLSlug(ctx, cat, tx, course, pc.URLSlug, opts.FailOnURLSlug); err != nil {
		return nil, err
	}
	if err := upsertSeats(tx, run, pr.Seats); err != nil {
		return nil, err
	}

	if created {
		if err := tx.Model(&models.Course{}).Where("id = ?", course.ID).
			Update("canonical_course_run_id", run.ID).Error; err != nil {
			return nil, fmt.Errorf("set canonical run: %w", err)
		}
	}

	s.logger.Info("published course run to catalog",
		zap.String("key", run.Key),
		zap.String("course", course.Key),
		zap.Bool("course_created", created),
		zap.Bool("official", opts.CreateOfficial),
	)

	if opts.CreateOfficial {
		return cat.UpdateOrCreateOfficialRun(ctx, run, false)
	}
	return cat.GetCourseRun(ctx, catalog.ScopeDraft, run.ID)
}

func loadPublisherRun(tx *gorm.DB, id string) (*models.PublisherCourseRun, error) {
	var pr models.PublisherCourseRun
	err := tx.
		Preload("Course").
		Preload("Course.Organizations").
		Preload("Course.Entitlements", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("TranscriptLanguages").
		Preload("Staff").
		Preload("Seats", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&pr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("publisher course run %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if pr.Course == nil {
		return nil, fmt.Errorf("publisher course of run %s: %w", id, catalog.ErrNotFound)
	}
	return &pr, nil
}

func ensureVideo(tx *gorm.DB, link string) (*models.Video, error) {
	if link == "" {
		return nil, nil
	}
	var v models.Video
	if err := tx.Where(models.Video{Src: link}).FirstOrCreate(&v).Error; err != nil {
		return nil, fmt.Errorf("get or create video: %w", err)
	}
	return &v, nil
}

// findDiscoveryCourse finds the official course the editorial run belongs to: through the official run
// with the same LMS key first, then by partner and course key.
func findDiscoveryCourse(tx *gorm.DB, partner *models.Partner, pc *models.PublisherCourse, pr *models.PublisherCourseRun) (*models.Course, error) {
	official := tx.Scopes(catalog.ScopeOfficial.Apply)
	if pr.LMSCourseID != "" {
		run, err := first[models.CourseRun](official, map[string]interface{}{"key": pr.LMSCourseID})
		if err != nil {
			return nil, err
		}
		if run != nil {
			return first[models.Course](tx, "id = ?", run.CourseID)
		}
	}
	return first[models.Course](tx.Scopes(catalog.ScopeOfficial.Apply), map[string]interface{}{
		"partner_id": partner.ID,
		"key":        pc.Key,
	})
}

func upsertDraftCourse(tx *gorm.DB, partner *models.Partner, key, courseUUID string, pc *models.PublisherCourse, video *models.Video) (*models.Course, bool, error) {
	course, err := first[models.Course](tx.Scopes(catalog.ScopeDraft.Apply), map[string]interface{}{
		"partner_id": partner.ID,
		"key":        key,
	})
	if err != nil {
		return nil, false, err
	}

	intent := catalog.Update
	if course == nil {
		intent = catalog.Insert
		if courseUUID == "" {
			courseUUID = uuid.New().String()
		}
		course = &models.Course{UUID: courseUUID, PartnerID: partner.ID, Key: key, Draft: true}
	}

	course.Title = pc.Title
	course.ShortDescription = pc.ShortDescription
	course.FullDescription = pc.FullDescription
	course.LevelType = pc.LevelType
	course.Outcome = pc.ExpectedLearnings
	course.PrerequisitesRaw = pc.Prerequisites
	course.SyllabusRaw = pc.Syllabus
	course.AdditionalInformation = pc.AdditionalInformation
	course.FAQ = pc.FAQ
	course.LearnerTestimonials = pc.LearnerTestimonial
	course.VideoID = nil
	if video != nil {
		course.VideoID = &video.ID
	}

	if err := catalog.Persist(tx, course, intent); err != nil {
		return nil, false, fmt.Errorf("%s draft course %s: %w", intent, key, err)
	}
	return course, intent == catalog.Insert, nil
}

func (s *Service) storeImage(ctx context.Context, tx *gorm.DB, course *models.Course, pc *models.PublisherCourse) error {
	if pc.ImageKey == "" {
		return nil
	}
	if s.images == nil {
		s.logger.Warn("no image store configured, course image skipped", zap.String("course", course.Key))
		return nil
	}
	url, err := imagestore.Copy(ctx, s.images, pc.ImageKey, imagestore.CourseImageKey(course.UUID, pc.ImageKey))
	if err != nil {
		return fmt.Errorf("store course image: %w", err)
	}
	course.ImageURL = url
	return tx.Model(&models.Course{}).Where("id = ?", course.ID).Update("image_url", url).Error
}

// linkCourseRelations adds the authoring organizations and replaces the subjects.
func linkCourseRelations(tx *gorm.DB, course *models.Course, pc *models.PublisherCourse) error {
	if len(pc.Organizations) > 0 {
		if err := tx.Model(course).Association("AuthoringOrganizations").Append(pc.Organizations); err != nil {
			return fmt.Errorf("add authoring organizations: %w", err)
		}
	}

	subjects, err := orderedSubjects(tx, pc.SubjectIDs())
	if err != nil {
		return err
	}
	assoc := tx.Model(course).Association("Subjects")
	if len(subjects) == 0 {
		return assoc.Clear()
	}
	if err := assoc.Replace(subjects); err != nil {
		return fmt.Errorf("replace subjects: %w", err)
	}
	return nil
}

// orderedSubjects loads subjects by id, dropping duplicates and keeping the first-seen order.
func orderedSubjects(tx *gorm.DB, ids []string) ([]models.Subject, error) {
	var unique []string
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	var rows []models.Subject
	if err := tx.Where("id IN ?", unique).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	byID := make(map[string]models.Subject, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]models.Subject, 0, len(unique))
	for _, id := range unique {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) upsertDraftRun(ctx context.Context, cat *catalog.Service, tx *gorm.DB, course *models.Course, pr *models.PublisherCourseRun, officialRun *models.CourseRun) (*models.CourseRun, error) {
	run, err := first[models.CourseRun](tx.Scopes(catalog.ScopeDraft.Apply), map[string]interface{}{"key": pr.LMSCourseID})
	if err != nil {
		return nil, err
	}
	intent := catalog.Update
	if run == nil {
		intent = catalog.Insert
		run = &models.CourseRun{UUID: uuid.New().String(), Key: pr.LMSCourseID, Draft: true}
	}

	run.CourseID = course.ID
	run.Start = pr.StartDate
	run.End = pr.EndDate
	run.PacingType = pr.PacingType
	run.TitleOverride = pr.TitleOverride
	run.MinEffort = pr.MinEffort
	run.MaxEffort = pr.MaxEffort
	run.LanguageCode = pr.LanguageCode
	run.WeeksToComplete = pr.Length
	run.HasOFACRestrictions = pr.HasOFACRestrictions
	run.ExternalKey = pr.ExternalKey
	run.ExpectedProgramName = pr.ExpectedProgramName
	run.ExpectedProgramType = pr.ExpectedProgramType
	if officialRun != nil {
		run.UUID = officialRun.UUID
	}

	if err := cat.SaveCourseRun(ctx, run, intent, false); err != nil {
		return nil, fmt.Errorf("%s draft course run %s: %w", intent, pr.LMSCourseID, err)
	}
	return run, nil
}

// linkRunRelations adds transcript languages and replaces the staff.
func linkRunRelations(tx *gorm.DB, run *models.CourseRun, pr *models.PublisherCourseRun) error {
	if len(pr.TranscriptLanguages) > 0 {
		if err := tx.Model(run).Association("TranscriptLanguages").Append(pr.TranscriptLanguages); err != nil {
			return fmt.Errorf("add transcript languages: %w", err)
		}
	}
	staff := tx.Model(run).Association("Staff")
	if len(pr.Staff) == 0 {
		return staff.Clear()
	}
	if err := staff.Replace(pr.Staff); err != nil {
		return fmt.Errorf("replace staff: %w", err)
	}
	return nil
}

func upsertEntitlements(tx *gorm.DB, course *models.Course, entitlements []models.PublisherCourseEntitlement) error {
	for _, pe := range entitlements {
		ent, err := first[models.CourseEntitlement](tx, map[string]interface{}{
			"course_id": course.ID,
			"mode":      pe.Mode,
			"draft":     true,
		})
		if err != nil {
			return err
		}
		intent := catalog.Update
		if ent == nil {
			intent = catalog.Insert
			ent = &models.CourseEntitlement{CourseID: course.ID, Mode: pe.Mode, Draft: true}
		}
		ent.PartnerID = course.PartnerID
		ent.Price = pe.Price
		ent.Currency = currencyOrDefault(pe.Currency)
		if err := catalog.Persist(tx, ent, intent); err != nil {
			return fmt.Errorf("%s draft entitlement %s: %w", intent, pe.Mode, err)
		}
	}
	return nil
}

// setURLSlug applies the editorial slug. An empty slug keeps the current active slug when there is one.
func (s *Service) setURLSlug(ctx context.Context, cat *catalog.Service, tx *gorm.DB, course *models.Course, urlSlug string, failOnConflict bool) error {
	if urlSlug == "" {
		active, err := catalog.ActiveURLSlug(tx, course.ID)
		if err != nil || active != "" {
			return err
		}
	}
	_, err := cat.SetActiveURLSlug(ctx, course, urlSlug)
	if err == nil || !errors.Is(err, catalog.ErrURLSlugConflict) {
		return err
	}
	if failOnConflict {
		return err
	}
	s.logger.Warn("url slug already in use, falling back to the default slug",
		zap.String("course", course.Key),
		zap.String("url_slug", urlSlug),
	)
	_, err = cat.SetActiveURLSlug(ctx, course, "")
	return err
}

// upsertSeats writes every editorial seat except credit seats. A masters track seat also gets a
// masters seat with the same terms.
func upsertSeats(tx *gorm.DB, run *models.CourseRun, seats []models.PublisherSeat) error {
	for _, ps := range seats {
		if ps.Type == models.SeatCredit {
			continue
		}
		if err := upsertSeat(tx, run, ps.Type, ps); err != nil {
			return err
		}
		if ps.MastersTrack {
			if err := upsertSeat(tx, run, models.SeatMasters, ps); err != nil {
				return err
			}
		}
	}
	return nil
}

func upsertSeat(tx *gorm.DB, run *models.CourseRun, seatType models.SeatType, ps models.PublisherSeat) error {
	currency := currencyOrDefault(ps.Currency)
	seat, err := first[models.Seat](tx, map[string]interface{}{
		"course_run_id": run.ID,
		"type":          seatType,
		"currency":      currency,
		"draft":         true,
	})
	if err != nil {
		return err
	}
	intent := catalog.Update
	if seat == nil {
		intent = catalog.Insert
		seat = &models.Seat{CourseRunID: run.ID, Type: seatType, Currency: currency, Draft: true}
	}
	seat.Price = ps.Price
	seat.UpgradeDeadline = ps.UpgradeDeadline
	if err := catalog.Persist(tx, seat, intent); err != nil {
		return fmt.Errorf("%s draft seat %s: %w", intent, seatType, err)
	}
	return nil
}

func currencyOrDefault(code string) string {
	if code == "" {
		return models.DefaultCurrency
	}
	return code
}

func first[T any](tx *gorm.DB, query interface{}, args ...interface{}) (*T, error) {
	var out T
	if err := tx.Where(query, args...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
