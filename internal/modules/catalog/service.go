package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/ecommerce"
	"github.com/mx-space/catalog/internal/pkg/lms"
	"github.com/mx-space/catalog/internal/pkg/pagination"
	"github.com/mx-space/catalog/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultUpgradeDeadlineDays is how long before run end a verified seat stops selling upgrades.
const DefaultUpgradeDeadlineDays = 10

// ClientFactory builds the partner API clients. A nil client means the partner is not configured.
type ClientFactory interface {
	Ecommerce(p *models.Partner) *ecommerce.Client
	LMS(p *models.Partner) *lms.Client
}

// PublicationNotifier is told about official course runs that changed.
type PublicationNotifier interface {
	CourseRunPublished(ctx context.Context, run *models.CourseRun) error
}

type Service struct {
	db                  *gorm.DB
	clients             ClientFactory
	notifier            PublicationNotifier
	logger              *zap.Logger
	now                 func() time.Time
	upgradeDeadlineDays int
	externalIDs         ExternalIDFunc
}

func NewService(db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{
		db:                  db,
		logger:              zap.NewNop(),
		now:                 time.Now,
		upgradeDeadlineDays: DefaultUpgradeDeadlineDays,
	}
	for _, o := range opts {
		o(s)
	}
	if s.externalIDs != nil {
		if err := registerExternalIDs(db, s.externalIDs); err != nil {
			s.logger.Error("failed to register external id callback", zap.Error(err))
		}
	}
	return s
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("CatalogService")
		}
	}
}

func WithClients(f ClientFactory) ServiceOption {
	return func(s *Service) { s.clients = f }
}

func WithNotifier(n PublicationNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithUpgradeDeadlineDays(days int) ServiceOption {
	return func(s *Service) {
		if days > 0 {
			s.upgradeDeadlineDays = days
		}
	}
}

// WithTx returns a copy of the service bound to tx. Transactions opened by the copy nest as savepoints.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	cp := *s
	cp.db = tx
	return &cp
}

func (s *Service) Logger() *zap.Logger { return s.logger }

// Intent tells persist whether the row is new or already stored.
type Intent int

const (
	Insert Intent = iota
	Update
)

func (i Intent) String() string {
	if i == Update {
		return "update"
	}
	return "insert"
}

// Persist writes the row itself, never its associations.
func Persist(tx *gorm.DB, obj interface{}, intent Intent) error {
	switch intent {
	case Insert:
		return tx.Omit(clause.Associations).Create(obj).Error
	case Update:
		return tx.Omit(clause.Associations).Save(obj).Error
	default:
		return fmt.Errorf("unknown persist intent %d", intent)
	}
}

// SaveCourseRun persists a run and, for official runs not suppressed, notifies the marketing publisher.
func (s *Service) SaveCourseRun(ctx context.Context, run *models.CourseRun, intent Intent, suppressPublication bool) error {
	if err := Persist(s.db.WithContext(ctx), run, intent); err != nil {
		return err
	}
	if !suppressPublication && !run.Draft {
		s.notifyPublication(ctx, run)
	}
	return nil
}

func (s *Service) notifyPublication(ctx context.Context, run *models.CourseRun) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CourseRunPublished(ctx, run); err != nil {
		s.logger.Warn("failed to queue course run publication", zap.String("key", run.Key), zap.Error(err))
	}
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

func preloadCourse(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Partner").
		Preload("Subjects").
		Preload("AuthoringOrganizations").
		Preload("SponsoringOrganizations").
		Preload("CourseRuns", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("CourseRuns.Seats", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Entitlements", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("URLSlugHistory").
		Preload("Editors")
}

func preloadRun(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Course").
		Preload("Course.Partner").
		Preload("Type").
		Preload("Type.Tracks").
		Preload("Staff").
		Preload("TranscriptLanguages").
		Preload("Seats", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") })
}

// GetCourse loads a course with its relations. Returns nil when absent from scope.
func (s *Service) GetCourse(ctx context.Context, scope Scope, id string) (*models.Course, error) {
	return first[models.Course](preloadCourse(s.db.WithContext(ctx)).Scopes(scope.Apply), "id = ?", id)
}

// GetCourseRun loads a run with its course, type and seats. Returns nil when absent from scope.
func (s *Service) GetCourseRun(ctx context.Context, scope Scope, id string) (*models.CourseRun, error) {
	return first[models.CourseRun](preloadRun(s.db.WithContext(ctx)).Scopes(scope.Apply), "id = ?", id)
}

// GetCourseRunByKey loads a run by its LMS key.
func (s *Service) GetCourseRunByKey(ctx context.Context, scope Scope, key string) (*models.CourseRun, error) {
	return first[models.CourseRun](preloadRun(s.db.WithContext(ctx)).Scopes(scope.Apply), map[string]interface{}{"key": key})
}

type CourseFilter struct {
	PartnerID string
	Key       string
}

func (s *Service) ListCourses(ctx context.Context, scope Scope, f CourseFilter, q pagination.Query) ([]models.Course, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.Course{}).Scopes(scope.Apply).Order("created_at DESC")
	if f.PartnerID != "" {
		tx = tx.Where("partner_id = ?", f.PartnerID)
	}
	if f.Key != "" {
		tx = tx.Where(map[string]interface{}{"key": f.Key})
	}
	var items []models.Course
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) ListCourseRuns(ctx context.Context, scope Scope, courseID string, q pagination.Query) ([]models.CourseRun, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.CourseRun{}).Scopes(scope.Apply).Order("created_at DESC")
	if courseID != "" {
		tx = tx.Where("course_id = ?", courseID)
	}
	var items []models.CourseRun
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}
