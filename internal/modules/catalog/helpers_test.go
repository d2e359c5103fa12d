package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/catalog/internal/database/dbtest"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/ecommerce"
	"github.com/mx-space/catalog/internal/pkg/lms"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var testNow = time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeClients struct {
	ecommerce *ecommerce.Client
	lms       *lms.Client
}

func (f *fakeClients) Ecommerce(*models.Partner) *ecommerce.Client { return f.ecommerce }
func (f *fakeClients) LMS(*models.Partner) *lms.Client             { return f.lms }

type recordingNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (n *recordingNotifier) CourseRunPublished(_ context.Context, run *models.CourseRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, run.Key)
	return nil
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	svc     *Service
	partner *models.Partner
	clients *fakeClients
	notes   *recordingNotifier
	tick    time.Duration
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		clients: &fakeClients{},
		notes:   &recordingNotifier{},
	}
	f.partner = &models.Partner{
		Name:               "edX",
		ShortCode:          "edx",
		EcommerceAPIURL:    "https://ecommerce.example.com/api/v2/",
		OAuth2ProviderURL:  "https://lms.example.com/oauth2",
		OAuth2ClientID:     "client",
		OAuth2ClientSecret: "secret",
	}
	require.NoError(t, db.Create(f.partner).Error)

	base := []ServiceOption{
		WithClients(f.clients),
		WithNotifier(f.notes),
		WithClock(func() time.Time { return testNow }),
	}
	f.svc = NewService(db, append(base, opts...)...)
	return f
}

// stamp returns strictly increasing creation times so ordering by created_at is deterministic.
func (f *fixture) stamp() time.Time {
	f.tick += time.Minute
	return testNow.Add(-24 * time.Hour).Add(f.tick)
}

func (f *fixture) create(obj interface{}) {
	f.t.Helper()
	require.NoError(f.t, f.db.Omit(clause.Associations).Create(obj).Error)
}

func (f *fixture) course(key string, mutate ...func(*models.Course)) *models.Course {
	f.t.Helper()
	c := &models.Course{
		Base:      models.Base{CreatedAt: f.stamp()},
		UUID:      uuid.New().String(),
		PartnerID: f.partner.ID,
		Key:       key,
		Title:     "Course " + key,
	}
	for _, m := range mutate {
		m(c)
	}
	f.create(c)
	return c
}

func (f *fixture) run(course *models.Course, key string, mutate ...func(*models.CourseRun)) *models.CourseRun {
	f.t.Helper()
	end := testNow.AddDate(0, 3, 0)
	r := &models.CourseRun{
		Base:       models.Base{CreatedAt: f.stamp()},
		UUID:       uuid.New().String(),
		CourseID:   course.ID,
		Key:        key,
		Start:      ptr(testNow.AddDate(0, -1, 0)),
		End:        &end,
		PacingType: models.PacingInstructor,
		Draft:      course.Draft,
	}
	for _, m := range mutate {
		m(r)
	}
	f.create(r)
	return r
}

func (f *fixture) seat(run *models.CourseRun, seatType models.SeatType, price string, mutate ...func(*models.Seat)) *models.Seat {
	f.t.Helper()
	s := &models.Seat{
		Base:        models.Base{CreatedAt: f.stamp()},
		CourseRunID: run.ID,
		Type:        seatType,
		Price:       decimal.RequireFromString(price),
		Currency:    models.DefaultCurrency,
		Draft:       run.Draft,
	}
	for _, m := range mutate {
		m(s)
	}
	f.create(s)
	return s
}

func (f *fixture) entitlement(course *models.Course, mode models.SeatType, price string) *models.CourseEntitlement {
	f.t.Helper()
	e := &models.CourseEntitlement{
		Base:      models.Base{CreatedAt: f.stamp()},
		CourseID:  course.ID,
		PartnerID: course.PartnerID,
		Mode:      mode,
		Price:     decimal.RequireFromString(price),
		Currency:  models.DefaultCurrency,
		Draft:     course.Draft,
	}
	f.create(e)
	return e
}

func (f *fixture) subject(slug string) *models.Subject {
	f.t.Helper()
	s := &models.Subject{PartnerID: f.partner.ID, Slug: slug, Name: slug}
	f.create(s)
	return s
}

func (f *fixture) person(name string) *models.Person {
	f.t.Helper()
	p := &models.Person{PartnerID: f.partner.ID, UUID: uuid.New().String(), GivenName: name}
	f.create(p)
	return p
}

func (f *fixture) setCanonical(course *models.Course, run *models.CourseRun) {
	f.t.Helper()
	id := run.ID
	course.CanonicalCourseRunID = &id
	require.NoError(f.t, f.db.Model(&models.Course{}).Where("id = ?", course.ID).Update("canonical_course_run_id", id).Error)
}

func (f *fixture) reloadCourse(id string) *models.Course {
	f.t.Helper()
	var c models.Course
	require.NoError(f.t, f.db.First(&c, "id = ?", id).Error)
	return &c
}

func (f *fixture) reloadRun(id string) *models.CourseRun {
	f.t.Helper()
	var r models.CourseRun
	require.NoError(f.t, f.db.First(&r, "id = ?", id).Error)
	return &r
}

func (f *fixture) count(model interface{}, query interface{}, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) organization(key string) *models.Organization {
	f.t.Helper()
	o := &models.Organization{PartnerID: f.partner.ID, Key: key, Name: key}
	f.create(o)
	return o
}

func (f *fixture) language(code string) *models.LanguageTag {
	f.t.Helper()
	l := &models.LanguageTag{Code: code, Name: code}
	f.create(l)
	return l
}

func (f *fixture) link(obj interface{}, name string, values ...interface{}) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(obj).Association(name).Append(values...))
}

// linkedIDs lists the primary keys stored for a many-to-many association of obj.
func (f *fixture) linkedIDs(obj interface{}, name string) []string {
	f.t.Helper()
	var ids []string
	switch name {
	case "Subjects":
		var rows []models.Subject
		require.NoError(f.t, f.db.Model(obj).Association(name).Find(&rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
	case "AuthoringOrganizations", "SponsoringOrganizations":
		var rows []models.Organization
		require.NoError(f.t, f.db.Model(obj).Association(name).Find(&rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
	case "Staff":
		var rows []models.Person
		require.NoError(f.t, f.db.Model(obj).Association(name).Find(&rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
	case "TranscriptLanguages":
		var rows []models.LanguageTag
		require.NoError(f.t, f.db.Model(obj).Association(name).Find(&rows))
		for _, r := range rows {
			ids = append(ids, r.Code)
		}
	default:
		f.t.Fatalf("unknown association %s", name)
	}
	return ids
}
