package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/catalog/internal/database/dbtest"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/modules/catalog"
	"github.com/mx-space/catalog/internal/pkg/imagestore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var testNow = time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	catalog *catalog.Service
	svc     *Service
	partner *models.Partner
	tick    time.Duration
}

func newEnv(t *testing.T, opts ...ServiceOption) *env {
	t.Helper()
	db := dbtest.Open(t)
	e := &env{t: t, ctx: context.Background(), db: db}
	e.partner = &models.Partner{Name: "edX", ShortCode: "edx"}
	require.NoError(t, db.Create(e.partner).Error)
	e.catalog = catalog.NewService(db, catalog.WithClock(func() time.Time { return testNow }))
	e.svc = NewService(db, e.catalog, opts...)
	return e
}

func (e *env) stamp() time.Time {
	e.tick += time.Minute
	return testNow.Add(-48 * time.Hour).Add(e.tick)
}

func (e *env) create(obj interface{}) {
	e.t.Helper()
	require.NoError(e.t, e.db.Omit(clause.Associations).Create(obj).Error)
}

func (e *env) subject(slug string) *models.Subject {
	s := &models.Subject{PartnerID: e.partner.ID, Slug: slug, Name: slug}
	e.create(s)
	return s
}

func (e *env) publisherCourse(key string, mutate ...func(*models.PublisherCourse)) *models.PublisherCourse {
	e.t.Helper()
	pc := &models.PublisherCourse{
		Base:             models.Base{CreatedAt: e.stamp()},
		PartnerID:        e.partner.ID,
		Key:              key,
		Title:            "Publisher " + key,
		ShortDescription: "short",
		FullDescription:  "full",
		LevelType:        "Introductory",
	}
	for _, m := range mutate {
		m(pc)
	}
	e.create(pc)
	return pc
}

func (e *env) publisherRun(pc *models.PublisherCourse, lmsKey string, mutate ...func(*models.PublisherCourseRun)) *models.PublisherCourseRun {
	e.t.Helper()
	start := testNow.AddDate(0, 1, 0)
	end := testNow.AddDate(0, 4, 0)
	pr := &models.PublisherCourseRun{
		Base:        models.Base{CreatedAt: e.stamp()},
		CourseID:    pc.ID,
		LMSCourseID: lmsKey,
		StartDate:   &start,
		EndDate:     &end,
		PacingType:  models.PacingSelf,
		MinEffort:   ptr(2),
		MaxEffort:   ptr(5),
		Length:      ptr(8),
	}
	for _, m := range mutate {
		m(pr)
	}
	e.create(pr)
	return pr
}

func (e *env) publisherSeat(pr *models.PublisherCourseRun, seatType models.SeatType, price string, mutate ...func(*models.PublisherSeat)) {
	e.t.Helper()
	ps := &models.PublisherSeat{
		Base:        models.Base{CreatedAt: e.stamp()},
		CourseRunID: pr.ID,
		Type:        seatType,
		Price:       decimal.RequireFromString(price),
		Currency:    "USD",
	}
	for _, m := range mutate {
		m(ps)
	}
	e.create(ps)
}

func (e *env) officialCourse(key string) *models.Course {
	e.t.Helper()
	c := &models.Course{
		Base:      models.Base{CreatedAt: e.stamp()},
		UUID:      uuid.New().String(),
		PartnerID: e.partner.ID,
		Key:       key,
		Title:     "Catalog " + key,
	}
	e.create(c)
	return c
}

func (e *env) officialRun(course *models.Course, key string) *models.CourseRun {
	e.t.Helper()
	r := &models.CourseRun{
		Base:     models.Base{CreatedAt: e.stamp()},
		UUID:     uuid.New().String(),
		CourseID: course.ID,
		Key:      key,
	}
	e.create(r)
	return r
}

func (e *env) count(model interface{}, query interface{}, args ...interface{}) int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }

func TestPublishCreatesDraftTree(t *testing.T) {
	e := newEnv(t)
	math := e.subject("math")
	cs := e.subject("computer-science")
	org := &models.Organization{PartnerID: e.partner.ID, Key: "HarvardX", Name: "Harvard"}
	e.create(org)

	pc := e.publisherCourse("edX+PubX", func(c *models.PublisherCourse) {
		c.VideoLink = "https://video.example.com/intro"
		c.ExpectedLearnings = "loops"
		c.URLSlug = "pub-x"
		c.PrimarySubjectID = &math.ID
		c.SecondarySubjectID = &cs.ID
		c.TertiarySubjectID = &math.ID
	})
	require.NoError(t, e.db.Model(pc).Association("Organizations").Append(org))
	e.create(&models.PublisherCourseEntitlement{CourseID: pc.ID, Mode: models.SeatVerified, Price: decimal.NewFromInt(150)})

	pr := e.publisherRun(pc, "course-v1:edX+PubX+1T2030")
	e.publisherSeat(pr, models.SeatAudit, "0")
	e.publisherSeat(pr, models.SeatVerified, "99", func(s *models.PublisherSeat) { s.MastersTrack = true })
	e.publisherSeat(pr, models.SeatCredit, "500")

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)

	assert.True(t, run.Draft)
	assert.Equal(t, pr.LMSCourseID, run.Key)
	assert.Equal(t, models.PacingSelf, run.PacingType)
	require.NotNil(t, run.WeeksToComplete)
	assert.Equal(t, 8, *run.WeeksToComplete)

	require.NotNil(t, run.Course)
	course := run.Course
	assert.True(t, course.Draft)
	assert.Equal(t, pc.Key, course.Key)
	assert.Equal(t, pc.Title, course.Title)
	assert.Equal(t, "loops", course.Outcome)
	require.NotNil(t, course.CanonicalCourseRunID)
	assert.Equal(t, run.ID, *course.CanonicalCourseRunID)
	require.NotNil(t, course.VideoID)
	assert.EqualValues(t, 1, e.count(&models.Video{}, map[string]interface{}{"src": pc.VideoLink}))

	types := map[models.SeatType]string{}
	for _, s := range run.Seats {
		assert.True(t, s.Draft)
		types[s.Type] = s.Price.StringFixed(2)
	}
	assert.Equal(t, map[models.SeatType]string{
		models.SeatAudit:    "0.00",
		models.SeatVerified: "99.00",
		models.SeatMasters:  "99.00",
	}, types)

	var ent models.CourseEntitlement
	require.NoError(t, e.db.First(&ent, "course_id = ?", course.ID).Error)
	assert.True(t, ent.Draft)
	assert.Equal(t, models.DefaultCurrency, ent.Currency)

	var subjects []models.Subject
	require.NoError(t, e.db.Model(course).Association("Subjects").Find(&subjects))
	assert.Len(t, subjects, 2)

	var orgs []models.Organization
	require.NoError(t, e.db.Model(course).Association("AuthoringOrganizations").Find(&orgs))
	require.Len(t, orgs, 1)
	assert.Equal(t, org.ID, orgs[0].ID)

	active, err := catalog.ActiveURLSlug(e.db, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "pub-x", active)

	assert.EqualValues(t, 0, e.count(&models.Course{}, map[string]interface{}{"draft": false}))
}

func TestPublishIsRepeatable(t *testing.T) {
	e := newEnv(t)
	pc := e.publisherCourse("edX+Again")
	pr := e.publisherRun(pc, "course-v1:edX+Again+1T2030")
	e.publisherSeat(pr, models.SeatVerified, "49")

	first, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)

	require.NoError(t, e.db.Model(&models.PublisherSeat{}).Where("course_run_id = ?", pr.ID).
		Update("price", decimal.NewFromInt(79)).Error)
	second, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CourseID, second.CourseID)
	require.Len(t, second.Seats, 1)
	assert.True(t, second.Seats[0].Price.Equal(decimal.NewFromInt(79)))
	assert.EqualValues(t, 1, e.count(&models.Course{}, map[string]interface{}{"draft": true}))
}

func TestPublishReusesExistingOfficialCourse(t *testing.T) {
	e := newEnv(t)
	official := e.officialCourse("edX+Catalog")
	officialRun := e.officialRun(official, "course-v1:edX+Catalog+1T2030")

	pc := e.publisherCourse("edX+Renamed")
	pr := e.publisherRun(pc, officialRun.Key)

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)

	assert.True(t, run.Draft)
	assert.Equal(t, officialRun.UUID, run.UUID)
	require.NotNil(t, run.Course)
	assert.Equal(t, official.Key, run.Course.Key)
	assert.Equal(t, official.UUID, run.Course.UUID)
	assert.Nil(t, run.Course.CanonicalCourseRunID, "existing courses keep their canonical choice")

	var stored models.Course
	require.NoError(t, e.db.First(&stored, "id = ?", official.ID).Error)
	require.NotNil(t, stored.DraftVersionID)
	assert.Equal(t, run.CourseID, *stored.DraftVersionID)
	assert.Equal(t, "Catalog edX+Catalog", stored.Title, "official rows are untouched")

	assert.EqualValues(t, 1, e.count(&models.Course{}, map[string]interface{}{"draft": true}))
	assert.EqualValues(t, 1, e.count(&models.CourseRun{}, map[string]interface{}{"draft": true}))
}

func TestPublishLinksUnpairedOfficialRun(t *testing.T) {
	e := newEnv(t)
	official := e.officialCourse("edX+Link")
	_, err := e.catalog.EnsureDraftCourse(e.ctx, official)
	require.NoError(t, err)
	lateRun := e.officialRun(official, "course-v1:edX+Link+2T2030")

	pc := e.publisherCourse("edX+Link")
	pr := e.publisherRun(pc, lateRun.Key)

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)
	assert.Equal(t, lateRun.UUID, run.UUID)

	var stored models.CourseRun
	require.NoError(t, e.db.First(&stored, "id = ?", lateRun.ID).Error)
	require.NotNil(t, stored.DraftVersionID)
	assert.Equal(t, run.ID, *stored.DraftVersionID)
}

func TestPublishURLSlugConflict(t *testing.T) {
	e := newEnv(t)
	holder := &models.Course{UUID: uuid.New().String(), PartnerID: e.partner.ID, Key: "edX+Holder", Title: "Holder", Draft: true}
	e.create(holder)
	_, err := e.catalog.SetActiveURLSlug(e.ctx, holder, "wanted")
	require.NoError(t, err)

	pc := e.publisherCourse("edX+Wants", func(c *models.PublisherCourse) {
		c.Title = "Wants Slug"
		c.URLSlug = "wanted"
	})
	pr := e.publisherRun(pc, "course-v1:edX+Wants+1T2030")

	_, err = e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{FailOnURLSlug: true})
	require.ErrorIs(t, err, catalog.ErrURLSlugConflict)
	assert.EqualValues(t, 0, e.count(&models.CourseRun{}, "1 = 1"), "the whole publication rolls back")

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)
	active, err := catalog.ActiveURLSlug(e.db, run.CourseID)
	require.NoError(t, err)
	assert.Equal(t, "wants-slug", active)
}

func TestPublishCreateOfficial(t *testing.T) {
	e := newEnv(t)
	pc := e.publisherCourse("edX+Live", func(c *models.PublisherCourse) { c.URLSlug = "live" })
	pr := e.publisherRun(pc, "course-v1:edX+Live+1T2030")
	e.publisherSeat(pr, models.SeatVerified, "49")

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{CreateOfficial: true})
	require.NoError(t, err)

	assert.False(t, run.Draft)
	require.NotNil(t, run.DraftVersionID)
	require.Len(t, run.Seats, 1)
	assert.False(t, run.Seats[0].Draft)
	require.NotNil(t, run.Course)
	assert.False(t, run.Course.Draft)
	require.NotNil(t, run.Course.CanonicalCourseRunID)
	assert.Equal(t, run.ID, *run.Course.CanonicalCourseRunID)

	active, err := catalog.ActiveURLSlug(e.db, run.CourseID)
	require.NoError(t, err)
	assert.Equal(t, "live", active)
}

func TestPublishCreateOfficialCarriesRelations(t *testing.T) {
	e := newEnv(t)
	math := e.subject("math")
	org := &models.Organization{PartnerID: e.partner.ID, Key: "MITx", Name: "MIT"}
	e.create(org)
	alice := &models.Person{PartnerID: e.partner.ID, UUID: uuid.New().String(), GivenName: "Alice"}
	e.create(alice)
	en := &models.LanguageTag{Code: "en", Name: "English"}
	e.create(en)

	pc := e.publisherCourse("edX+Staffed", func(c *models.PublisherCourse) { c.PrimarySubjectID = &math.ID })
	require.NoError(t, e.db.Model(pc).Association("Organizations").Append(org))
	pr := e.publisherRun(pc, "course-v1:edX+Staffed+1T2030")
	require.NoError(t, e.db.Model(pr).Association("Staff").Append(alice))
	require.NoError(t, e.db.Model(pr).Association("TranscriptLanguages").Append(en))
	e.publisherSeat(pr, models.SeatVerified, "49")

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{CreateOfficial: true})
	require.NoError(t, err)
	require.False(t, run.Draft)

	official := &models.Course{Base: models.Base{ID: run.CourseID}}
	var subjects []models.Subject
	require.NoError(t, e.db.Model(official).Association("Subjects").Find(&subjects))
	require.Len(t, subjects, 1)
	assert.Equal(t, math.ID, subjects[0].ID)

	var orgs []models.Organization
	require.NoError(t, e.db.Model(official).Association("AuthoringOrganizations").Find(&orgs))
	require.Len(t, orgs, 1)
	assert.Equal(t, org.ID, orgs[0].ID)

	officialRun := &models.CourseRun{Base: models.Base{ID: run.ID}}
	var staff []models.Person
	require.NoError(t, e.db.Model(officialRun).Association("Staff").Find(&staff))
	require.Len(t, staff, 1)
	assert.Equal(t, alice.ID, staff[0].ID)

	var languages []models.LanguageTag
	require.NoError(t, e.db.Model(officialRun).Association("TranscriptLanguages").Find(&languages))
	require.Len(t, languages, 1)
	assert.Equal(t, "en", languages[0].Code)

	// Publishing again with CreateOfficial re-promotes the same official rows.
	again, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{CreateOfficial: true})
	require.NoError(t, err)
	assert.Equal(t, run.ID, again.ID)
	assert.EqualValues(t, 1, e.count(&models.Course{}, map[string]interface{}{"draft": false}))
}

func TestPublishStoresCourseImage(t *testing.T) {
	store, err := imagestore.NewLocal(t.TempDir(), "https://media.example.com")
	require.NoError(t, err)
	e := newEnv(t, WithImageStore(store))
	require.NoError(t, store.Put(context.Background(), "publisher/card.png", []byte("\x89PNG\r\n\x1a\n"), "image/png"))

	pc := e.publisherCourse("edX+Pic", func(c *models.PublisherCourse) { c.ImageKey = "publisher/card.png" })
	pr := e.publisherRun(pc, "course-v1:edX+Pic+1T2030")

	run, err := e.svc.PublishToCourseMetadata(e.ctx, e.partner, pr, Options{})
	require.NoError(t, err)
	require.NotNil(t, run.Course)
	assert.Equal(t, "https://media.example.com/media/course/image/"+run.Course.UUID+"-card.png", run.Course.ImageURL)
}

func TestOrderedSubjectsDeduplicates(t *testing.T) {
	e := newEnv(t)
	a := e.subject("a")
	b := e.subject("b")

	got, err := orderedSubjects(e.db, []string{b.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)

	got, err = orderedSubjects(e.db, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
