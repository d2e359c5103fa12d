package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/lms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lmsStub struct {
	mu      sync.Mutex
	created []lms.CourseModeRequest
	gets    int
}

func (f *fixture) serveLMS(existing []string, failing map[string]bool) *lmsStub {
	f.t.Helper()
	stub := &lmsStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			stub.gets++
			modes := make([]lms.CourseMode, 0, len(existing))
			for _, slug := range existing {
				modes = append(modes, lms.CourseMode{ModeSlug: slug})
			}
			_ = json.NewEncoder(w).Encode(modes)
		case http.MethodPost:
			var req lms.CourseModeRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if failing[req.ModeSlug] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			stub.created = append(stub.created, req)
			w.WriteHeader(http.StatusCreated)
		}
	}))
	f.t.Cleanup(srv.Close)

	client, err := lms.New(srv.Client(), srv.URL+"/api/course_modes/v1/")
	require.NoError(f.t, err)
	f.clients.lms = client
	return stub
}

func (f *fixture) runType(slug string, tracks ...models.Track) *models.CourseRunType {
	f.t.Helper()
	rt := &models.CourseRunType{UUID: slug + "-uuid", Slug: slug, Name: slug, Tracks: tracks}
	require.NoError(f.t, f.db.Create(rt).Error)
	return rt
}

func seatlessTrack(slug string) models.Track {
	return models.Track{ModeSlug: slug, ModeName: slug + " track"}
}

func TestPushTracksCreatesOnlyMissingSeatlessModes(t *testing.T) {
	f := newFixture(t)
	stub := f.serveLMS([]string{"masters"}, nil)

	verified := models.SeatVerified
	rt := f.runType("emeritus",
		models.Track{ModeSlug: "verified", ModeName: "Verified", SeatType: &verified},
		seatlessTrack("masters"),
		seatlessTrack("unpaid-executive-education"),
	)
	course := f.course("edX+Tracks")
	run := f.run(course, "course-v1:edX+Tracks+1T2030", func(r *models.CourseRun) { r.TypeID = &rt.ID })

	require.NoError(t, f.svc.PushTracksToLMSForCourseRun(f.ctx, run))

	assert.Equal(t, 1, stub.gets)
	require.Len(t, stub.created, 1)
	got := stub.created[0]
	assert.Equal(t, run.Key, got.CourseID)
	assert.Equal(t, "unpaid-executive-education", got.ModeSlug)
	assert.Equal(t, "unpaid-executive-education track", got.ModeDisplayName)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, 0, got.MinPrice)

	assert.EqualValues(t, 1, f.count(&models.PushLog{}, map[string]interface{}{"target": models.PushLMS, "success": true}))
}

func TestPushTracksSurvivesFailingMode(t *testing.T) {
	f := newFixture(t)
	stub := f.serveLMS(nil, map[string]bool{"first": true})

	rt := f.runType("paid", seatlessTrack("first"), seatlessTrack("second"))
	course := f.course("edX+Partial")
	run := f.run(course, "course-v1:edX+Partial+1T2030", func(r *models.CourseRun) { r.TypeID = &rt.ID })

	require.NoError(t, f.svc.PushTracksToLMSForCourseRun(f.ctx, run))
	require.Len(t, stub.created, 1)
	assert.Equal(t, "second", stub.created[0].ModeSlug)
	assert.EqualValues(t, 1, f.count(&models.PushLog{}, map[string]interface{}{"target": models.PushLMS, "success": false}))
}

func TestPushTracksSkipsWithoutWork(t *testing.T) {
	f := newFixture(t)
	stub := f.serveLMS(nil, nil)
	course := f.course("edX+Untyped")

	untyped := f.run(course, "course-v1:edX+Untyped+1T2030")
	require.NoError(t, f.svc.PushTracksToLMSForCourseRun(f.ctx, untyped))

	verified := models.SeatVerified
	seated := f.runType("seated", models.Track{ModeSlug: "verified", SeatType: &verified})
	seatedRun := f.run(course, "course-v1:edX+Untyped+2T2030", func(r *models.CourseRun) { r.TypeID = &seated.ID })
	require.NoError(t, f.svc.PushTracksToLMSForCourseRun(f.ctx, seatedRun))

	assert.Zero(t, stub.gets)
	assert.Empty(t, stub.created)
}

func TestPushTracksWithoutCredentialsOrClient(t *testing.T) {
	f := newFixture(t)
	rt := f.runType("bare", seatlessTrack("masters"))
	course := f.course("edX+NoClient")
	run := f.run(course, "course-v1:edX+NoClient+1T2030", func(r *models.CourseRun) { r.TypeID = &rt.ID })

	require.NoError(t, f.svc.PushTracksToLMSForCourseRun(f.ctx, run), "missing lms client is not an error")

	stub := f.serveLMS(nil, nil)
	f.partner.OAuth2ClientID = ""
	require.NoError(t, f.db.Save(f.partner).Error)
	run.Course = nil
	require.NoError(t, f.svc.PushTracksToLMSForCourseRun(f.ctx, run))
	assert.Zero(t, stub.gets)
}

func TestPushTracksReturnsListFailure(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	client, err := lms.New(srv.Client(), srv.URL)
	require.NoError(t, err)
	f.clients.lms = client

	rt := f.runType("denied", seatlessTrack("masters"))
	course := f.course("edX+Denied")
	run := f.run(course, "course-v1:edX+Denied+1T2030", func(r *models.CourseRun) { r.TypeID = &rt.ID })

	err = f.svc.PushTracksToLMSForCourseRun(f.ctx, run)
	var statusErr *lms.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Status)
}
