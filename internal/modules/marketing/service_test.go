package marketing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mx-space/catalog/internal/database/dbtest"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/modules/catalog"
	"github.com/mx-space/catalog/internal/modules/partner"
	redisc "github.com/mx-space/catalog/internal/pkg/redis"
	"github.com/mx-space/catalog/internal/pkg/taskqueue"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type site struct {
	mu    sync.Mutex
	nodes []map[string]interface{}
}

func (s *site) written() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.nodes...)
}

func serveSite(t *testing.T) (*httptest.Server, *site) {
	t.Helper()
	st := &site{}
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin", http.StatusFound)
	})
	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/restws/session/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("csrf"))
	})
	mux.HandleFunc("/user.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"list":[{"uid":7}]}`))
	})
	mux.HandleFunc("/node.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"list":[]}`))
			return
		}
		var node map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&node))
		st.mu.Lock()
		st.nodes = append(st.nodes, node)
		st.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"501"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

type env struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	queue *taskqueue.Queue
	svc   *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redisc.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	db := dbtest.Open(t)
	queue := taskqueue.New(rc)
	return &env{
		t:     t,
		ctx:   context.Background(),
		db:    db,
		queue: queue,
		svc:   NewService(db, queue, partner.NewService(db)),
	}
}

func (e *env) officialRun(p *models.Partner, key string) *models.CourseRun {
	e.t.Helper()
	course := &models.Course{UUID: uuid.NewString(), PartnerID: p.ID, Key: "edX+Mkt", Title: "Marketing 101"}
	require.NoError(e.t, e.db.Create(course).Error)
	start := time.Date(2030, 4, 1, 0, 0, 0, 0, time.UTC)
	run := &models.CourseRun{UUID: uuid.NewString(), CourseID: course.ID, Key: key, Start: &start}
	require.NoError(e.t, e.db.Omit("Course").Create(run).Error)
	return run
}

func (e *env) partner(siteURL string) *models.Partner {
	e.t.Helper()
	p := &models.Partner{
		Name:                     "edX",
		ShortCode:                "edx",
		MarketingSiteURLRoot:     siteURL,
		MarketingSiteAPIUsername: "api",
		MarketingSiteAPIPassword: "secret",
	}
	require.NoError(e.t, e.db.Create(p).Error)
	return p
}

func TestCourseRunPublishedQueuesOncePerRun(t *testing.T) {
	e := newEnv(t)
	run := e.officialRun(e.partner("https://www.example.com"), "course-v1:edX+Mkt+1T2030")

	require.NoError(t, e.svc.CourseRunPublished(e.ctx, run))
	require.NoError(t, e.svc.CourseRunPublished(e.ctx, run))

	tasks, total, err := e.svc.Tasks(e.ctx, taskqueue.StatusPending, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, tasks, 1)
	assert.Equal(t, run.ID, tasks[0].DedupKey)

	assert.Error(t, e.svc.CourseRunPublished(e.ctx, &models.CourseRun{}))
}

func TestDrainPublishesNode(t *testing.T) {
	e := newEnv(t)
	srv, st := serveSite(t)
	run := e.officialRun(e.partner(srv.URL), "course-v1:edX+Mkt+1T2030")
	require.NoError(t, e.svc.CourseRunPublished(e.ctx, run))

	n, err := e.svc.Drain(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	nodes := st.written()
	require.Len(t, nodes, 1)
	assert.Equal(t, "course-v1:edX+Mkt+1T2030", nodes[0]["field_course_id"])
	assert.Equal(t, run.UUID, nodes[0]["field_course_uuid"])
	assert.Equal(t, "Marketing 101", nodes[0]["title"])
	assert.Equal(t, map[string]interface{}{"id": "7"}, nodes[0]["author"])
	assert.EqualValues(t, run.Start.Unix(), nodes[0]["field_course_start_date"])

	done, _, err := e.svc.Tasks(e.ctx, taskqueue.StatusCompleted, 1, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.JSONEq(t, `{"node_id":"501"}`, string(done[0].Result))

	n, err = e.svc.Drain(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainMarksFailures(t *testing.T) {
	e := newEnv(t)
	p := e.partner("")
	run := e.officialRun(p, "course-v1:edX+Mkt+2T2030")
	require.NoError(t, e.svc.CourseRunPublished(e.ctx, run))
	_, err := e.queue.Enqueue(e.ctx, TaskPublishCourseRun, publishPayload{CourseRunID: "gone"}, "gone")
	require.NoError(t, err)

	n, err := e.svc.Drain(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	failed, total, err := e.svc.Tasks(e.ctx, taskqueue.StatusFailed, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	messages := []string{failed[0].Error, failed[1].Error}
	assert.Contains(t, messages, "official course run gone not found")
	assert.Contains(t, messages, "marketing site: marketing site username, password and url root are required")
}

func TestOfficialSavesQueuePublication(t *testing.T) {
	e := newEnv(t)
	run := e.officialRun(e.partner("https://www.example.com"), "course-v1:edX+Mkt+3T2030")
	cat := catalog.NewService(e.db, catalog.WithNotifier(e.svc))

	run.TitleOverride = "Renamed"
	require.NoError(t, cat.SaveCourseRun(e.ctx, run, catalog.Update, false))
	require.NoError(t, cat.SaveCourseRun(e.ctx, run, catalog.Update, true))

	_, total, err := e.svc.Tasks(e.ctx, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
