package catalog

import (
	"testing"

	"github.com/mx-space/catalog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCourseRunNotifiesOnlyForOfficialRuns(t *testing.T) {
	f := newFixture(t)
	official := f.run(f.course("edX+Save"), "course-v1:edX+Save+1T2030")
	draft := f.run(f.course("edX+Save", func(c *models.Course) { c.Draft = true }), "course-v1:edX+Save+1T2030")

	official.TitleOverride = "Changed"
	require.NoError(t, f.svc.SaveCourseRun(f.ctx, official, Update, false))
	require.NoError(t, f.svc.SaveCourseRun(f.ctx, official, Update, true))
	require.NoError(t, f.svc.SaveCourseRun(f.ctx, draft, Update, false))

	assert.Equal(t, []string{"course-v1:edX+Save+1T2030"}, f.notes.keys)
	assert.Equal(t, "Changed", f.reloadRun(official.ID).TitleOverride)
}

func TestPersistRejectsUnknownIntent(t *testing.T) {
	f := newFixture(t)
	run := f.run(f.course("edX+Intent"), "course-v1:edX+Intent+1T2030")
	assert.Error(t, Persist(f.db, run, Intent(99)))
}
