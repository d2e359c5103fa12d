package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mx-space/catalog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// draftOnlyIDs hands out sequential CRM ids to draft rows, leaving official rows unassigned.
func draftOnlyIDs(calls *int) ExternalIDFunc {
	return func(obj models.ExternallyIdentified) (string, error) {
		if p, ok := obj.(models.Publishable); ok && !p.IsDraft() {
			return "", nil
		}
		*calls++
		return fmt.Sprintf("sf-%d", *calls), nil
	}
}

func TestDraftStateMirrorsAssignedExternalID(t *testing.T) {
	var calls int
	f := newFixture(t, WithExternalIDs(draftOnlyIDs(&calls)))
	official := f.course("edX+CRM")
	run := f.run(official, "course-v1:edX+CRM+1T2030")
	require.Nil(t, f.reloadCourse(official.ID).SalesforceID)

	draft, err := f.svc.EnsureDraftCourse(f.ctx, official)
	require.NoError(t, err)
	require.Len(t, draft.CourseRuns, 1)
	assert.Equal(t, 2, calls)

	require.NotNil(t, draft.SalesforceID)
	courseID := *draft.SalesforceID
	assert.Equal(t, &courseID, f.reloadCourse(official.ID).SalesforceID)

	require.NotNil(t, draft.CourseRuns[0].SalesforceID)
	runID := *draft.CourseRuns[0].SalesforceID
	assert.NotEqual(t, courseID, runID)
	assert.Equal(t, &runID, f.reloadRun(run.ID).SalesforceID)
}

func TestDraftStateKeepsExistingExternalID(t *testing.T) {
	var calls int
	f := newFixture(t, WithExternalIDs(draftOnlyIDs(&calls)))
	official := f.course("edX+Known", func(c *models.Course) { c.SalesforceID = ptr("crm-7") })

	draft, _, err := setDraftState(f.db, f.reloadCourse(official.ID), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, calls)
	require.NotNil(t, draft.SalesforceID)
	assert.Equal(t, "crm-7", *draft.SalesforceID)
	assert.Equal(t, "crm-7", *f.reloadCourse(official.ID).SalesforceID)
}

func TestExternalIDFailureAbortsInsert(t *testing.T) {
	f := newFixture(t, WithExternalIDs(func(models.ExternallyIdentified) (string, error) {
		return "", errors.New("crm unavailable")
	}))

	err := Persist(f.db, &models.Course{PartnerID: f.partner.ID, Key: "edX+Down", Title: "Down", Draft: true}, Insert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm unavailable")
}

