package ashby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

var customFields = []unified.CustomFieldMapping{{Slug: "level", RemoteID: "cf-level"}}

func TestJobUnify(t *testing.T) {
	m := NewJobMapper()

	got, err := m.Unify(context.Background(), []unified.RawRecord{{
		"id":             "job-1",
		"title":          "Backend Engineer",
		"status":         "Open",
		"employmentType": "FullTime",
		"confidential":   false,
		"departmentId":   "dep-1",
		"locationIds":    []any{"loc-1", "loc-2"},
		"createdAt":      "2024-01-02T03:04:05Z",
		"customFields":   []any{map[string]any{"id": "cf-level", "title": "Level", "value": "L4"}},
	}}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	require.Len(t, got, 1)

	j := got[0]
	assert.Equal(t, "job-1", j.RemoteID)
	assert.Equal(t, unified.JobStatusOpen, j.Status)
	assert.Equal(t, "FULL_TIME", j.Type)
	require.NotNil(t, j.Confidential)
	assert.False(t, *j.Confidential)
	assert.Equal(t, []string{"dep-1"}, j.Departments)
	assert.Equal(t, []string{"loc-1", "loc-2"}, j.Offices)
	require.NotNil(t, j.RemoteCreatedAt)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), j.RemoteCreatedAt.UTC())
	assert.Equal(t, map[string]any{"level": "L4"}, j.FieldMappings)
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewJobMapper()
	confidential := true

	want := unified.ATSJob{
		Base:         unified.Base{FieldMappings: map[string]any{"level": "L5"}},
		Name:         "Staff Engineer",
		Code:         "REQ-9",
		Status:       unified.JobStatusDraft,
		Type:         "CONTRACT",
		Confidential: &confidential,
		Departments:  []string{"dep-2"},
		Offices:      []string{"loc-3"},
	}

	raw, err := m.Desunify(ctx, want, mapping.DesunifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	assert.Equal(t, "Draft", raw["status"])
	assert.Equal(t, "Contract", raw["employmentType"])

	raw["id"] = "job-2"
	got, err := m.Unify(ctx, []unified.RawRecord{raw}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	want.RemoteID = "job-2"
	assert.Equal(t, []unified.ATSJob{want}, got)
}
