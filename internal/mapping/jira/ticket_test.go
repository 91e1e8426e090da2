package jira

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/mapping/mappingtest"
	"github.com/mit-27/panora-sync/internal/unified"
)

var customFields = []unified.CustomFieldMapping{{Slug: "team", RemoteID: "customfield_10010"}}

func TestTicketUnify(t *testing.T) {
	refs := mappingtest.NewReferences().Add(unified.TicketingUserType, "acc-1", "user-int")
	m := NewTicketMapper(refs)

	got, err := m.Unify(context.Background(), []unified.RawRecord{{
		"id":  "10002",
		"key": "OPS-2",
		"fields": map[string]any{
			"summary":           "Rotate keys",
			"status":            map[string]any{"name": "Done"},
			"priority":          map[string]any{"name": "Highest"},
			"issuetype":         map[string]any{"name": "Task"},
			"duedate":           "2024-03-01",
			"labels":            []any{"security"},
			"assignee":          map[string]any{"accountId": "acc-1"},
			"customfield_10010": "platform",
		},
	}}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	require.Len(t, got, 1)

	tk := got[0]
	assert.Equal(t, "10002", tk.RemoteID)
	assert.Equal(t, unified.TicketStatusClosed, tk.Status)
	assert.Equal(t, unified.TicketPriorityHigh, tk.Priority)
	assert.Equal(t, "TASK", tk.Type)
	require.NotNil(t, tk.DueDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *tk.DueDate)
	assert.Equal(t, []string{"user-int"}, tk.AssignedTo)
	assert.Equal(t, map[string]any{"team": "platform"}, tk.FieldMappings)
}

func TestTicketRoundTripWithoutReadOnlyStatus(t *testing.T) {
	ctx := context.Background()
	refs := mappingtest.NewReferences().
		Add(unified.TicketingUserType, "acc-1", "user-int").
		Add(unified.TicketingTicketType, "10001", "parent-int")
	m := NewTicketMapper(refs)
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	want := unified.Ticket{
		Base:         unified.Base{FieldMappings: map[string]any{"team": "platform"}},
		Name:         "Rotate keys",
		Description:  "Quarterly rotation",
		DueDate:      &due,
		Type:         "TASK",
		ParentTicket: "parent-int",
		Tags:         []string{"security"},
		Priority:     unified.TicketPriorityLow,
		AssignedTo:   []string{"user-int"},
	}

	raw, err := m.Desunify(ctx, want, mapping.DesunifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	fields := raw["fields"].(map[string]any)
	assert.NotContains(t, fields, "status")
	assert.Equal(t, "platform", fields["customfield_10010"])

	raw["id"] = "10003"
	got, err := m.Unify(ctx, []unified.RawRecord{raw}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	want.RemoteID = "10003"
	assert.Equal(t, []unified.Ticket{want}, got)
}
