package zendesk

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

var customFields = []unified.CustomFieldMapping{{Slug: "priority", RemoteID: "360001"}}

func TestTicketUnifyMapsStatusPriorityAndCustomFields(t *testing.T) {
	refs := mappingtest.NewReferences().Add(unified.TicketingUserType, "501", "agent-int")
	m := NewTicketMapper(refs)

	got, err := m.Unify(context.Background(), []unified.RawRecord{{
		"id":            float64(35436),
		"subject":       "Printer on fire",
		"description":   "It is on fire",
		"status":        "pending",
		"priority":      "urgent",
		"type":          "incident",
		"tags":          []any{"hardware"},
		"assignee_id":   float64(501),
		"custom_fields": []any{map[string]any{"id": float64(360001), "value": "high"}},
	}}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	require.Len(t, got, 1)

	tk := got[0]
	assert.Equal(t, "35436", tk.RemoteID)
	assert.Equal(t, unified.TicketStatusOpen, tk.Status)
	assert.Equal(t, unified.TicketPriorityHigh, tk.Priority)
	assert.Equal(t, "INCIDENT", tk.Type)
	assert.Equal(t, []string{"agent-int"}, tk.AssignedTo)
	assert.Equal(t, map[string]any{"priority": "high"}, tk.FieldMappings)
}

func TestTicketRoundTrip(t *testing.T) {
	ctx := context.Background()
	refs := mappingtest.NewReferences().
		Add(unified.TicketingUserType, "501", "agent-int").
		Add(unified.TicketingTicketType, "100", "parent-int")
	m := NewTicketMapper(refs)
	due := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	want := unified.Ticket{
		Base:         unified.Base{FieldMappings: map[string]any{"priority": "high"}},
		Name:         "Printer on fire",
		Status:       unified.TicketStatusClosed,
		Description:  "It is on fire",
		DueDate:      &due,
		Type:         "PROBLEM",
		ParentTicket: "parent-int",
		Tags:         []string{"hardware", "urgent"},
		Priority:     unified.TicketPriorityMedium,
		AssignedTo:   []string{"agent-int"},
	}

	raw, err := m.Desunify(ctx, want, mapping.DesunifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	assert.Equal(t, "solved", raw["status"])
	assert.Equal(t, "normal", raw["priority"])
	assert.Equal(t, map[string]any{"body": "It is on fire"}, raw["comment"])
	assert.NotContains(t, raw, "description")
	assert.Equal(t, []any{map[string]any{"id": int64(360001), "value": "high"}}, raw["custom_fields"])

	raw["id"] = 8
	got, err := m.Unify(ctx, []unified.RawRecord{raw}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	require.Len(t, got, 1)
	want.RemoteID = "8"
	assert.Equal(t, want, got[0])
}
