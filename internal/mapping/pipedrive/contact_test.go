package pipedrive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/mapping/mappingtest"
	"github.com/mit-27/panora-sync/internal/unified"
)

func TestContactUnifyReadsOwnerObject(t *testing.T) {
	refs := mappingtest.NewReferences().Add(unified.CRMUserType, "7", "user-int-7")
	m := NewContactMapper(refs)
	customFields := []unified.CustomFieldMapping{{Slug: "priority", RemoteID: "a1b2c3"}}

	got, err := m.Unify(context.Background(), []unified.RawRecord{{
		"id":         float64(12),
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      []any{map[string]any{"value": "grace@example.com", "label": "work", "primary": true}},
		"phone":      []any{map[string]any{"value": "", "label": "home"}},
		"owner_id":   map[string]any{"id": float64(7), "name": "Owner"},
		"a1b2c3":     "high",
	}}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "12", c.RemoteID)
	assert.Equal(t, "user-int-7", c.UserID)
	assert.Equal(t, []unified.Email{{EmailAddress: "grace@example.com", EmailAddressType: "work"}}, c.EmailAddresses)
	assert.Nil(t, c.PhoneNumbers)
	assert.Equal(t, map[string]any{"priority": "high"}, c.FieldMappings)
}

func TestContactRoundTrip(t *testing.T) {
	ctx := context.Background()
	refs := mappingtest.NewReferences().Add(unified.CRMUserType, "7", "user-int-7")
	m := NewContactMapper(refs)

	want := unified.CRMContact{
		FirstName:      "Grace",
		LastName:       "Hopper",
		EmailAddresses: []unified.Email{{EmailAddress: "grace@example.com", EmailAddressType: "work"}},
		PhoneNumbers:   []unified.Phone{{PhoneNumber: "+1555", PhoneType: "mobile"}},
		UserID:         "user-int-7",
	}

	raw, err := m.Desunify(ctx, want, mapping.DesunifyInput{Provider: Provider})
	require.NoError(t, err)
	assert.Equal(t, int64(7), raw["owner_id"])
	assert.Equal(t, "Grace Hopper", raw["name"])

	raw["id"] = 99
	got, err := m.Unify(ctx, []unified.RawRecord{raw}, mapping.UnifyInput{Provider: Provider})
	require.NoError(t, err)
	want.RemoteID = "99"
	assert.Equal(t, []unified.CRMContact{want}, got)
}
