package zoho

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/mapping/mappingtest"
	"github.com/mit-27/panora-sync/internal/unified"
)

func TestCompanyRoundTrip(t *testing.T) {
	ctx := context.Background()
	refs := mappingtest.NewReferences().Add(unified.CRMUserType, "z-owner", "user-int-2")
	m := NewCompanyMapper(refs)
	customFields := []unified.CustomFieldMapping{{Slug: "tier", RemoteID: "Tier__c"}}
	employees := 120

	want := unified.CRMCompany{
		Base:              unified.Base{FieldMappings: map[string]any{"tier": "gold"}},
		Name:              "Initech",
		Industry:          "Software",
		NumberOfEmployees: &employees,
		UserID:            "user-int-2",
		Addresses: []unified.Address{
			{Street1: "1 Billing Rd", City: "Austin", State: "TX", PostalCode: "73301", Country: "US", AddressType: "BILLING"},
			{Street1: "9 Dock St", City: "Houston", State: "TX", PostalCode: "77001", Country: "US", AddressType: "SHIPPING"},
		},
		PhoneNumbers: []unified.Phone{{PhoneNumber: "555-0100", PhoneType: "WORK"}},
	}

	raw, err := m.Desunify(ctx, want, mapping.DesunifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	assert.Equal(t, "gold", raw["Tier__c"])
	assert.Equal(t, map[string]any{"id": "z-owner"}, raw["Owner"])

	raw["id"] = "3477061000000419001"
	got, err := m.Unify(ctx, []unified.RawRecord{raw}, mapping.UnifyInput{Provider: Provider, CustomFields: customFields})
	require.NoError(t, err)
	want.RemoteID = "3477061000000419001"
	assert.Equal(t, []unified.CRMCompany{want}, got)
}

func TestCompanyEmployeesAsString(t *testing.T) {
	m := NewCompanyMapper(mappingtest.NewReferences())

	got, err := m.Unify(context.Background(), []unified.RawRecord{{"id": "1", "Account_Name": "Hooli", "Employees": "40"}}, mapping.UnifyInput{Provider: Provider})
	require.NoError(t, err)
	require.NotNil(t, got[0].NumberOfEmployees)
	assert.Equal(t, 40, *got[0].NumberOfEmployees)
}
