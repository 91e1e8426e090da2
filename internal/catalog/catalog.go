// Package catalog holds the static tables wiring verticals, providers,
// adapters, mappers and sync periods together.
package catalog

import (
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/adapter"
	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/mapping/ashby"
	"github.com/mit-27/panora-sync/internal/mapping/hubspot"
	"github.com/mit-27/panora-sync/internal/mapping/jira"
	"github.com/mit-27/panora-sync/internal/mapping/pipedrive"
	"github.com/mit-27/panora-sync/internal/mapping/zendesk"
	"github.com/mit-27/panora-sync/internal/mapping/zoho"
	"github.com/mit-27/panora-sync/internal/pipeline"
	"github.com/mit-27/panora-sync/internal/unified"
)

const (
	VerticalCRM       = "crm"
	VerticalTicketing = "ticketing"
	VerticalATS       = "ats"
)

// Providers synced per vertical, in sync order
var verticalProviders = map[string][]string{
	VerticalCRM:       {hubspot.Provider, zoho.Provider, pipedrive.Provider},
	VerticalTicketing: {zendesk.Provider, jira.Provider},
	VerticalATS:       {ashby.Provider},
}

func Verticals() []string {
	return []string{VerticalCRM, VerticalTicketing, VerticalATS}
}

// Providers returns a copy of the vertical's provider list, or nil if unknown
func Providers(vertical string) []string {
	return slices.Clone(verticalProviders[vertical])
}

var adapterConfigs = map[adapter.Key]adapter.HTTPConfig{
	{Vertical: VerticalCRM, Object: "company", Provider: hubspot.Provider}: {
		ListPath:    "/crm/v3/objects/companies",
		ItemsKey:    "results",
		FieldsParam: "properties",
		BaseFields:  []string{"name", "industry", "numberofemployees", "address", "address2", "city", "state", "zip", "country", "phone", "hubspot_owner_id"},
		CursorKey:   "paging.next.after",
		CursorParam: "after",
		CreatePath:  "/crm/v3/objects/companies",
	},
	{Vertical: VerticalCRM, Object: "contact", Provider: hubspot.Provider}: {
		ListPath:    "/crm/v3/objects/contacts",
		ItemsKey:    "results",
		FieldsParam: "properties",
		BaseFields:  []string{"firstname", "lastname", "email", "phone", "address", "city", "state", "zip", "country", "hubspot_owner_id"},
		CursorKey:   "paging.next.after",
		CursorParam: "after",
		CreatePath:  "/crm/v3/objects/contacts",
	},
	{Vertical: VerticalCRM, Object: "deal", Provider: hubspot.Provider}: {
		ListPath:    "/crm/v3/objects/deals",
		Query:       map[string]string{"associations": "companies"},
		ItemsKey:    "results",
		FieldsParam: "properties",
		BaseFields:  []string{"dealname", "description", "amount", "dealstage", "hubspot_owner_id"},
		CursorKey:   "paging.next.after",
		CursorParam: "after",
		CreatePath:  "/crm/v3/objects/deals",
	},
	{Vertical: VerticalCRM, Object: "company", Provider: zoho.Provider}: {
		ListPath:    "/crm/v5/Accounts",
		ItemsKey:    "data",
		FieldsParam: "fields",
		BaseFields:  []string{"Account_Name", "Industry", "Employees", "Billing_Street", "Billing_City", "Billing_State", "Billing_Code", "Billing_Country", "Shipping_Street", "Shipping_City", "Shipping_State", "Shipping_Code", "Shipping_Country", "Phone", "Owner"},
		CursorKey:   "info.next_page_token",
		CursorParam: "page_token",
	},
	{Vertical: VerticalCRM, Object: "contact", Provider: pipedrive.Provider}: {
		ListPath:    "/v1/persons",
		Query:       map[string]string{"limit": "500"},
		ItemsKey:    "data",
		CursorKey:   "additional_data.pagination.next_start",
		CursorParam: "start",
	},
	{Vertical: VerticalTicketing, Object: "ticket", Provider: zendesk.Provider}: {
		ListPath:      "/api/v2/tickets.json",
		Query:         map[string]string{"page[size]": "100"},
		ItemsKey:      "tickets",
		CursorKey:     "meta.after_cursor",
		CursorParam:   "page[after]",
		CreatePath:    "/api/v2/tickets.json",
		CreateWrapKey: "ticket",
	},
	{Vertical: VerticalTicketing, Object: "ticket", Provider: jira.Provider}: {
		ListPath:    "/rest/api/3/search",
		ItemsKey:    "issues",
		FieldsParam: "fields",
		BaseFields:  []string{"summary", "description", "status", "issuetype", "priority", "duedate", "labels", "parent", "assignee"},
		CursorKey:   "nextPageToken",
		CursorParam: "nextPageToken",
		CreatePath:  "/rest/api/3/issue",
	},
	{Vertical: VerticalATS, Object: "job", Provider: ashby.Provider}: {
		ListPath:    "/job.list",
		ItemsKey:    "results",
		CursorKey:   "nextCursor",
		CursorParam: "cursor",
	},
}

// NewAdapterRegistry builds one HTTP adapter per catalog entry
func NewAdapterRegistry(client *http.Client, logger *zap.Logger) *adapter.Registry {
	registry := adapter.NewRegistry()
	for key, cfg := range adapterConfigs {
		registry.Register(key, adapter.NewHTTPAdapter(cfg, client, logger.With(zap.String("provider", key.Provider))))
	}
	return registry
}

// Mappers holds one registry per unified object
type Mappers struct {
	Companies *mapping.Registry[unified.CRMCompany]
	Contacts  *mapping.Registry[unified.CRMContact]
	Deals     *mapping.Registry[unified.CRMDeal]
	Tickets   *mapping.Registry[unified.Ticket]
	Jobs      *mapping.Registry[unified.ATSJob]
}

func NewMappers(refs mapping.References) Mappers {
	m := Mappers{
		Companies: mapping.NewRegistry[unified.CRMCompany](VerticalCRM, "company"),
		Contacts:  mapping.NewRegistry[unified.CRMContact](VerticalCRM, "contact"),
		Deals:     mapping.NewRegistry[unified.CRMDeal](VerticalCRM, "deal"),
		Tickets:   mapping.NewRegistry[unified.Ticket](VerticalTicketing, "ticket"),
		Jobs:      mapping.NewRegistry[unified.ATSJob](VerticalATS, "job"),
	}

	m.Companies.Register(hubspot.Provider, hubspot.NewCompanyMapper(refs))
	m.Companies.Register(zoho.Provider, zoho.NewCompanyMapper(refs))

	m.Contacts.Register(hubspot.Provider, hubspot.NewContactMapper(refs))
	m.Contacts.Register(pipedrive.Provider, pipedrive.NewContactMapper(refs))

	m.Deals.Register(hubspot.Provider, hubspot.NewDealMapper(refs))

	m.Tickets.Register(zendesk.Provider, zendesk.NewTicketMapper(refs))
	m.Tickets.Register(jira.Provider, jira.NewTicketMapper(refs))

	m.Jobs.Register(ashby.Provider, ashby.NewJobMapper())
	return m
}

// Entry is one scheduled job
type Entry struct {
	Job    pipeline.Job
	Period time.Duration
}

// Jobs lists every sync job with its period
func Jobs(m Mappers, deps pipeline.Deps) []Entry {
	return []Entry{
		{Job: pipeline.NewObjectSync(m.Companies, deps), Period: 8 * time.Hour},
		{Job: pipeline.NewObjectSync(m.Contacts, deps), Period: 8 * time.Hour},
		{Job: pipeline.NewObjectSync(m.Deals, deps), Period: 12 * time.Hour},
		{Job: pipeline.NewObjectSync(m.Tickets, deps), Period: 10 * time.Hour},
		{Job: pipeline.NewObjectSync(m.Jobs, deps), Period: 20 * time.Hour},
	}
}
