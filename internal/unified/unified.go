// Package unified holds the provider-agnostic shape of every synced object.
package unified

import "time"

// Object types, named <vertical>.<object>
const (
	CRMCompanyType      = "crm.company"
	CRMContactType      = "crm.contact"
	CRMDealType         = "crm.deal"
	CRMUserType         = "crm.user"
	TicketingTicketType = "ticketing.ticket"
	TicketingUserType   = "ticketing.user"
	ATSJobType          = "ats.job"
)

// RawRecord is one provider payload exactly as the vendor returned it
type RawRecord = map[string]any

// CustomFieldMapping pairs a tenant-facing slug with a provider field key
type CustomFieldMapping struct {
	Slug     string `json:"slug"`
	RemoteID string `json:"remote_id"`
	DataType string `json:"data_type"`
}

// Object is implemented by every unified record type
type Object interface {
	GetRemoteID() string
	GetFieldMappings() map[string]any
}

// Base carries the fields every unified record shares
type Base struct {
	RemoteID      string         `json:"remote_id,omitempty"`
	FieldMappings map[string]any `json:"field_mappings,omitempty"`
}

func (b Base) GetRemoteID() string {
	return b.RemoteID
}

func (b Base) GetFieldMappings() map[string]any {
	return b.FieldMappings
}

type Address struct {
	Street1     string `json:"street_1,omitempty"`
	Street2     string `json:"street_2,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
	AddressType string `json:"address_type,omitempty"`
}

type Email struct {
	EmailAddress     string `json:"email_address,omitempty"`
	EmailAddressType string `json:"email_address_type,omitempty"`
}

type Phone struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	PhoneType   string `json:"phone_type,omitempty"`
}

type CRMCompany struct {
	Base
	Name              string    `json:"name,omitempty"`
	Industry          string    `json:"industry,omitempty"`
	NumberOfEmployees *int      `json:"number_of_employees,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
	Addresses         []Address `json:"addresses,omitempty"`
	PhoneNumbers      []Phone   `json:"phone_numbers,omitempty"`
}

type CRMContact struct {
	Base
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	EmailAddresses []Email   `json:"email_addresses,omitempty"`
	PhoneNumbers   []Phone   `json:"phone_numbers,omitempty"`
	Addresses      []Address `json:"addresses,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
}

type CRMDeal struct {
	Base
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	StageID     string   `json:"stage_id,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	CompanyID   string   `json:"company_id,omitempty"`
}

// Ticket statuses and priorities
const (
	TicketStatusOpen   = "OPEN"
	TicketStatusClosed = "CLOSED"

	TicketPriorityHigh   = "HIGH"
	TicketPriorityMedium = "MEDIUM"
	TicketPriorityLow    = "LOW"
)

type Ticket struct {
	Base
	Name         string     `json:"name,omitempty"`
	Status       string     `json:"status,omitempty"`
	Description  string     `json:"description,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Type         string     `json:"type,omitempty"`
	ParentTicket string     `json:"parent_ticket,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	AssignedTo   []string   `json:"assigned_to,omitempty"`
}

// Job statuses
const (
	JobStatusOpen     = "OPEN"
	JobStatusClosed   = "CLOSED"
	JobStatusDraft    = "DRAFT"
	JobStatusArchived = "ARCHIVED"
)

type ATSJob struct {
	Base
	Name            string     `json:"name,omitempty"`
	Description     string     `json:"description,omitempty"`
	Code            string     `json:"code,omitempty"`
	Status          string     `json:"status,omitempty"`
	Type            string     `json:"type,omitempty"`
	Confidential    *bool      `json:"confidential,omitempty"`
	Departments     []string   `json:"departments,omitempty"`
	Offices         []string   `json:"offices,omitempty"`
	RemoteCreatedAt *time.Time `json:"remote_created_at,omitempty"`
}
