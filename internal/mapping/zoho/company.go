// Package zoho maps Zoho CRM v2 modules.
package zoho

import (
	"context"
	"fmt"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

const Provider = "zoho"

type owner struct {
	ID string `json:"id,omitempty"`
}

type account struct {
	ID              string                 `json:"id,omitempty"`
	AccountName     string                 `json:"Account_Name,omitempty"`
	Industry        string                 `json:"Industry,omitempty"`
	Employees       mapping.FlexibleNumber `json:"Employees"`
	BillingStreet   string                 `json:"Billing_Street,omitempty"`
	BillingCity     string                 `json:"Billing_City,omitempty"`
	BillingState    string                 `json:"Billing_State,omitempty"`
	BillingCode     string                 `json:"Billing_Code,omitempty"`
	BillingCountry  string                 `json:"Billing_Country,omitempty"`
	ShippingStreet  string                 `json:"Shipping_Street,omitempty"`
	ShippingCity    string                 `json:"Shipping_City,omitempty"`
	ShippingState   string                 `json:"Shipping_State,omitempty"`
	ShippingCode    string                 `json:"Shipping_Code,omitempty"`
	ShippingCountry string                 `json:"Shipping_Country,omitempty"`
	Phone           string                 `json:"Phone,omitempty"`
	Owner           *owner                 `json:"Owner,omitempty"`
}

// CompanyMapper maps Zoho Accounts. Billing becomes the first address and shipping the second.
// The record id is read-only.
type CompanyMapper struct {
	refs mapping.References
}

var _ mapping.Mapper[unified.CRMCompany] = (*CompanyMapper)(nil)

func NewCompanyMapper(refs mapping.References) *CompanyMapper {
	return &CompanyMapper{refs: refs}
}

func (m *CompanyMapper) Unify(ctx context.Context, raw []unified.RawRecord, in mapping.UnifyInput) ([]unified.CRMCompany, error) {
	out := make([]unified.CRMCompany, 0, len(raw))
	for i, r := range raw {
		var a account
		if err := mapping.Decode(r, &a); err != nil {
			return nil, fmt.Errorf("zoho account %d: %w", i, err)
		}

		u := unified.CRMCompany{
			Base: unified.Base{
				RemoteID:      a.ID,
				FieldMappings: mapping.ExtractCustomFields(r, in.CustomFields),
			},
			Name:              a.AccountName,
			Industry:          a.Industry,
			NumberOfEmployees: a.Employees.Int(),
		}
		if a.BillingStreet != "" || a.BillingCity != "" || a.BillingCountry != "" {
			u.Addresses = append(u.Addresses, unified.Address{
				Street1:     a.BillingStreet,
				City:        a.BillingCity,
				State:       a.BillingState,
				PostalCode:  a.BillingCode,
				Country:     a.BillingCountry,
				AddressType: "BILLING",
			})
		}
		if a.ShippingStreet != "" || a.ShippingCity != "" || a.ShippingCountry != "" {
			u.Addresses = append(u.Addresses, unified.Address{
				Street1:     a.ShippingStreet,
				City:        a.ShippingCity,
				State:       a.ShippingState,
				PostalCode:  a.ShippingCode,
				Country:     a.ShippingCountry,
				AddressType: "SHIPPING",
			})
		}
		if a.Phone != "" {
			u.PhoneNumbers = []unified.Phone{{PhoneNumber: a.Phone, PhoneType: "WORK"}}
		}
		if a.Owner != nil {
			if userID, ok := m.refs.InternalID(ctx, unified.CRMUserType, a.Owner.ID, Provider, in.LinkedUserID); ok {
				u.UserID = userID
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *CompanyMapper) Desunify(ctx context.Context, company unified.CRMCompany, in mapping.DesunifyInput) (unified.RawRecord, error) {
	a := account{
		AccountName: company.Name,
		Industry:    company.Industry,
	}
	if company.NumberOfEmployees != nil {
		n := float64(*company.NumberOfEmployees)
		a.Employees = mapping.FlexibleNumber{Value: &n}
	}
	for _, addr := range company.Addresses {
		switch addr.AddressType {
		case "SHIPPING":
			a.ShippingStreet, a.ShippingCity, a.ShippingState, a.ShippingCode, a.ShippingCountry = addr.Street1, addr.City, addr.State, addr.PostalCode, addr.Country
		default:
			if a.BillingStreet == "" && a.BillingCity == "" && a.BillingCountry == "" {
				a.BillingStreet, a.BillingCity, a.BillingState, a.BillingCode, a.BillingCountry = addr.Street1, addr.City, addr.State, addr.PostalCode, addr.Country
			}
		}
	}
	if len(company.PhoneNumbers) > 0 {
		a.Phone = company.PhoneNumbers[0].PhoneNumber
	}
	if company.UserID != "" {
		if ownerID, ok := m.refs.RemoteID(ctx, company.UserID); ok {
			a.Owner = &owner{ID: ownerID}
		}
	}

	out, err := mapping.Encode(a)
	if err != nil {
		return nil, err
	}
	if out["Employees"] == nil {
		delete(out, "Employees")
	}
	mapping.ApplyCustomFields(out, company.FieldMappings, in.CustomFields)
	return out, nil
}
