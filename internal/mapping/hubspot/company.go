package hubspot

import (
	"context"
	"fmt"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

type companyProperties struct {
	Name              string `json:"name,omitempty"`
	Industry          string `json:"industry,omitempty"`
	NumberOfEmployees string `json:"numberofemployees,omitempty"`
	Address           string `json:"address,omitempty"`
	Address2          string `json:"address2,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	Zip               string `json:"zip,omitempty"`
	Country           string `json:"country,omitempty"`
	Phone             string `json:"phone,omitempty"`
	OwnerID           string `json:"hubspot_owner_id,omitempty"`
}

// CompanyMapper maps HubSpot companies. Only the first address and phone survive Desunify.
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
		var company object[companyProperties]
		if err := mapping.Decode(r, &company); err != nil {
			return nil, fmt.Errorf("hubspot company %d: %w", i, err)
		}
		p := company.Properties

		u := unified.CRMCompany{
			Base: unified.Base{
				RemoteID:      company.ID,
				FieldMappings: mapping.ExtractCustomFields(properties(r), in.CustomFields),
			},
			Name:              p.Name,
			Industry:          p.Industry,
			NumberOfEmployees: parseInt(p.NumberOfEmployees),
		}
		if p.Address != "" || p.City != "" || p.State != "" || p.Zip != "" || p.Country != "" {
			u.Addresses = []unified.Address{{
				Street1:     p.Address,
				Street2:     p.Address2,
				City:        p.City,
				State:       p.State,
				PostalCode:  p.Zip,
				Country:     p.Country,
				AddressType: "PRIMARY",
			}}
		}
		if p.Phone != "" {
			u.PhoneNumbers = []unified.Phone{{PhoneNumber: p.Phone, PhoneType: "WORK"}}
		}
		if userID, ok := m.refs.InternalID(ctx, unified.CRMUserType, p.OwnerID, Provider, in.LinkedUserID); ok {
			u.UserID = userID
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *CompanyMapper) Desunify(ctx context.Context, company unified.CRMCompany, in mapping.DesunifyInput) (unified.RawRecord, error) {
	p := companyProperties{
		Name:              company.Name,
		Industry:          company.Industry,
		NumberOfEmployees: formatInt(company.NumberOfEmployees),
	}
	if len(company.Addresses) > 0 {
		a := company.Addresses[0]
		p.Address, p.Address2, p.City, p.State, p.Zip, p.Country = a.Street1, a.Street2, a.City, a.State, a.PostalCode, a.Country
	}
	if len(company.PhoneNumbers) > 0 {
		p.Phone = company.PhoneNumbers[0].PhoneNumber
	}
	if company.UserID != "" {
		if ownerID, ok := m.refs.RemoteID(ctx, company.UserID); ok {
			p.OwnerID = ownerID
		}
	}

	props, err := mapping.Encode(p)
	if err != nil {
		return nil, err
	}
	mapping.ApplyCustomFields(props, company.FieldMappings, in.CustomFields)
	return wrap(props), nil
}
