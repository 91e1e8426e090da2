package hubspot

import (
	"context"
	"fmt"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

type contactProperties struct {
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
	OwnerID   string `json:"hubspot_owner_id,omitempty"`
}

// ContactMapper maps HubSpot contacts. HubSpot holds a single primary email, phone and address.
type ContactMapper struct {
	refs mapping.References
}

var _ mapping.Mapper[unified.CRMContact] = (*ContactMapper)(nil)

func NewContactMapper(refs mapping.References) *ContactMapper {
	return &ContactMapper{refs: refs}
}

func (m *ContactMapper) Unify(ctx context.Context, raw []unified.RawRecord, in mapping.UnifyInput) ([]unified.CRMContact, error) {
	out := make([]unified.CRMContact, 0, len(raw))
	for i, r := range raw {
		var contact object[contactProperties]
		if err := mapping.Decode(r, &contact); err != nil {
			return nil, fmt.Errorf("hubspot contact %d: %w", i, err)
		}
		p := contact.Properties

		u := unified.CRMContact{
			Base: unified.Base{
				RemoteID:      contact.ID,
				FieldMappings: mapping.ExtractCustomFields(properties(r), in.CustomFields),
			},
			FirstName: p.FirstName,
			LastName:  p.LastName,
		}
		if p.Email != "" {
			u.EmailAddresses = []unified.Email{{EmailAddress: p.Email, EmailAddressType: "PRIMARY"}}
		}
		if p.Phone != "" {
			u.PhoneNumbers = []unified.Phone{{PhoneNumber: p.Phone, PhoneType: "PRIMARY"}}
		}
		if p.Address != "" || p.City != "" || p.State != "" || p.Zip != "" || p.Country != "" {
			u.Addresses = []unified.Address{{
				Street1:     p.Address,
				City:        p.City,
				State:       p.State,
				PostalCode:  p.Zip,
				Country:     p.Country,
				AddressType: "PRIMARY",
			}}
		}
		if userID, ok := m.refs.InternalID(ctx, unified.CRMUserType, p.OwnerID, Provider, in.LinkedUserID); ok {
			u.UserID = userID
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *ContactMapper) Desunify(ctx context.Context, contact unified.CRMContact, in mapping.DesunifyInput) (unified.RawRecord, error) {
	p := contactProperties{
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
	}
	if len(contact.EmailAddresses) > 0 {
		p.Email = contact.EmailAddresses[0].EmailAddress
	}
	if len(contact.PhoneNumbers) > 0 {
		p.Phone = contact.PhoneNumbers[0].PhoneNumber
	}
	if len(contact.Addresses) > 0 {
		a := contact.Addresses[0]
		p.Address, p.City, p.State, p.Zip, p.Country = a.Street1, a.City, a.State, a.PostalCode, a.Country
	}
	if contact.UserID != "" {
		if ownerID, ok := m.refs.RemoteID(ctx, contact.UserID); ok {
			p.OwnerID = ownerID
		}
	}

	props, err := mapping.Encode(p)
	if err != nil {
		return nil, err
	}
	mapping.ApplyCustomFields(props, contact.FieldMappings, in.CustomFields)
	return wrap(props), nil
}
