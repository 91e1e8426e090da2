// Package pipedrive maps Pipedrive v1 entities.
package pipedrive

import (
	"context"
	"fmt"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

const Provider = "pipedrive"

type labeledValue struct {
	Value   string `json:"value"`
	Label   string `json:"label,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

type person struct {
	ID        mapping.FlexibleID `json:"id,omitempty"`
	FirstName string             `json:"first_name,omitempty"`
	LastName  string             `json:"last_name,omitempty"`
	Email     []labeledValue     `json:"email,omitempty"`
	Phone     []labeledValue     `json:"phone,omitempty"`
	OwnerID   mapping.FlexibleID `json:"owner_id,omitempty"`
}

// ContactMapper maps Pipedrive persons.
// Reads return owner_id as an object, writes send the bare id. Persons carry no address.
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
		var p person
		if err := mapping.Decode(r, &p); err != nil {
			return nil, fmt.Errorf("pipedrive person %d: %w", i, err)
		}

		u := unified.CRMContact{
			Base: unified.Base{
				RemoteID:      p.ID.String(),
				FieldMappings: mapping.ExtractCustomFields(r, in.CustomFields),
			},
			FirstName: p.FirstName,
			LastName:  p.LastName,
		}
		for _, e := range p.Email {
			if e.Value == "" {
				continue
			}
			u.EmailAddresses = append(u.EmailAddresses, unified.Email{EmailAddress: e.Value, EmailAddressType: e.Label})
		}
		for _, ph := range p.Phone {
			if ph.Value == "" {
				continue
			}
			u.PhoneNumbers = append(u.PhoneNumbers, unified.Phone{PhoneNumber: ph.Value, PhoneType: ph.Label})
		}
		if userID, ok := m.refs.InternalID(ctx, unified.CRMUserType, p.OwnerID.String(), Provider, in.LinkedUserID); ok {
			u.UserID = userID
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *ContactMapper) Desunify(ctx context.Context, contact unified.CRMContact, in mapping.DesunifyInput) (unified.RawRecord, error) {
	out := unified.RawRecord{}
	if contact.FirstName != "" {
		out["first_name"] = contact.FirstName
	}
	if contact.LastName != "" {
		out["last_name"] = contact.LastName
	}
	if contact.FirstName != "" || contact.LastName != "" {
		out["name"] = joinName(contact.FirstName, contact.LastName)
	}
	if len(contact.EmailAddresses) > 0 {
		emails := make([]any, 0, len(contact.EmailAddresses))
		for i, e := range contact.EmailAddresses {
			emails = append(emails, map[string]any{"value": e.EmailAddress, "label": e.EmailAddressType, "primary": i == 0})
		}
		out["email"] = emails
	}
	if len(contact.PhoneNumbers) > 0 {
		phones := make([]any, 0, len(contact.PhoneNumbers))
		for i, ph := range contact.PhoneNumbers {
			phones = append(phones, map[string]any{"value": ph.PhoneNumber, "label": ph.PhoneType, "primary": i == 0})
		}
		out["phone"] = phones
	}
	if contact.UserID != "" {
		if ownerID, ok := m.refs.RemoteID(ctx, contact.UserID); ok {
			if n, isInt := mapping.FlexibleID(ownerID).Int64(); isInt {
				out["owner_id"] = n
			} else {
				out["owner_id"] = ownerID
			}
		}
	}
	mapping.ApplyCustomFields(out, contact.FieldMappings, in.CustomFields)
	return out, nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
