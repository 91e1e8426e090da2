package hubspot

import (
	"context"
	"fmt"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

type dealProperties struct {
	DealName    string `json:"dealname,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount,omitempty"`
	DealStage   string `json:"dealstage,omitempty"`
	OwnerID     string `json:"hubspot_owner_id,omitempty"`
}

// DealMapper maps HubSpot deals.
// company_id is read-only: it comes from the companies association, which HubSpot sets through a separate call.
type DealMapper struct {
	refs mapping.References
}

var _ mapping.Mapper[unified.CRMDeal] = (*DealMapper)(nil)

func NewDealMapper(refs mapping.References) *DealMapper {
	return &DealMapper{refs: refs}
}

func (m *DealMapper) Unify(ctx context.Context, raw []unified.RawRecord, in mapping.UnifyInput) ([]unified.CRMDeal, error) {
	out := make([]unified.CRMDeal, 0, len(raw))
	for i, r := range raw {
		var deal object[dealProperties]
		if err := mapping.Decode(r, &deal); err != nil {
			return nil, fmt.Errorf("hubspot deal %d: %w", i, err)
		}
		p := deal.Properties

		u := unified.CRMDeal{
			Base: unified.Base{
				RemoteID:      deal.ID,
				FieldMappings: mapping.ExtractCustomFields(properties(r), in.CustomFields),
			},
			Name:        p.DealName,
			Description: p.Description,
			Amount:      parseFloat(p.Amount),
			StageID:     p.DealStage,
		}
		if userID, ok := m.refs.InternalID(ctx, unified.CRMUserType, p.OwnerID, Provider, in.LinkedUserID); ok {
			u.UserID = userID
		}
		if companyID, ok := m.refs.InternalID(ctx, unified.CRMCompanyType, deal.Associations.Companies.first(), Provider, in.LinkedUserID); ok {
			u.CompanyID = companyID
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *DealMapper) Desunify(ctx context.Context, deal unified.CRMDeal, in mapping.DesunifyInput) (unified.RawRecord, error) {
	p := dealProperties{
		DealName:    deal.Name,
		Description: deal.Description,
		Amount:      formatFloat(deal.Amount),
		DealStage:   deal.StageID,
	}
	if deal.UserID != "" {
		if ownerID, ok := m.refs.RemoteID(ctx, deal.UserID); ok {
			p.OwnerID = ownerID
		}
	}

	props, err := mapping.Encode(p)
	if err != nil {
		return nil, err
	}
	mapping.ApplyCustomFields(props, deal.FieldMappings, in.CustomFields)
	return wrap(props), nil
}
