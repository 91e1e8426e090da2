// Package ashby maps Ashby ATS jobs.
package ashby

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

const Provider = "ashby"

type customField struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Value any    `json:"value"`
}

type job struct {
	ID             string        `json:"id,omitempty"`
	Title          string        `json:"title,omitempty"`
	Status         string        `json:"status,omitempty"`
	EmploymentType string        `json:"employmentType,omitempty"`
	RequisitionID  string        `json:"requisitionId,omitempty"`
	Confidential   *bool         `json:"confidential,omitempty"`
	DepartmentID   string        `json:"departmentId,omitempty"`
	LocationIDs    []string      `json:"locationIds,omitempty"`
	CreatedAt      *time.Time    `json:"createdAt,omitempty"`
	CustomFields   []customField `json:"customFields,omitempty"`
}

// JobMapper maps Ashby jobs.
// createdAt is read-only. Ashby has no job description field, so description never round-trips.
// Departments hold the single departmentId; Desunify writes back only the first one.
type JobMapper struct{}

var _ mapping.Mapper[unified.ATSJob] = (*JobMapper)(nil)

func NewJobMapper() *JobMapper {
	return &JobMapper{}
}

func (m *JobMapper) Unify(_ context.Context, raw []unified.RawRecord, in mapping.UnifyInput) ([]unified.ATSJob, error) {
	out := make([]unified.ATSJob, 0, len(raw))
	for i, r := range raw {
		var j job
		if err := mapping.Decode(r, &j); err != nil {
			return nil, fmt.Errorf("ashby job %d: %w", i, err)
		}

		custom := make(map[string]any, len(j.CustomFields))
		for _, cf := range j.CustomFields {
			custom[cf.ID] = cf.Value
		}

		u := unified.ATSJob{
			Base: unified.Base{
				RemoteID:      j.ID,
				FieldMappings: mapping.ExtractCustomFields(custom, in.CustomFields),
			},
			Name:            j.Title,
			Code:            j.RequisitionID,
			Status:          strings.ToUpper(j.Status),
			Type:            unifyEmploymentType(j.EmploymentType),
			Confidential:    j.Confidential,
			Offices:         j.LocationIDs,
			RemoteCreatedAt: j.CreatedAt,
		}
		if j.DepartmentID != "" {
			u.Departments = []string{j.DepartmentID}
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *JobMapper) Desunify(_ context.Context, u unified.ATSJob, in mapping.DesunifyInput) (unified.RawRecord, error) {
	j := job{
		Title:          u.Name,
		RequisitionID:  u.Code,
		Status:         titleCase(u.Status),
		EmploymentType: desunifyEmploymentType(u.Type),
		Confidential:   u.Confidential,
		LocationIDs:    u.Offices,
	}
	if len(u.Departments) > 0 {
		j.DepartmentID = u.Departments[0]
	}
	if len(u.FieldMappings) > 0 {
		flat := map[string]any{}
		mapping.ApplyCustomFields(flat, u.FieldMappings, in.CustomFields)
		for _, cf := range in.CustomFields {
			if value, ok := flat[cf.RemoteID]; ok {
				j.CustomFields = append(j.CustomFields, customField{ID: cf.RemoteID, Value: value})
			}
		}
	}
	return mapping.Encode(j)
}

func unifyEmploymentType(t string) string {
	switch t {
	case "FullTime":
		return "FULL_TIME"
	case "PartTime":
		return "PART_TIME"
	case "Intern":
		return "INTERNSHIP"
	case "Contract":
		return "CONTRACT"
	case "Temporary":
		return "TEMPORARY"
	default:
		return strings.ToUpper(t)
	}
}

func desunifyEmploymentType(t string) string {
	switch t {
	case "FULL_TIME":
		return "FullTime"
	case "PART_TIME":
		return "PartTime"
	case "INTERNSHIP":
		return "Intern"
	case "CONTRACT":
		return "Contract"
	case "TEMPORARY":
		return "Temporary"
	default:
		return t
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
