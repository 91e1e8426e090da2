// Package jira maps Jira Cloud issues.
package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

const Provider = "jira"

const dueDateLayout = "2006-01-02"

type named struct {
	Name string `json:"name,omitempty"`
}

type issueFields struct {
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      *named   `json:"status,omitempty"`
	Priority    *named   `json:"priority,omitempty"`
	IssueType   *named   `json:"issuetype,omitempty"`
	DueDate     string   `json:"duedate,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Parent      *struct {
		ID string `json:"id,omitempty"`
	} `json:"parent,omitempty"`
	Assignee *struct {
		AccountID string `json:"accountId,omitempty"`
	} `json:"assignee,omitempty"`
}

type issue struct {
	ID     string      `json:"id,omitempty"`
	Key    string      `json:"key,omitempty"`
	Fields issueFields `json:"fields"`
}

// TicketMapper maps Jira issues.
// status is read-only: Jira moves issues between statuses through transitions, not field writes.
// Custom fields live next to the core ones under "fields" as customfield_<n>.
type TicketMapper struct {
	refs mapping.References
}

var _ mapping.Mapper[unified.Ticket] = (*TicketMapper)(nil)

func NewTicketMapper(refs mapping.References) *TicketMapper {
	return &TicketMapper{refs: refs}
}

func (m *TicketMapper) Unify(ctx context.Context, raw []unified.RawRecord, in mapping.UnifyInput) ([]unified.Ticket, error) {
	out := make([]unified.Ticket, 0, len(raw))
	for i, r := range raw {
		var is issue
		if err := mapping.Decode(r, &is); err != nil {
			return nil, fmt.Errorf("jira issue %d: %w", i, err)
		}
		f := is.Fields
		fieldsRaw, _ := r["fields"].(map[string]any)

		u := unified.Ticket{
			Base: unified.Base{
				RemoteID:      is.ID,
				FieldMappings: mapping.ExtractCustomFields(fieldsRaw, in.CustomFields),
			},
			Name:        f.Summary,
			Description: f.Description,
			Tags:        f.Labels,
		}
		if f.Status != nil {
			u.Status = unifyStatus(f.Status.Name)
		}
		if f.Priority != nil {
			u.Priority = unifyPriority(f.Priority.Name)
		}
		if f.IssueType != nil {
			u.Type = strings.ToUpper(f.IssueType.Name)
		}
		if f.DueDate != "" {
			if due, err := time.Parse(dueDateLayout, f.DueDate); err == nil {
				u.DueDate = &due
			}
		}
		if f.Parent != nil {
			if parent, ok := m.refs.InternalID(ctx, unified.TicketingTicketType, f.Parent.ID, Provider, in.LinkedUserID); ok {
				u.ParentTicket = parent
			}
		}
		if f.Assignee != nil {
			if assignee, ok := m.refs.InternalID(ctx, unified.TicketingUserType, f.Assignee.AccountID, Provider, in.LinkedUserID); ok {
				u.AssignedTo = []string{assignee}
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *TicketMapper) Desunify(ctx context.Context, t unified.Ticket, in mapping.DesunifyInput) (unified.RawRecord, error) {
	f := issueFields{
		Summary:     t.Name,
		Description: t.Description,
		Labels:      t.Tags,
	}
	if priority := desunifyPriority(t.Priority); priority != "" {
		f.Priority = &named{Name: priority}
	}
	if t.Type != "" {
		f.IssueType = &named{Name: titleCase(t.Type)}
	}
	if t.DueDate != nil {
		f.DueDate = t.DueDate.UTC().Format(dueDateLayout)
	}
	if t.ParentTicket != "" {
		if remote, ok := m.refs.RemoteID(ctx, t.ParentTicket); ok {
			f.Parent = &struct {
				ID string `json:"id,omitempty"`
			}{ID: remote}
		}
	}
	if len(t.AssignedTo) > 0 {
		if remote, ok := m.refs.RemoteID(ctx, t.AssignedTo[0]); ok {
			f.Assignee = &struct {
				AccountID string `json:"accountId,omitempty"`
			}{AccountID: remote}
		}
	}

	fields, err := mapping.Encode(f)
	if err != nil {
		return nil, err
	}
	mapping.ApplyCustomFields(fields, t.FieldMappings, in.CustomFields)
	return unified.RawRecord{"fields": fields}, nil
}

func unifyStatus(name string) string {
	switch strings.ToLower(name) {
	case "":
		return ""
	case "done", "closed", "resolved":
		return unified.TicketStatusClosed
	default:
		return unified.TicketStatusOpen
	}
}

func unifyPriority(name string) string {
	switch strings.ToLower(name) {
	case "highest", "high":
		return unified.TicketPriorityHigh
	case "medium":
		return unified.TicketPriorityMedium
	case "low", "lowest":
		return unified.TicketPriorityLow
	default:
		return ""
	}
}

func desunifyPriority(p string) string {
	switch p {
	case unified.TicketPriorityHigh:
		return "High"
	case unified.TicketPriorityMedium:
		return "Medium"
	case unified.TicketPriorityLow:
		return "Low"
	default:
		return ""
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
