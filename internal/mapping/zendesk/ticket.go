// Package zendesk maps Zendesk Support tickets.
package zendesk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/unified"
)

const Provider = "zendesk"

type customField struct {
	ID    mapping.FlexibleID `json:"id"`
	Value any                `json:"value"`
}

type ticket struct {
	ID           mapping.FlexibleID `json:"id,omitempty"`
	Subject      string             `json:"subject,omitempty"`
	Description  string             `json:"description,omitempty"`
	Status       string             `json:"status,omitempty"`
	Priority     string             `json:"priority,omitempty"`
	Type         string             `json:"type,omitempty"`
	DueAt        *time.Time         `json:"due_at,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	AssigneeID   mapping.FlexibleID `json:"assignee_id,omitempty"`
	ProblemID    mapping.FlexibleID `json:"problem_id,omitempty"`
	CustomFields []customField      `json:"custom_fields,omitempty"`
}

// TicketMapper maps Zendesk tickets.
// Zendesk keeps custom fields as an [{id, value}] list keyed by numeric field id.
// Writes send the description as the first comment body, so description is write-asymmetric:
// Desunify emits comment.body and no description key.
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
		var t ticket
		if err := mapping.Decode(r, &t); err != nil {
			return nil, fmt.Errorf("zendesk ticket %d: %w", i, err)
		}

		description := t.Description
		if description == "" {
			description = commentBody(r)
		}

		u := unified.Ticket{
			Base: unified.Base{
				RemoteID:      t.ID.String(),
				FieldMappings: mapping.ExtractCustomFields(customFieldMap(t.CustomFields), in.CustomFields),
			},
			Name:        t.Subject,
			Description: description,
			Status:      unifyStatus(t.Status),
			Priority:    unifyPriority(t.Priority),
			Type:        strings.ToUpper(t.Type),
			DueDate:     t.DueAt,
			Tags:        t.Tags,
		}
		if assignee, ok := m.refs.InternalID(ctx, unified.TicketingUserType, t.AssigneeID.String(), Provider, in.LinkedUserID); ok {
			u.AssignedTo = []string{assignee}
		}
		if parent, ok := m.refs.InternalID(ctx, unified.TicketingTicketType, t.ProblemID.String(), Provider, in.LinkedUserID); ok {
			u.ParentTicket = parent
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *TicketMapper) Desunify(ctx context.Context, t unified.Ticket, in mapping.DesunifyInput) (unified.RawRecord, error) {
	out := unified.RawRecord{}
	if t.Name != "" {
		out["subject"] = t.Name
	}
	if t.Description != "" {
		out["comment"] = map[string]any{"body": t.Description}
	}
	if status := desunifyStatus(t.Status); status != "" {
		out["status"] = status
	}
	if priority := desunifyPriority(t.Priority); priority != "" {
		out["priority"] = priority
	}
	if t.Type != "" {
		out["type"] = strings.ToLower(t.Type)
	}
	if t.DueDate != nil {
		out["due_at"] = t.DueDate.UTC().Format(time.RFC3339)
	}
	if len(t.Tags) > 0 {
		out["tags"] = toAny(t.Tags)
	}
	if len(t.AssignedTo) > 0 {
		if remote, ok := m.refs.RemoteID(ctx, t.AssignedTo[0]); ok {
			out["assignee_id"] = numericOrString(remote)
		}
	}
	if t.ParentTicket != "" {
		if remote, ok := m.refs.RemoteID(ctx, t.ParentTicket); ok {
			out["problem_id"] = numericOrString(remote)
		}
	}

	if len(t.FieldMappings) > 0 {
		flat := map[string]any{}
		mapping.ApplyCustomFields(flat, t.FieldMappings, in.CustomFields)
		if len(flat) > 0 {
			fields := make([]any, 0, len(flat))
			for _, cf := range in.CustomFields {
				if value, ok := flat[cf.RemoteID]; ok {
					fields = append(fields, map[string]any{"id": numericOrString(cf.RemoteID), "value": value})
				}
			}
			out["custom_fields"] = fields
		}
	}
	return out, nil
}

func customFieldMap(fields []customField) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.ID.String()] = f.Value
	}
	return out
}

func commentBody(r unified.RawRecord) string {
	comment, _ := r["comment"].(map[string]any)
	body, _ := comment["body"].(string)
	return body
}

func unifyStatus(s string) string {
	switch strings.ToLower(s) {
	case "":
		return ""
	case "solved", "closed":
		return unified.TicketStatusClosed
	default:
		return unified.TicketStatusOpen
	}
}

func desunifyStatus(s string) string {
	switch s {
	case unified.TicketStatusClosed:
		return "solved"
	case unified.TicketStatusOpen:
		return "open"
	default:
		return ""
	}
}

func unifyPriority(p string) string {
	switch strings.ToLower(p) {
	case "urgent", "high":
		return unified.TicketPriorityHigh
	case "normal":
		return unified.TicketPriorityMedium
	case "low":
		return unified.TicketPriorityLow
	default:
		return ""
	}
}

func desunifyPriority(p string) string {
	switch p {
	case unified.TicketPriorityHigh:
		return "high"
	case unified.TicketPriorityMedium:
		return "normal"
	case unified.TicketPriorityLow:
		return "low"
	default:
		return ""
	}
}

func numericOrString(id string) any {
	if n, ok := mapping.FlexibleID(id).Int64(); ok {
		return n
	}
	return id
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
