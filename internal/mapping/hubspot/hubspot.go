// Package hubspot maps HubSpot CRM v3 objects.
//
// HubSpot returns every attribute as a string under "properties", custom properties included.
// The object id is read-only: Desunify never writes it.
package hubspot

import (
	"strconv"

	"github.com/mit-27/panora-sync/internal/unified"
)

const Provider = "hubspot"

type object[P any] struct {
	ID           string       `json:"id,omitempty"`
	Properties   P            `json:"properties"`
	Associations associations `json:"associations,omitempty"`
}

type associations struct {
	Companies associationList `json:"companies,omitempty"`
}

type associationList struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results,omitempty"`
}

func (a associationList) first() string {
	if len(a.Results) == 0 {
		return ""
	}
	return a.Results[0].ID
}

func properties(raw unified.RawRecord) map[string]any {
	props, _ := raw["properties"].(map[string]any)
	return props
}

func wrap(props map[string]any) unified.RawRecord {
	return unified.RawRecord{"properties": props}
}

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func formatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
