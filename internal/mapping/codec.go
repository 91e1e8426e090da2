package mapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mit-27/panora-sync/internal/unified"
)

// Decode fills a provider struct from a raw payload
func Decode(raw unified.RawRecord, out any) error {
	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode raw record: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode raw record: %w", err)
	}
	return nil
}

// Encode turns a provider struct into a raw payload
func Encode(in any) (unified.RawRecord, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider payload: %w", err)
	}
	out := unified.RawRecord{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode provider payload: %w", err)
	}
	return out, nil
}

// FlexibleID accepts provider identifiers sent as a number, a string or an object with an "id" key
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null" || trimmed == "":
		*f = ""
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
	case strings.HasPrefix(trimmed, "{"):
		var obj struct {
			ID FlexibleID `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*f = obj.ID
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = FlexibleID(n.String())
	}
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}

// Int64 returns the numeric form used by providers with integer keys
func (f FlexibleID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	return n, err == nil
}

// FlexibleNumber accepts numbers sent either as JSON numbers or as numeric strings
type FlexibleNumber struct {
	Value *float64
}

func (f *FlexibleNumber) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "" || trimmed == "null" {
		f.Value = nil
		return nil
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", trimmed, err)
	}
	f.Value = &n
	return nil
}

func (f FlexibleNumber) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}

// Int returns the value truncated to int, or nil
func (f FlexibleNumber) Int() *int {
	if f.Value == nil {
		return nil
	}
	n := int(*f.Value)
	return &n
}
