package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EntityID is an identifier the backend may send either as a JSON number or as a string.
type EntityID string

func (id *EntityID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*id = EntityID(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", s, err)
	}
	*id = EntityID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers so the backend sees the type it sent.
func (id EntityID) MarshalJSON() ([]byte, error) {
	if isPlainInteger(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id EntityID) String() string { return string(id) }

func isPlainInteger(s string) bool {
	if s == "" || len(s) > 18 {
		return false
	}
	if s != "0" && s[0] == '0' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Points is a score value. Decimal columns arrive from the backend as strings ("10.00").
type Points float64

func (p *Points) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid score %s: %w", b, err)
	}
	*p = Points(v)
	return nil
}
