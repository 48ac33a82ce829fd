package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HumanName is the subset of the FHIR HumanName datatype stored for patients.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// UnmarshalJSON accepts the FHIR object, a bare string (treated as text), a
// scalar given or an array family, and the legacy {firstName,lastName} object.
func (n *HumanName) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*n = HumanName{Text: strings.TrimSpace(text)}
		return nil
	}

	var obj struct {
		Use       string          `json:"use"`
		Text      string          `json:"text"`
		Family    json.RawMessage `json:"family"`
		Given     json.RawMessage `json:"given"`
		FirstName string          `json:"firstName"`
		LastName  string          `json:"lastName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	given, err := stringOrList(obj.Given)
	if err != nil {
		return fmt.Errorf("given: %w", err)
	}
	family, err := stringOrList(obj.Family)
	if err != nil {
		return fmt.Errorf("family: %w", err)
	}
	if len(given) == 0 && obj.FirstName != "" {
		given = strings.Fields(obj.FirstName)
	}
	if len(family) == 0 && obj.LastName != "" {
		family = []string{obj.LastName}
	}

	*n = HumanName{
		Use:    obj.Use,
		Text:   obj.Text,
		Family: strings.TrimSpace(strings.Join(family, " ")),
		Given:  given,
	}
	return nil
}

// ContactPoint is the subset of the FHIR ContactPoint datatype (telecom).
type ContactPoint struct {
	System string `json:"system,omitempty"` // phone | email | other
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
	Rank   int    `json:"rank,omitempty"`
}

// UnmarshalJSON accepts the FHIR object, a bare string value, a numeric value
// and a rank stored as a string.
func (c *ContactPoint) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err == nil {
		*c = ContactPoint{Value: strings.TrimSpace(value)}
		return nil
	}

	var obj struct {
		System string          `json:"system"`
		Value  json.RawMessage `json:"value"`
		Use    string          `json:"use"`
		Rank   json.RawMessage `json:"rank"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	v, err := scalarString(obj.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	var rank int
	if r, err := scalarString(obj.Rank); err != nil {
		return fmt.Errorf("rank: %w", err)
	} else if r != "" {
		if rank, err = strconv.Atoi(r); err != nil {
			return fmt.Errorf("rank: %w", err)
		}
	}

	*c = ContactPoint{System: obj.System, Value: v, Use: obj.Use, Rank: rank}
	return nil
}

// stringOrList reads a JSON string or an array of strings. Non-string array
// elements are dropped.
func stringOrList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return strings.Fields(one), nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("expected string or array of strings")
	}
	var out []string
	for _, e := range elems {
		var s string
		if json.Unmarshal(e, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// scalarString reads a JSON string or number as text.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string or number")
}

// Address is the subset of the FHIR Address datatype.
type Address struct {
	Use        string   `json:"use,omitempty"`
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

const (
	SystemEmail = "email"
	SystemPhone = "phone"
)

// maxStringNesting bounds how many times a JSON string may wrap another JSON
// document before it is treated as plain text.
const maxStringNesting = 3

// decodeTolerant normalizes the historical storage shapes of a FHIR list field:
// null/absent, a plain string, a JSON-encoded string, a single object or an
// array. Plain text is returned separately for the caller to wrap. Array
// elements are decoded one by one; bad elements are skipped and reported in
// err alongside the elements that did decode.
func decodeTolerant[T any](raw []byte) (items []T, text string, err error) {
	raw = bytes.TrimSpace(raw)
	for depth := 0; ; depth++ {
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, "", nil
		}

		switch raw[0] {
		case '[':
			var elems []json.RawMessage
			if err := json.Unmarshal(raw, &elems); err != nil {
				return nil, "", fmt.Errorf("decode array: %w", err)
			}
			var errs []error
			for i, elem := range elems {
				var item T
				if err := json.Unmarshal(elem, &item); err != nil {
					errs = append(errs, fmt.Errorf("element %d: %w", i, err))
					continue
				}
				items = append(items, item)
			}
			return items, "", errors.Join(errs...)
		case '{':
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, "", fmt.Errorf("decode object: %w", err)
			}
			return []T{item}, "", nil
		case '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, "", fmt.Errorf("decode string: %w", err)
			}
			inner := strings.TrimSpace(s)
			if depth < maxStringNesting && looksLikeJSON(inner) {
				raw = []byte(inner)
				continue
			}
			return nil, inner, nil
		default:
			// Column held bare text rather than JSON.
			return nil, string(raw), nil
		}
	}
}

func looksLikeJSON(s string) bool {
	if s == "" {
		return false
	}
	if (s[0] == '[' || s[0] == '{' || s[0] == '"') && json.Valid([]byte(s)) {
		return true
	}
	return false
}

// DecodeNames decodes a stored name column into FHIR HumanNames. On a partial
// failure the decodable entries are returned together with the error.
func DecodeNames(raw []byte) ([]HumanName, error) {
	names, text, err := decodeTolerant[HumanName](raw)
	if text != "" {
		return []HumanName{{Text: text}}, nil
	}
	return names, err
}

// DecodeTelecom decodes a stored telecom column. A plain string is classified
// as an email when it contains "@" and as a phone otherwise.
func DecodeTelecom(raw []byte) ([]ContactPoint, error) {
	points, text, err := decodeTolerant[ContactPoint](raw)
	if text != "" {
		var out []ContactPoint
		for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ';' }) {
			value := strings.TrimSpace(part)
			if value == "" {
				continue
			}
			out = append(out, ContactPoint{System: classifyContact(value), Value: value})
		}
		return out, nil
	}
	for i := range points {
		if points[i].System == "" {
			points[i].System = classifyContact(points[i].Value)
		}
	}
	return points, err
}

// DecodeAddresses decodes a stored address column.
func DecodeAddresses(raw []byte) ([]Address, error) {
	addrs, text, err := decodeTolerant[Address](raw)
	if text != "" {
		return []Address{{Text: text}}, nil
	}
	return addrs, err
}

func classifyContact(value string) string {
	if strings.Contains(value, "@") {
		return SystemEmail
	}
	return SystemPhone
}

// Canonical encodes a value in the canonical array form persisted going forward.
// A nil slice is written as an empty array, never as null or a bare string.
func Canonical[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
