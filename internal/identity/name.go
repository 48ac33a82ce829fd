package identity

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FallbackFirstName = "Unknown"
	FallbackLastName  = "Patient"
)

type Name struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

func fallbackName() Name {
	return Name{
		FirstName: FallbackFirstName,
		LastName:  FallbackLastName,
		FullName:  FallbackFirstName + " " + FallbackLastName,
	}
}

// ParseName extracts a display name from a stored name column. It never
// fails: undecodable entries are logged and skipped, and a column with nothing
// usable yields the "Unknown Patient" fallback.
func ParseName(raw []byte, logger *zap.Logger) Name {
	names, err := DecodeNames(raw)
	if err != nil && logger != nil {
		logger.Warn("unparseable patient name entries skipped",
			zap.Int("decoded", len(names)), zap.Error(err))
	}
	return NameFromFHIR(names)
}

// NameFromFHIR picks a display name from decoded HumanNames: an entry with
// given and family names wins, then an entry with text.
func NameFromFHIR(names []HumanName) Name {
	for _, n := range preferOfficial(names) {
		given := nonEmpty(n.Given)
		family := strings.TrimSpace(n.Family)
		if len(given) > 0 && family != "" {
			first := strings.Join(given, " ")
			return Name{FirstName: first, LastName: family, FullName: first + " " + family}
		}
	}
	for _, n := range preferOfficial(names) {
		if text := strings.TrimSpace(n.Text); text != "" {
			return NameFromText(text)
		}
	}
	return fallbackName()
}

// NameFromText builds a display name from free text split on whitespace: the
// last word is the family name.
func NameFromText(text string) Name {
	parts := strings.Fields(text)
	switch len(parts) {
	case 0:
		return fallbackName()
	case 1:
		return Name{FirstName: parts[0], LastName: "", FullName: parts[0]}
	default:
		last := parts[len(parts)-1]
		first := strings.Join(parts[:len(parts)-1], " ")
		return Name{FirstName: first, LastName: last, FullName: strings.Join(parts, " ")}
	}
}

// ToHumanNames returns the canonical FHIR form of a display name.
func ToHumanNames(first, last string) []HumanName {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	n := HumanName{Use: "official", Family: last, Text: strings.TrimSpace(first + " " + last)}
	if first != "" {
		n.Given = strings.Fields(first)
	}
	return []HumanName{n}
}

func preferOfficial(names []HumanName) []HumanName {
	out := make([]HumanName, 0, len(names))
	for _, n := range names {
		if n.Use == "official" {
			out = append(out, n)
		}
	}
	for _, n := range names {
		if n.Use != "official" {
			out = append(out, n)
		}
	}
	return out
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
