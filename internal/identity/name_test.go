package identity

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseName(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected Name
	}{
		{
			name:     "fhir array with given and family",
			raw:      `[{"use":"official","given":["Jane","Marie"],"family":"Doe"}]`,
			expected: Name{FirstName: "Jane Marie", LastName: "Doe", FullName: "Jane Marie Doe"},
		},
		{
			name:     "official entry preferred over nickname",
			raw:      `[{"use":"nickname","given":["JJ"],"family":"D"},{"use":"official","given":["Jane"],"family":"Doe"}]`,
			expected: Name{FirstName: "Jane", LastName: "Doe", FullName: "Jane Doe"},
		},
		{
			name:     "fhir array with text only",
			raw:      `[{"text":"John Smith"}]`,
			expected: Name{FirstName: "John", LastName: "Smith", FullName: "John Smith"},
		},
		{
			name:     "given without family falls through to text",
			raw:      `[{"given":["Ann"],"text":"Ann Lee"}]`,
			expected: Name{FirstName: "Ann", LastName: "Lee", FullName: "Ann Lee"},
		},
		{
			name:     "single fhir object",
			raw:      `{"given":["Ali"],"family":"Khan"}`,
			expected: Name{FirstName: "Ali", LastName: "Khan", FullName: "Ali Khan"},
		},
		{
			name:     "json encoded string containing array",
			raw:      `"[{\"given\":[\"Mary\"],\"family\":\"Major\"}]"`,
			expected: Name{FirstName: "Mary", LastName: "Major", FullName: "Mary Major"},
		},
		{
			name:     "json string plain name",
			raw:      `"Peter van Dijk"`,
			expected: Name{FirstName: "Peter van", LastName: "Dijk", FullName: "Peter van Dijk"},
		},
		{
			name:     "bare text column",
			raw:      `Sam Jones`,
			expected: Name{FirstName: "Sam", LastName: "Jones", FullName: "Sam Jones"},
		},
		{
			name:     "single word",
			raw:      `"Cher"`,
			expected: Name{FirstName: "Cher", LastName: "", FullName: "Cher"},
		},
		{
			name:     "given stored as a string",
			raw:      `[{"given":"John","family":"Smith"}]`,
			expected: Name{FirstName: "John", LastName: "Smith", FullName: "John Smith"},
		},
		{
			name:     "array of bare strings",
			raw:      `["John Smith"]`,
			expected: Name{FirstName: "John", LastName: "Smith", FullName: "John Smith"},
		},
		{
			name:     "good entry kept next to junk",
			raw:      `[{"text":"John Smith"},"junk"]`,
			expected: Name{FirstName: "John", LastName: "Smith", FullName: "John Smith"},
		},
		{
			name:     "bad element skipped",
			raw:      `[42,{"given":["Ana"],"family":"Ruiz"}]`,
			expected: Name{FirstName: "Ana", LastName: "Ruiz", FullName: "Ana Ruiz"},
		},
		{
			name:     "legacy firstName lastName object",
			raw:      `{"firstName":"John","lastName":"Smith"}`,
			expected: Name{FirstName: "John", LastName: "Smith", FullName: "John Smith"},
		},
		{
			name:     "family stored as an array",
			raw:      `[{"given":["Lea"],"family":["van","Berg"]}]`,
			expected: Name{FirstName: "Lea", LastName: "van Berg", FullName: "Lea van Berg"},
		},
		{
			name:     "null",
			raw:      `null`,
			expected: fallbackName(),
		},
		{
			name:     "empty",
			raw:      ``,
			expected: fallbackName(),
		},
		{
			name:     "empty array",
			raw:      `[]`,
			expected: fallbackName(),
		},
		{
			name:     "whitespace string",
			raw:      `"   "`,
			expected: fallbackName(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseName([]byte(tc.raw), zap.NewNop())
			if got != tc.expected {
				t.Errorf("ParseName(%s) = %+v, want %+v", tc.raw, got, tc.expected)
			}
		})
	}
}

func TestParseName_MalformedIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	got := ParseName([]byte(`[{"given": "not-an-array"`), zap.New(core))

	if got != fallbackName() {
		t.Errorf("expected fallback name, got %+v", got)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
}

func TestParseName_PartialFailureLogsSkippedEntries(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	got := ParseName([]byte(`[true,{"given":["Ali"],"family":"Khan"}]`), zap.New(core))

	want := Name{FirstName: "Ali", LastName: "Khan", FullName: "Ali Khan"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if logs.Len() != 1 {
		t.Errorf("expected the skipped entry to be logged once, got %d", logs.Len())
	}
}

func TestNameFromText(t *testing.T) {
	got := NameFromText("  Maria   de la Cruz ")
	want := Name{FirstName: "Maria de la", LastName: "Cruz", FullName: "Maria de la Cruz"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if NameFromText("") != fallbackName() {
		t.Error("expected fallback for empty text")
	}
}

func TestToHumanNamesRoundTrip(t *testing.T) {
	raw, err := Canonical(ToHumanNames("Jane", "Doe"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}

	got := ParseName(raw, nil)
	want := Name{FirstName: "Jane", LastName: "Doe", FullName: "Jane Doe"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
