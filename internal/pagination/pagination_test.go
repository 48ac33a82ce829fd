package pagination

import (
	"net/http/httptest"
	"testing"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", DefaultPage, DefaultLimit},
		{"?page=3&limit=50", 3, 50},
		{"?page=0&limit=-4", DefaultPage, DefaultLimit},
		{"?page=abc&limit=xyz", DefaultPage, DefaultLimit},
		{"?limit=5000", DefaultPage, MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := ParseParams(httptest.NewRequest("GET", "/hospitals"+tt.query, nil))
			if p.Page != tt.wantPage || p.Limit != tt.wantLimit {
				t.Errorf("got page=%d limit=%d, want page=%d limit=%d", p.Page, p.Limit, tt.wantPage, tt.wantLimit)
			}
		})
	}
}

func TestCalculateMeta(t *testing.T) {
	p := Params{Page: 2, Limit: 10}
	if off := p.CalculateOffset(); off != 10 {
		t.Errorf("offset = %d, want 10", off)
	}

	meta := p.CalculateMeta(25)
	if meta.TotalPages != 3 || !meta.HasNext || !meta.HasPrevious {
		t.Errorf("unexpected meta: %+v", meta)
	}

	empty := (&Params{Page: 1, Limit: 10}).CalculateMeta(0)
	if empty.TotalPages != 1 || empty.HasNext || empty.HasPrevious {
		t.Errorf("unexpected empty meta: %+v", empty)
	}
}
