package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=9999", MaxLimit, 0},
		{"limit=-5&offset=-3", DefaultLimit, 0},
		{"limit=abc", DefaultLimit, 0},
	}
	for _, tc := range tests {
		p := paramsFor(t, tc.query)
		if p.Limit != tc.limit || p.Offset != tc.offset {
			t.Errorf("query %q: got %+v, want limit %d offset %d", tc.query, p, tc.limit, tc.offset)
		}
	}
}

func TestResponseHasMore(t *testing.T) {
	r := NewResponse([]int{1, 2}, 10, 2, 0)
	if !r.HasMore {
		t.Error("expected HasMore with 10 total and page of 2")
	}
	r = NewResponse([]int{1, 2}, 2, 2, 0)
	if r.HasMore {
		t.Error("did not expect HasMore when page covers all results")
	}
}

func TestNextOffset(t *testing.T) {
	p := Params{Limit: 50, Offset: 100}
	if !p.HasNext(200) {
		t.Error("expected next page")
	}
	if p.NextOffset() != 150 {
		t.Errorf("next offset = %d", p.NextOffset())
	}
}
