package pagination

import (
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 1 || params.Limit != 10 {
		t.Fatalf("unexpected defaults %+v", params)
	}
}

func TestParseExplicitValues(t *testing.T) {
	params, err := Parse(url.Values{"page": {"3"}, "limit": {"25"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 3 || params.Limit != 25 {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestParseCapsLimit(t *testing.T) {
	params, err := Parse(url.Values{"limit": {"5000"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Limit != 100 {
		t.Fatalf("expected limit capped at 100, got %d", params.Limit)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []url.Values{
		{"page": {"zero"}},
		{"page": {"0"}},
		{"page": {"-1"}},
		{"limit": {"abc"}},
		{"limit": {"0"}},
	}
	for _, query := range cases {
		if _, err := Parse(query); err == nil {
			t.Fatalf("expected error for query %v", query)
		}
	}
}

func TestOffset(t *testing.T) {
	if got := (Params{Page: 1, Limit: 10}).Offset(); got != 0 {
		t.Fatalf("expected offset 0 for first page, got %d", got)
	}
	if got := (Params{Page: 4, Limit: 25}).Offset(); got != 75 {
		t.Fatalf("expected offset 75, got %d", got)
	}
	if got := (Params{Page: 0, Limit: 10}).Offset(); got != 0 {
		t.Fatalf("expected offset 0 for unset page, got %d", got)
	}
}
