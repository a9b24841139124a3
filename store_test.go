package strata

import "testing"

func TestFilterMatches(t *testing.T) {
	md := Metadata{
		"author": "ada",
		"year":   1843,
		"score":  0.75,
		"page":   int64(12),
	}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq string match", Eq("author", "ada"), true},
		{"eq string mismatch", Eq("author", "charles"), false},
		{"eq numeric cross-type", Eq("year", float64(1843)), true},
		{"eq missing key", Eq("missing", "x"), false},
		{"neq", Filter{Key: "author", Op: OpNeq, Value: "charles"}, true},
		{"neq equal value", Filter{Key: "author", Op: OpNeq, Value: "ada"}, false},
		{"lt", Filter{Key: "year", Op: OpLt, Value: 1900}, true},
		{"lt equal boundary", Filter{Key: "year", Op: OpLt, Value: 1843}, false},
		{"lte boundary", Filter{Key: "year", Op: OpLte, Value: 1843}, true},
		{"gt int64 value", Filter{Key: "page", Op: OpGt, Value: 10}, true},
		{"gte float", Filter{Key: "score", Op: OpGte, Value: 0.75}, true},
		{"range on non-numeric", Filter{Key: "author", Op: OpGt, Value: 1}, false},
		{"range missing key", Filter{Key: "missing", Op: OpLt, Value: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(md); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesAll(t *testing.T) {
	md := Metadata{"lang": "en", "pages": 30}
	if !MatchesAll(md, nil) {
		t.Error("empty filter list should match everything")
	}
	both := []Filter{Eq("lang", "en"), {Key: "pages", Op: OpGte, Value: 10}}
	if !MatchesAll(md, both) {
		t.Error("all predicates hold, expected match")
	}
	if MatchesAll(md, append(both, Eq("lang", "de"))) {
		t.Error("one failing predicate should reject the whole list")
	}
}
