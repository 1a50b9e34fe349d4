package handler

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseQuery(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "plain",
			raw:  "name=ann&$limit=10",
			want: map[string]any{"name": "ann", "$limit": "10"},
		},
		{
			name: "operator",
			raw:  "age[$gt]=3&age[$lte]=9",
			want: map[string]any{"age": map[string]any{"$gt": "3", "$lte": "9"}},
		},
		{
			name: "appended list",
			raw:  "tags[$in][]=a&tags[$in][]=b",
			want: map[string]any{"tags": map[string]any{"$in": []any{"a", "b"}}},
		},
		{
			name: "repeated key",
			raw:  "$select=name&$select=email",
			want: map[string]any{"$select": []any{"name", "email"}},
		},
		{
			name: "indexed clauses",
			raw:  "$or[1][name]=bob&$or[0][name]=ann",
			want: map[string]any{"$or": []any{
				map[string]any{"name": "ann"},
				map[string]any{"name": "bob"},
			}},
		},
		{
			name: "sort map",
			raw:  "$sort[name]=-1",
			want: map[string]any{"$sort": map[string]any{"name": "-1"}},
		},
		{
			name: "index at the array limit",
			raw:  "a[20]=x",
			want: map[string]any{"a": []any{"x"}},
		},
		{
			name: "index past the array limit",
			raw:  "a[21]=x",
			want: map[string]any{"a": map[string]any{"21": "x"}},
		},
		{
			name: "large index stays a key",
			raw:  "a[100]=x",
			want: map[string]any{"a": map[string]any{"100": "x"}},
		},
		{
			name: "malformed brackets",
			raw:  "a[b=1",
			want: map[string]any{"a[b": "1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, err := url.ParseQuery(tc.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := ParseQuery(values)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
