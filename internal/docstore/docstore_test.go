package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var people = []Document{
	{"_id": "1", "name": "Ann", "age": int64(31), "tags": []any{"a", "b"}, "address": map[string]any{"city": "Oslo"}},
	{"_id": "2", "name": "bob", "age": 40.0, "tags": []any{"c"}, "pets": []any{map[string]any{"kind": "cat"}}},
	{"_id": "3", "name": "cid", "age": nil},
}

func matching(t *testing.T, m Matcher, filter Document) []any {
	t.Helper()
	var ids []any
	for _, doc := range people {
		ok, err := m.Match(doc, filter)
		if err != nil {
			t.Fatalf("match %v: %v", filter, err)
		}
		if ok {
			ids = append(ids, doc["_id"])
		}
	}
	return ids
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Document
		want   []any
	}{
		{name: "empty", filter: Document{}, want: []any{"1", "2", "3"}},
		{name: "equality across numeric types", filter: Document{"age": 40}, want: []any{"2"}},
		{name: "array contains", filter: Document{"tags": "b"}, want: []any{"1"}},
		{name: "whole array", filter: Document{"tags": []any{"c"}}, want: []any{"2"}},
		{name: "null matches missing", filter: Document{"pets": nil}, want: []any{"1", "3"}},
		{name: "dotted path", filter: Document{"address.city": "Oslo"}, want: []any{"1"}},
		{name: "dotted through array", filter: Document{"pets.kind": "cat"}, want: []any{"2"}},
		{name: "$gt skips other types", filter: Document{"age": map[string]any{"$gt": 30}}, want: []any{"1", "2"}},
		{name: "$lte", filter: Document{"age": map[string]any{"$lte": 31}}, want: []any{"1"}},
		{name: "$ne", filter: Document{"name": map[string]any{"$ne": "bob"}}, want: []any{"1", "3"}},
		{name: "$in", filter: Document{"name": map[string]any{"$in": []any{"bob", "cid"}}}, want: []any{"2", "3"}},
		{name: "$nin", filter: Document{"tags": map[string]any{"$nin": []any{"a", "c"}}}, want: []any{"3"}},
		{name: "$exists", filter: Document{"pets": map[string]any{"$exists": true}}, want: []any{"2"}},
		{name: "$regex with options", filter: Document{"name": map[string]any{"$regex": "^a", "$options": "i"}}, want: []any{"1"}},
		{name: "$not", filter: Document{"name": map[string]any{"$not": map[string]any{"$regex": "^b"}}}, want: []any{"1", "3"}},
		{
			name:   "$or",
			filter: Document{"$or": []any{map[string]any{"name": "cid"}, map[string]any{"age": 31}}},
			want:   []any{"1", "3"},
		},
		{
			name:   "$and",
			filter: Document{"$and": []any{map[string]any{"age": map[string]any{"$gt": 30}}, map[string]any{"tags": "c"}}},
			want:   []any{"2"},
		},
		{name: "$nor", filter: Document{"$nor": []any{map[string]any{"name": "bob"}}}, want: []any{"1", "3"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := matching(t, Matcher{}, tt.filter)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchCollationFoldsCase(t *testing.T) {
	m := NewMatcher(Document{"locale": "en", "strength": 2})
	got := matching(t, m, Document{"name": "ann"})
	if diff := cmp.Diff([]any{"1"}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if got := matching(t, Matcher{}, Document{"name": "ann"}); got != nil {
		t.Fatalf("binary comparison should not match: %v", got)
	}
}

func TestMatchRejectsMalformedCriteria(t *testing.T) {
	for _, filter := range []Document{
		{"$where": "1"},
		{"age": map[string]any{"$size": 1}},
		{"age": map[string]any{"$in": 3}},
		{"$or": []any{}},
		{"name": map[string]any{"$regex": "("}},
		{"name": map[string]any{"$options": "i"}},
	} {
		_, err := Match(people[0], filter)
		var de *Error
		if !errors.As(err, &de) || de.Name != CastError {
			t.Fatalf("%v: want CastError, got %v", filter, err)
		}
	}
}

func TestApplyUpdate(t *testing.T) {
	t.Parallel()

	base := Document{"_id": "1", "name": "ann", "n": int64(1), "f": 1.5, "nested": map[string]any{"a": 1}}
	tests := []struct {
		name   string
		update Document
		want   Document
	}{
		{
			name:   "plain fields are $set",
			update: Document{"name": "anna", "_id": "2"},
			want:   Document{"_id": "1", "name": "anna", "n": int64(1), "f": 1.5, "nested": map[string]any{"a": 1}},
		},
		{
			name:   "operators",
			update: Document{"$set": map[string]any{"nested.b": 2}, "$unset": map[string]any{"f": ""}, "$inc": map[string]any{"n": 2}},
			want:   Document{"_id": "1", "name": "ann", "n": int64(3), "nested": map[string]any{"a": 1, "b": 2}},
		},
		{
			name:   "inc float",
			update: Document{"$inc": map[string]any{"f": 1, "missing": 4}},
			want:   Document{"_id": "1", "name": "ann", "n": int64(1), "f": 2.5, "nested": map[string]any{"a": 1}, "missing": 4},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ApplyUpdate(base, tt.update)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
	if base["name"] != "ann" || len(base["nested"].(map[string]any)) != 1 {
		t.Fatalf("input document modified: %v", base)
	}
}

func TestApplyUpdateErrors(t *testing.T) {
	doc := Document{"name": "ann"}
	for _, update := range []Document{
		{"$push": map[string]any{"tags": "a"}},
		{"$set": "name"},
		{"$inc": map[string]any{"name": 1}},
		{"$inc": map[string]any{"n": "x"}},
	} {
		if _, err := ApplyUpdate(doc, update); err == nil {
			t.Fatalf("%v: expected error", update)
		}
	}
}

func TestUpsertSeed(t *testing.T) {
	filter := Document{"name": "zed", "age": map[string]any{"$gt": 3}, "$and": []any{map[string]any{"kind": "x"}}}
	got, err := UpsertSeed(filter, Document{"$set": map[string]any{"n": 1}}, false)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	want := Document{"name": "zed", "kind": "x", "n": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	got, err = UpsertSeed(Document{"_id": "9", "name": "zed"}, Document{"title": "t"}, true)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if diff := cmp.Diff(Document{"_id": "9", "title": "t"}, got); diff != "" {
		t.Fatalf("overwrite (-want +got):\n%s", diff)
	}
}

func TestProject(t *testing.T) {
	doc := Document{"_id": "1", "name": "ann", "address": map[string]any{"city": "Oslo", "zip": "0150"}}
	tests := []struct {
		name string
		proj Document
		want Document
	}{
		{name: "none", proj: nil, want: doc},
		{name: "include", proj: Document{"name": 1}, want: Document{"_id": "1", "name": "ann"}},
		{name: "include dotted", proj: Document{"address.city": 1, "_id": 0}, want: Document{"address": map[string]any{"city": "Oslo"}}},
		{name: "exclude", proj: Document{"address": 0}, want: Document{"_id": "1", "name": "ann"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Project(doc, tt.proj)); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", tt.name, diff)
		}
	}
	if diff := cmp.Diff(Document{"name": "ann"}, Pick(doc, "name", "missing")); diff != "" {
		t.Fatalf("pick (-want +got):\n%s", diff)
	}
}

func TestSortDocuments(t *testing.T) {
	docs := []Document{
		{"_id": "a", "name": "bob", "age": 2},
		{"_id": "b", "name": "Ann", "age": 1},
		{"_id": "c", "age": "x"},
		{"_id": "d", "name": "ann", "age": 2},
	}
	ids := func() []any {
		out := make([]any, len(docs))
		for i, d := range docs {
			out[i] = d["_id"]
		}
		return out
	}

	SortDocuments(docs, []SortField{{Field: "age", Desc: true}, {Field: "name"}}, nil)
	// строки старше чисел, отсутствующее имя младше строк
	if diff := cmp.Diff([]any{"c", "d", "a", "b"}, ids()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	SortDocuments(docs, []SortField{{Field: "name"}}, Document{"strength": 1})
	if diff := cmp.Diff([]any{"c", "d", "b", "a"}, ids()); diff != "" {
		t.Fatalf("folded (-want +got):\n%s", diff)
	}
}

func TestCompareAndEqual(t *testing.T) {
	now := time.Now()
	cases := []struct {
		a, b any
		want int
	}{
		{nil, 0, -1},
		{int64(2), 2.0, 0},
		{1, "1", -1},
		{"a", "b", -1},
		{[]any{1, 2}, []any{1}, 1},
		{map[string]any{"a": 1}, map[string]any{"a": 2}, -1},
		{false, true, -1},
		{now, now.Add(time.Second), -1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Fatalf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
	if !Equal(int32(3), 3.0) || Equal("3", 3) {
		t.Fatalf("Equal mismatch")
	}
}

type live struct{ name string }

func (l live) ToObject() Document { return Document{"name": l.name} }

func TestPlainUnwrapsLiveValues(t *testing.T) {
	in := map[string]any{
		"owner": live{name: "ann"},
		"list":  []Document{{"a": 1}},
		"typed": map[string]string{"k": "v"},
		"ptr":   &live{name: "bob"},
	}
	want := map[string]any{
		"owner": map[string]any{"name": "ann"},
		"list":  []any{map[string]any{"a": 1}},
		"typed": map[string]any{"k": "v"},
		"ptr":   map[string]any{"name": "bob"},
	}
	if diff := cmp.Diff(want, Plain(in)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if _, ok := PlainDocument([]any{1}); ok {
		t.Fatalf("a list is not a document")
	}
}

func TestDuplicateKeyFormat(t *testing.T) {
	e := DuplicateKey("people", "email", "a@b.c")
	want := `E11000 duplicate key error collection: people index: email_1 dup key: { : "a@b.c" }`
	if e.Message != want || e.Code != CodeDuplicateKey {
		t.Fatalf("got %q (%d)", e.Message, e.Code)
	}
}

func TestValidationAggregates(t *testing.T) {
	e := Validation("Person", map[string]*Error{
		"name": NewError(ValidatorError, "Path `name` is required."),
		"age":  NewError(CastError, "Cast to Number failed"),
	})
	want := "Person validation failed: age: Cast to Number failed, name: Path `name` is required."
	if e.Name != ValidationError || e.Message != want || len(e.Errors) != 2 {
		t.Fatalf("got %+v", e)
	}
}
