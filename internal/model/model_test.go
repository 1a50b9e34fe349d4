package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/docstore/memstore"

	"github.com/google/go-cmp/cmp"
)

const ownerYAML = `
collection: owners
fields:
  name:
    type: string
    required: true
`

const petYAML = `
discriminator_key: species
fields:
  name:
    type: string
    required: true
  legs:
    type: int
    min: 0
    max: 8
  born:
    type: date
  tags:
    type: array
    of: string
  status:
    type: string
    enum: [active, archived]
    default: active
  code:
    type: string
    match: "^[A-Z]{3}$"
  owner:
    type: id
    ref: Owner
  friends:
    type: array
    of: id
    ref: Pet
discriminators:
  Dog:
    fields:
      breed:
        type: string
        required: true
`

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for name, src := range map[string]string{"Owner": ownerYAML, "Pet": petYAML} {
		m, err := ParseModel(name, []byte(src))
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if err := r.Register(m); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := r.Link(); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := r.Bind(context.Background(), memstore.New()); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return r
}

func mustGet(t *testing.T, r *Registry, name string) *Model {
	t.Helper()
	m, err := r.Get(name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return m
}

func storeErrorName(err error) string {
	var de *docstore.Error
	if errors.As(err, &de) {
		return de.Name
	}
	return ""
}

func TestParseModelDefaults(t *testing.T) {
	m, err := ParseModel("Pet", []byte(petYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Collection != "pets" {
		t.Fatalf("collection = %q", m.Collection)
	}
	if m.Key() != "species" || !m.IsStrict() {
		t.Fatalf("key %q strict %v", m.Key(), m.IsStrict())
	}
}

func TestParseModelRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "model key", src: "table: pets\n", wantErr: "unknown key 'table' in model"},
		{name: "field key", src: "fields:\n  a:\n    typ: string\n", wantErr: "unknown key 'typ' in field"},
		{name: "field type", src: "fields:\n  a:\n    type: uuid\n", wantErr: "unknown type value 'uuid'"},
		{name: "service key", src: "service:\n  limit: 3\n", wantErr: "unknown key 'limit' in service"},
		{name: "discriminator key", src: "discriminators:\n  Dog:\n    collection: dogs\n", wantErr: "unknown key 'collection' in discriminator"},
		{name: "empty", src: "", wantErr: "empty YAML"},
		{name: "broken", src: "fields: [", wantErr: "YAML parse error"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseModel("X", []byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadModelsFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Owner.yml"), []byte(ownerYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := InitRegistry(dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := len(r.Models()); got != 1 {
		t.Fatalf("models = %d", got)
	}
	if _, err := r.Get("Owner"); err != nil {
		t.Fatalf("owner missing: %v", err)
	}
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry()
	m, _ := ParseModel("Owner", []byte(ownerYAML))
	if err := r.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(m); storeErrorName(err) != docstore.OverwriteModelError {
		t.Fatalf("double register: %v", err)
	}
	if _, err := r.Get("Nope"); storeErrorName(err) != docstore.MissingSchemaError {
		t.Fatalf("get missing: %v", err)
	}

	dangling, _ := ParseModel("Pet", []byte(petYAML))
	r2 := NewRegistry()
	if err := r2.Register(dangling); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r2.Link(); err == nil || !strings.Contains(err.Error(), "invalid ref") {
		t.Fatalf("link with dangling ref: %v", err)
	}
}

func TestLinkMergesDiscriminators(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")
	dog := mustGet(t, r, "Dog")
	if dog.Base() != pet || dog.Collection != "pets" || dog.Key() != "species" {
		t.Fatalf("dog not linked: base=%v collection=%q key=%q", dog.Base(), dog.Collection, dog.Key())
	}
	if dog.field("name") == nil || dog.field("breed") == nil || pet.field("breed") != nil {
		t.Fatalf("fields not merged")
	}
	if sub, ok := pet.Sub("Dog"); !ok || sub != dog {
		t.Fatalf("Sub(Dog) = %v %v", sub, ok)
	}
}

func TestCreateCastsAndValidates(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")
	ctx := context.Background()

	docs, err := pet.Create(ctx, []docstore.Document{{
		"name":  "rex",
		"legs":  "4",
		"born":  "2020-01-02",
		"tags":  "good",
		"code":  "ABC",
		"extra": true,
	}}, docstore.InsertOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got := docs[0]
	delete(got, docstore.IDField)
	want := docstore.Document{
		"name":   "rex",
		"legs":   int64(4),
		"born":   time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		"tags":   []any{"good"},
		"code":   "ABC",
		"status": "active",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestCreateReportsEveryFailure(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")

	_, err := pet.Create(context.Background(), []docstore.Document{{
		"legs":   12,
		"status": "lost",
		"code":   "abc",
		"born":   "yesterday",
	}}, docstore.InsertOptions{})
	var de *docstore.Error
	if !errors.As(err, &de) || de.Name != docstore.ValidationError {
		t.Fatalf("want ValidationError, got %v", err)
	}
	wantNames := map[string]string{
		"name":   docstore.ValidatorError,
		"legs":   docstore.ValidatorError,
		"status": docstore.ValidatorError,
		"code":   docstore.ValidatorError,
		"born":   docstore.CastError,
	}
	if len(de.Errors) != len(wantNames) {
		t.Fatalf("errors = %v", de.Errors)
	}
	for path, name := range wantNames {
		if fe := de.Errors[path]; fe == nil || fe.Name != name {
			t.Fatalf("%s: got %v, want %s", path, fe, name)
		}
	}
}

func TestNonStrictKeepsUnknownPaths(t *testing.T) {
	m, err := ParseModel("Loose", []byte("strict: false\nfields:\n  a:\n    type: int\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := m.prepare(docstore.Document{"a": "1", "b": "x"}, true)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if diff := cmp.Diff(docstore.Document{"a": int64(1), "b": "x"}, out); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestDiscriminatorTagsWritesAndScopesReads(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")
	dog := mustGet(t, r, "Dog")
	ctx := context.Background()

	if _, err := pet.Create(ctx, []docstore.Document{{"name": "tom"}}, docstore.InsertOptions{}); err != nil {
		t.Fatalf("create pet: %v", err)
	}
	created, err := dog.Create(ctx, []docstore.Document{{"name": "rex", "breed": "lab", "species": "Cat"}}, docstore.InsertOptions{})
	if err != nil {
		t.Fatalf("create dog: %v", err)
	}
	if created[0]["species"] != "Dog" {
		t.Fatalf("tag = %v", created[0]["species"])
	}
	if _, err := dog.Create(ctx, []docstore.Document{{"name": "max"}}, docstore.InsertOptions{}); storeErrorName(err) != docstore.ValidationError {
		t.Fatalf("breed is required: %v", err)
	}

	dogs, err := dog.Find(ctx, docstore.Document{}, docstore.FindOptions{})
	if err != nil || len(dogs) != 1 {
		t.Fatalf("dogs = %v %v", dogs, err)
	}
	all, err := pet.Count(ctx, docstore.Document{}, docstore.CountOptions{})
	if err != nil || all != 2 {
		t.Fatalf("pets = %d %v", all, err)
	}
	n, err := dog.EstimatedCount(ctx, docstore.CountOptions{})
	if err != nil || n != 1 {
		t.Fatalf("estimated dogs = %d %v", n, err)
	}
}

func TestCastCriteria(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")

	got, err := pet.castCriteria(docstore.Document{
		"legs": map[string]any{"$gte": "2", "$in": []any{"4", 6}},
		"tags": "good",
		"$or":  []any{map[string]any{"born": "2020-01-02"}},
		"free": "x",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	want := docstore.Document{
		"legs": map[string]any{"$gte": int64(2), "$in": []any{int64(4), int64(6)}},
		"tags": "good",
		"$or":  []any{docstore.Document{"born": time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)}},
		"free": "x",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	_, err = pet.castCriteria(docstore.Document{"legs": "many"})
	var de *docstore.Error
	if !errors.As(err, &de) || de.Name != docstore.CastError || de.Path != "legs" {
		t.Fatalf("want CastError at legs, got %v", err)
	}
	if !strings.Contains(de.Message, `Cast to Number failed for value "many"`) {
		t.Fatalf("message = %q", de.Message)
	}
}

func TestCastUpdate(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")

	got, err := pet.castUpdate(docstore.Document{
		"legs":    "3",
		"unknown": 1,
		"$inc":    map[string]any{"legs": "1"},
		"species": "Dog",
	}, true)
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	want := docstore.Document{
		"$set": docstore.Document{"legs": int64(3)},
		"$inc": map[string]any{"legs": float64(1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if _, err := pet.castUpdate(docstore.Document{"$unset": map[string]any{"name": ""}}, true); storeErrorName(err) != docstore.ValidationError {
		t.Fatalf("unsetting a required path: %v", err)
	}
	if _, err := pet.castUpdate(docstore.Document{"legs": 100}, false); err != nil {
		t.Fatalf("validators off: %v", err)
	}
}

func TestHydrate(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")
	got := pet.Hydrate(docstore.Document{"_id": 7, "legs": float64(4), "born": "2020-01-02"})
	want := docstore.Document{
		"_id":  7,
		"id":   "7",
		"legs": int64(4),
		"born": time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if pet.Hydrate(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestParsePopulate(t *testing.T) {
	got, err := ParsePopulate([]any{"a b", map[string]any{"path": "c", "select": "name", "model": "Owner"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []PopulateOption{{Path: "a"}, {Path: "b"}, {Path: "c", Select: "name", Model: "Owner"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if _, err := ParsePopulate(map[string]any{"select": "x"}); storeErrorName(err) != docstore.StrictPopulateError {
		t.Fatalf("missing path: %v", err)
	}
	if _, err := ParsePopulate(42); storeErrorName(err) != docstore.StrictPopulateError {
		t.Fatalf("bad type: %v", err)
	}
}

func TestPopulate(t *testing.T) {
	r := newRegistry(t)
	pet := mustGet(t, r, "Pet")
	owner := mustGet(t, r, "Owner")
	ctx := context.Background()

	owners, err := owner.Create(ctx, []docstore.Document{{"name": "ann"}}, docstore.InsertOptions{})
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	ownerID := owners[0][docstore.IDField]
	pets, err := pet.Create(ctx, []docstore.Document{{"name": "tom"}}, docstore.InsertOptions{})
	if err != nil {
		t.Fatalf("pet: %v", err)
	}
	tomID := pets[0][docstore.IDField]

	docs := []docstore.Document{
		{"name": "rex", "owner": ownerID, "friends": []any{tomID, "gone"}},
		{"name": "max", "owner": "gone"},
	}
	if err := pet.Populate(ctx, docs, []any{"owner", map[string]any{"path": "friends", "select": []any{"name"}}}, nil); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if o, ok := docs[0]["owner"].(docstore.Document); !ok || o["name"] != "ann" {
		t.Fatalf("owner = %v", docs[0]["owner"])
	}
	want := []any{docstore.Document{docstore.IDField: tomID, "name": "tom"}}
	if diff := cmp.Diff(want, docs[0]["friends"]); diff != "" {
		t.Fatalf("friends (-want +got):\n%s", diff)
	}
	if docs[1]["owner"] != nil {
		t.Fatalf("missing target should become nil, got %v", docs[1]["owner"])
	}

	err = pet.Populate(ctx, docs, "legs", nil)
	if storeErrorName(err) != docstore.StrictPopulateError {
		t.Fatalf("populating a non-ref path: %v", err)
	}
}

func TestUnboundModel(t *testing.T) {
	m, _ := ParseModel("Owner", []byte(ownerYAML))
	_, err := m.Find(context.Background(), docstore.Document{}, docstore.FindOptions{})
	if storeErrorName(err) != docstore.MissingSchemaError {
		t.Fatalf("want MissingSchemaError, got %v", err)
	}
}
