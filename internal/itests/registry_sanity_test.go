//go:build integration

package itests

import (
	"context"
	"testing"
)

// Реестр загружен в TestMain; сверяем дискриминаторы, ссылки и схему БД.
func Test_Registry_Sanity(t *testing.T) {
	person, err := registry.Get("Person")
	if err != nil {
		t.Fatalf("Person model missing in registry: %v", err)
	}
	if person.Key() != "kind" || person.Collection != "people" {
		t.Fatalf("Person must live in people keyed by kind, got %q/%q", person.Collection, person.Key())
	}
	for _, tag := range []string{"Employee", "Customer"} {
		sub, ok := person.Sub(tag)
		if !ok || sub.Base() != person || sub.Collection != "people" {
			t.Fatalf("%s must be a discriminator of Person, got: %#v", tag, sub)
		}
	}
	if f := person.Fields["company"]; f == nil || f.Ref != "Company" {
		t.Fatalf("Person.company must reference Company, got: %#v", f)
	}

	var ok bool
	if err := pool.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'people_email_1')`,
	).Scan(&ok); err != nil || !ok {
		t.Fatalf("people_email_1 index missing: %v", err)
	}
}
