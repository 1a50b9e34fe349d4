package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"DocrestAPI/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		build     func(string, ...Option) *Error
		code      int
		name      string
		className string
	}{
		{BadRequest, 400, "BadRequest", "bad-request"},
		{NotAuthenticated, 401, "NotAuthenticated", "not-authenticated"},
		{PaymentError, 402, "PaymentError", "payment-error"},
		{Forbidden, 403, "Forbidden", "forbidden"},
		{NotFound, 404, "NotFound", "not-found"},
		{MethodNotAllowed, 405, "MethodNotAllowed", "method-not-allowed"},
		{NotAcceptable, 406, "NotAcceptable", "not-acceptable"},
		{Timeout, 408, "Timeout", "timeout"},
		{Conflict, 409, "Conflict", "conflict"},
		{Gone, 410, "Gone", "gone"},
		{LengthRequired, 411, "LengthRequired", "length-required"},
		{Unprocessable, 422, "Unprocessable", "unprocessable"},
		{TooManyRequests, 429, "TooManyRequests", "too-many-requests"},
		{GeneralError, 500, "GeneralError", "general-error"},
		{NotImplemented, 501, "NotImplemented", "not-implemented"},
		{BadGateway, 502, "BadGateway", "bad-gateway"},
		{Unavailable, 503, "Unavailable", "unavailable"},
	}
	for _, tt := range tests {
		e := tt.build("")
		if e.Code != tt.code || e.Name != tt.name || e.ClassName != tt.className {
			t.Fatalf("got %d %s %s, want %d %s %s", e.Code, e.Name, e.ClassName, tt.code, tt.name, tt.className)
		}
		if e.Message != tt.name {
			t.Fatalf("empty message should default to the name, got %q", e.Message)
		}
	}
}

func TestNewUnknownCodeIsGeneralError(t *testing.T) {
	e := New(418, "teapot")
	if e.Code != http.StatusInternalServerError || e.Name != "GeneralError" {
		t.Fatalf("unexpected error: %+v", e)
	}
	if e.Message != "teapot" {
		t.Fatalf("message lost: %q", e.Message)
	}
}

func TestMarshalJSON(t *testing.T) {
	e := Conflict("email: x already exists.", WithErrors(map[string]any{"email": "x"}))
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["name"] != "Conflict" || got["className"] != "conflict" || got["code"] != float64(409) {
		t.Fatalf("unexpected body: %s", raw)
	}
	if _, ok := got["data"]; ok {
		t.Fatalf("empty data must be omitted: %s", raw)
	}
	if errs, _ := got["errors"].(map[string]any); errs["email"] != "x" {
		t.Fatalf("errors missing: %s", raw)
	}
}

func TestStatusOfAndIs(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", NotFound("gone"))
	if StatusOf(wrapped) != http.StatusNotFound {
		t.Fatalf("StatusOf = %d", StatusOf(wrapped))
	}
	if !Is(wrapped, http.StatusNotFound) || Is(wrapped, http.StatusConflict) {
		t.Fatalf("Is mismatch")
	}
	if StatusOf(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatalf("plain errors are 500")
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	validation := docstore.Validation("Person", map[string]*docstore.Error{
		"name": docstore.NewError(docstore.ValidatorError, "Path `name` is required.", docstore.WithPath("name")),
	})
	mongoDup := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: `E11000 duplicate key error collection: app.people index: email_1 dup key: { email: "a@b.c" }`,
	}}}

	tests := []struct {
		name       string
		in         error
		wantCode   int
		wantErrors map[string]any
	}{
		{
			name:       "memory store duplicate",
			in:         docstore.DuplicateKey("people", "email", "a@b.c"),
			wantCode:   409,
			wantErrors: map[string]any{"email": "a@b.c"},
		},
		{
			name:       "null duplicate",
			in:         docstore.DuplicateKey("people", "email", nil),
			wantCode:   409,
			wantErrors: map[string]any{"email": nil},
		},
		{
			name:       "mongo duplicate",
			in:         mongoDup,
			wantCode:   409,
			wantErrors: map[string]any{"email": "a@b.c"},
		},
		{
			name: "postgres duplicate",
			in: &pgconn.PgError{
				Code:   "23505",
				Detail: "Key ((doc ->> 'email'::text))=(a@b.c) already exists.",
			},
			wantCode:   409,
			wantErrors: map[string]any{"email": "a@b.c"},
		},
		{
			name:     "postgres bad input",
			in:       &pgconn.PgError{Code: "22P02", Message: "invalid input syntax"},
			wantCode: 400,
		},
		{
			name:     "postgres other",
			in:       &pgconn.PgError{Code: "53300", Message: "too many connections"},
			wantCode: 500,
		},
		{
			name:       "validation",
			in:         validation,
			wantCode:   400,
			wantErrors: map[string]any{"name": "Path `name` is required."},
		},
		{
			name:     "cast",
			in:       docstore.NewError(docstore.CastError, "Cast to Number failed"),
			wantCode: 400,
		},
		{
			name:     "overwrite model",
			in:       docstore.NewError(docstore.OverwriteModelError, "Cannot overwrite"),
			wantCode: 409,
		},
		{
			name:     "missing schema",
			in:       docstore.NewError(docstore.MissingSchemaError, "Schema hasn't been registered"),
			wantCode: 500,
		},
		{
			name:     "mongo server error",
			in:       mongo.CommandError{Code: 2, Message: "bad value"},
			wantCode: 500,
		},
		{
			name:     "catalog error kept",
			in:       fmt.Errorf("wrapped: %w", Forbidden("no")),
			wantCode: 403,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := Translate(tt.in)
			var he *Error
			if !errors.As(out, &he) {
				t.Fatalf("not a catalog error: %T %v", out, out)
			}
			if he.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", he.Code, tt.wantCode, he.Message)
			}
			if tt.wantErrors != nil {
				if len(he.Errors) != len(tt.wantErrors) {
					t.Fatalf("errors = %v, want %v", he.Errors, tt.wantErrors)
				}
				for k, v := range tt.wantErrors {
					if got, ok := he.Errors[k]; !ok || got != v {
						t.Fatalf("errors[%s] = %v, want %v", k, got, v)
					}
				}
			}
			if tt.wantCode == 409 && tt.wantErrors != nil {
				data, ok := he.Data.(map[string]any)
				if !ok || len(data) != len(tt.wantErrors) {
					t.Fatalf("data = %#v, want %v", he.Data, tt.wantErrors)
				}
				for k, v := range tt.wantErrors {
					if got, ok := data[k]; !ok || got != v {
						t.Fatalf("data[%s] = %v, want %v", k, got, v)
					}
				}
			}
		})
	}
}

func TestTranslatePassesUnknownErrorsThrough(t *testing.T) {
	in := errors.New("socket closed")
	if out := Translate(in); out != in {
		t.Fatalf("unknown error changed: %v", out)
	}
	if Translate(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	unnamed := docstore.NewError("SomethingElse", "odd")
	if out := Translate(unnamed); out != error(unnamed) {
		t.Fatalf("unknown store error changed: %v", out)
	}
}

func TestTranslateKeepsCause(t *testing.T) {
	pe := &pgconn.PgError{Code: "23505"}
	out := Translate(pe)
	var got *pgconn.PgError
	if !errors.As(out, &got) || got != pe {
		t.Fatalf("cause lost: %v", out)
	}
}

func TestDuplicateKeyMessage(t *testing.T) {
	out := Translate(docstore.DuplicateKey("people", "email", "a@b.c"))
	if out.Error() != "email: a@b.c already exists." {
		t.Fatalf("message = %q", out.Error())
	}
}
