package httperr

import (
	"errors"
	"fmt"
	"regexp"

	"DocrestAPI/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	dupKeyField = regexp.MustCompile(`(?i)_?([a-zA-Z]*)_?\d?\s*dup key`)
	dupKeyValue = regexp.MustCompile(`(?i)\s*dup key:\s*\{\s*(?:[\w.$]+\s*)?:\s*"?(.*?)"?\s*\}`)

	pgKeyDetail = regexp.MustCompile(`Key \((.*)\)=\((.*)\) already exists`)
	pgKeyExpr   = regexp.MustCompile(`'([^']+)'`)
)

// Translate maps store failures onto the catalog. Errors it does not
// recognise are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) {
		return he
	}

	var de *docstore.Error
	if errors.As(err, &de) {
		if de.Code == docstore.CodeDuplicateKey || de.Code == docstore.CodeDuplicateKeyLegacy {
			return duplicateKey(de.Message, err)
		}
		if out := byName(de.Name, de.Message, err); out != nil {
			if len(de.Errors) > 0 {
				out.Errors = make(map[string]any, len(de.Errors))
				for path, fe := range de.Errors {
					out.Errors[path] = fe.Message
				}
			}
			return out
		}
		return err
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorCode(docstore.CodeDuplicateKey) || se.HasErrorCode(docstore.CodeDuplicateKeyLegacy) {
			return duplicateKey(se.Error(), err)
		}
		return GeneralError(se.Error(), WithCause(err))
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return translatePg(pe, err)
	}
	return err
}

func byName(name, message string, cause error) *Error {
	switch name {
	case docstore.ValidationError, docstore.ValidatorError, docstore.CastError,
		docstore.VersionError, docstore.StrictPopulateError:
		return BadRequest(message, WithCause(cause))
	case docstore.OverwriteModelError:
		return Conflict(message, WithCause(cause))
	case docstore.MissingSchemaError, docstore.DivergentArrayError, docstore.MongoError:
		return GeneralError(message, WithCause(cause))
	}
	return nil
}

// duplicateKey parses field and value out of a MongoDB duplicate key
// message. The textual sentinels null and undefined become nil.
func duplicateKey(message string, cause error) *Error {
	key := "path"
	if m := dupKeyField.FindStringSubmatch(message); m != nil {
		key = m[1]
	}
	shown := "value"
	if m := dupKeyValue.FindStringSubmatch(message); m != nil {
		shown = m[1]
	}
	return conflictOn(key, shown, cause)
}

func conflictOn(key, shown string, cause error) *Error {
	var value any = shown
	if shown == "null" || shown == "undefined" {
		value = nil
	}
	// пара поле/значение уходит и в errors, и в data
	return Conflict(fmt.Sprintf("%s: %s already exists.", key, shown),
		WithErrors(map[string]any{key: value}),
		WithData(map[string]any{key: value}),
		WithCause(cause))
}

func translatePg(pe *pgconn.PgError, cause error) error {
	switch pe.Code {
	case "23505":
		key, shown := "path", "value"
		if m := pgKeyDetail.FindStringSubmatch(pe.Detail); m != nil {
			key, shown = m[1], m[2]
			if em := pgKeyExpr.FindStringSubmatch(key); em != nil {
				key = em[1]
			}
			if key == "id" {
				key = docstore.IDField
			}
		}
		return conflictOn(key, shown, cause)
	case "22P02", "22003", "22007", "22008", "23502", "23514", "40001":
		return BadRequest(pe.Message, WithCause(cause))
	}
	return GeneralError(pe.Message, WithCause(cause))
}
