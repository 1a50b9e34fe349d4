package mongostore

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"DocrestAPI/internal/docstore"
)

// toBSON copies doc for the driver. Hex strings under _id become ObjectIDs,
// including inside operator expressions such as {_id: {$in: [...]}}.
func toBSON(doc docstore.Document) bson.M {
	if doc == nil {
		return bson.M{}
	}
	return castIDs(doc, false).(bson.M)
}

func castIDs(v any, underID bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(bson.M, len(t))
		for k, val := range t {
			switch {
			case k == docstore.IDField:
				out[k] = castIDs(val, true)
			case docstore.IsOperatorKey(k):
				out[k] = castIDs(val, underID)
			default:
				out[k] = castIDs(val, false)
			}
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, val := range t {
			out[i] = castIDs(val, underID)
		}
		return out
	case string:
		if underID {
			if oid, err := primitive.ObjectIDFromHex(t); err == nil {
				return oid
			}
		}
	}
	return v
}

// fromBSON converts driver values into plain documents: ObjectIDs become hex
// strings and dates become time.Time.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Binary:
		return t.Data
	case primitive.Decimal128:
		return t.String()
	case int32:
		return int64(t)
	}
	return v
}
