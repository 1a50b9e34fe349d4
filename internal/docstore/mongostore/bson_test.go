package mongostore

import (
	"testing"
	"time"

	"DocrestAPI/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToBSONCastsObjectIDsUnderID(t *testing.T) {
	oid := primitive.NewObjectID()
	filter := docstore.Document{
		"_id":   map[string]any{"$in": []any{oid.Hex(), "plain-key"}},
		"owner": oid.Hex(),
		"$and":  []any{map[string]any{"_id": oid.Hex()}},
	}

	got := toBSON(filter)

	in := got["_id"].(bson.M)["$in"].(bson.A)
	assert.Equal(t, oid, in[0])
	assert.Equal(t, "plain-key", in[1])
	assert.Equal(t, oid.Hex(), got["owner"], "only _id paths are cast")
	nested := got["$and"].(bson.A)[0].(bson.M)
	assert.Equal(t, oid, nested["_id"])
}

func TestFromBSONNormalizesDriverValues(t *testing.T) {
	oid := primitive.NewObjectID()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	raw := bson.M{
		"_id":  oid,
		"at":   primitive.NewDateTimeFromTime(at),
		"n":    int32(4),
		"tags": bson.A{"a", int32(2)},
		"sub":  bson.D{{Key: "x", Value: oid}},
	}

	got, ok := fromBSON(raw).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, oid.Hex(), got["_id"])
	assert.True(t, at.Equal(got["at"].(time.Time)))
	assert.Equal(t, int64(4), got["n"])
	assert.Equal(t, []any{"a", int64(2)}, got["tags"])
	assert.Equal(t, map[string]any{"x": oid.Hex()}, got["sub"])
}

func TestOperatorsFoldsPlainKeysIntoSet(t *testing.T) {
	got := operators(docstore.Document{
		"name": "ann",
		"$set": map[string]any{"age": 3},
		"$inc": map[string]any{"visits": 1},
	})
	assert.Equal(t, docstore.Document{
		"$set": docstore.Document{"name": "ann", "age": 3},
		"$inc": map[string]any{"visits": 1},
	}, got)
}

func TestCollationOptions(t *testing.T) {
	assert.Nil(t, collation(nil))

	c := collation(docstore.Document{"locale": "en", "strength": 2})
	require.NotNil(t, c)
	assert.Equal(t, "en", c.Locale)
	assert.Equal(t, 2, c.Strength)
}

func TestSortSpec(t *testing.T) {
	got := sortSpec([]docstore.SortField{{Field: "age", Desc: true}, {Field: "name"}})
	assert.Equal(t, bson.D{{Key: "age", Value: -1}, {Key: "name", Value: 1}}, got)
}
