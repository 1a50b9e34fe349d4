package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// type ranks follow the MongoDB BSON comparison order.
func typeRank(v any) int {
	if v == nil {
		return 1
	}
	if _, ok := ToFloat(v); ok {
		return 2
	}
	switch v.(type) {
	case string:
		return 3
	case map[string]any:
		return 4
	case []any:
		return 5
	case []byte:
		return 6
	case bool:
		return 8
	case time.Time:
		return 9
	}
	return 7
}

// Compare orders two values. Values of different types order by type rank.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case 1:
		return 0
	case 2:
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		return compareDocs(a.(map[string]any), b.(map[string]any))
	case 5:
		la, lb := a.([]any), b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(la), len(lb))
	case 6:
		return strings.Compare(string(a.([]byte)), string(b.([]byte)))
	case 8:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 9:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareDocs(a, b map[string]any) int {
	ka, kb := sortedKeys(a), sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := Compare(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(ka), len(kb))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports value equality with numeric values compared by magnitude.
func Equal(a, b any) bool {
	if typeRank(a) != typeRank(b) {
		return false
	}
	switch typeRank(a) {
	case 1, 2, 3, 4, 5, 6, 8, 9:
		return Compare(a, b) == 0
	}
	return reflect.DeepEqual(a, b)
}

// SortDocuments orders docs in place by the given fields. Ties keep their
// original order.
func SortDocuments(docs []Document, fields []SortField, collation Document) {
	if len(fields) == 0 {
		return
	}
	m := NewMatcher(collation)
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			vi, _ := Lookup(docs[i], f.Field)
			vj, _ := Lookup(docs[j], f.Field)
			c := Compare(m.foldValue(vi), m.foldValue(vj))
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
