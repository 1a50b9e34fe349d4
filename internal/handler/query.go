package handler

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// maxArrayIndex: индексы больше этого остаются ключами объекта, а не
// позициями массива.
const maxArrayIndex = 20

// ParseQuery разбирает query string с квадратными скобками в дерево:
//
//	age[$gt]=3        -> {"age": {"$gt": "3"}}
//	$sort[name]=-1    -> {"$sort": {"name": "-1"}}
//	tags[$in][]=a     -> {"tags": {"$in": ["a"]}}
//	$or[0][name]=ann  -> {"$or": [{"name": "ann"}]}
//
// Значения остаются строками; типы приводит схема модели.
func ParseQuery(values url.Values) map[string]any {
	root := map[string]any{}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := splitKey(key)
		for _, v := range values[key] {
			assign(root, path, v)
		}
	}
	for k, v := range root {
		root[k] = compact(v)
	}
	return root
}

// splitKey: "a[b][]" -> ["a", "b", ""].
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}
	parts := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		parts = append(parts, rest[1:end])
		rest = rest[end+1:]
	}
	if len(rest) > 0 {
		return []string{key}
	}
	return parts
}

// appendList помечает элементы, добавленные через "[]" или повтор ключа.
type appendList []any

func assign(node map[string]any, path []string, value string) {
	head := path[0]
	if len(path) == 1 {
		switch cur := node[head].(type) {
		case nil:
			node[head] = value
		case appendList:
			node[head] = append(cur, value)
		case string:
			node[head] = appendList{cur, value}
		}
		return
	}
	if path[1] == "" && len(path) == 2 {
		list, _ := node[head].(appendList)
		if s, ok := node[head].(string); ok {
			list = appendList{s}
		}
		node[head] = append(list, value)
		return
	}
	child, ok := node[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[head] = child
	}
	next := path[1:]
	if next[0] == "" {
		next = append([]string{strconv.Itoa(len(child))}, next[1:]...)
	}
	assign(child, next, value)
}

// compact превращает объекты с числовыми ключами в массивы и снимает
// служебный тип appendList.
func compact(v any) any {
	switch t := v.(type) {
	case appendList:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = compact(item)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = compact(val)
		}
		if list, ok := asIndexed(t); ok {
			return list
		}
		return t
	}
	return v
}

func asIndexed(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	idx := make([]int, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 || n > maxArrayIndex {
			return nil, false
		}
		idx = append(idx, n)
	}
	sort.Ints(idx)
	out := make([]any, len(idx))
	for i, n := range idx {
		out[i] = m[strconv.Itoa(n)]
	}
	return out, true
}
