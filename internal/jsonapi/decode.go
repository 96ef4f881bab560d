package jsonapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
)

var errTrailingData = errors.New("unexpected data after the top-level value")

func unmarshal(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// splitBrackets splits "filter[a][b][]" into ("filter", ["a", "b", ""]).
func splitBrackets(key string) (family string, path []string, ok bool) {
	i := strings.IndexByte(key, '[')
	if i < 0 {
		return key, nil, true
	}
	family, rest := key[:i], key[i:]
	for rest != "" {
		if rest[0] != '[' {
			return family, nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return family, nil, false
		}
		seg := rest[1:end]
		if strings.ContainsAny(seg, "[") {
			return family, nil, false
		}
		path = append(path, seg)
		rest = rest[end+1:]
	}
	return family, path, true
}

// decodeBrackets nests every "family[...]" parameter into a map. A trailing
// "[]" collects values into a list; repeated plain keys become []string.
// Keys that cannot be nested are returned in bad.
func decodeBrackets(values url.Values, family string) (out map[string]any, bad []string) {
	out = make(map[string]any)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fam, path, ok := splitBrackets(key)
		if fam != family {
			continue
		}
		if !ok || len(path) == 0 || !insert(out, path, values[key]) {
			bad = append(bad, key)
		}
	}
	return out, bad
}

func insert(m map[string]any, path []string, vals []string) bool {
	head := path[0]
	if head == "" {
		return false
	}
	if len(path) == 1 {
		if _, exists := m[head]; exists {
			return false
		}
		if len(vals) == 1 {
			m[head] = vals[0]
		} else {
			m[head] = append([]string(nil), vals...)
		}
		return true
	}
	if len(path) == 2 && path[1] == "" {
		list, _ := m[head].([]any)
		if _, exists := m[head]; exists && list == nil {
			return false
		}
		for _, v := range vals {
			list = append(list, v)
		}
		m[head] = list
		return true
	}
	child, exists := m[head]
	if !exists {
		child = make(map[string]any)
		m[head] = child
	}
	childMap, isMap := child.(map[string]any)
	if !isMap {
		return false
	}
	return insert(childMap, path[1:], vals)
}
