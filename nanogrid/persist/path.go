package persist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// getPath reads a dotted path from nested maps
func getPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes a dotted path, replacing non-map intermediates
func setPath(m map[string]any, path string, value any) {
	keys := strings.Split(path, ".")
	cur := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// unsetPath removes the entry at a dotted path. Parents left empty stay.
func unsetPath(m map[string]any, path string) bool {
	keys := strings.Split(path, ".")
	cur := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	last := keys[len(keys)-1]
	if _, ok := cur[last]; !ok {
		return false
	}
	delete(cur, last)
	return true
}

// toPlain converts v to its JSON data form: maps, slices, strings, float64,
// bool and nil. The result shares nothing with v.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func plainMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	plain, err := toPlain(v)
	if err != nil {
		return nil, err
	}
	m, ok := plain.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("persisted state must be an object, got %T", v)
	}
	return m, nil
}

// decodeInto converts plain JSON data to T
func decodeInto[T any](v any) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}
