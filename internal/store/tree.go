package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Normalize converts any JSON-marshalable value into its generic form
// (map[string]any, []any, string, json.Number, bool or nil), the same shape
// Get returns.
func Normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return decodeJSON(data)
}

// Decode copies a generic value into out using JSON field mapping.
func Decode(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// flatten encodes value as a set of leaves keyed by their full path below
// base. Each leaf holds a JSON scalar.
func flatten(base string, value any) (map[string][]byte, error) {
	generic, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	leaves := make(map[string][]byte)
	if err := flattenInto(leaves, base, generic); err != nil {
		return nil, err
	}
	return leaves, nil
}

func flattenInto(leaves map[string][]byte, path string, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range t {
			if err := ValidateKey(k); err != nil {
				return err
			}
			if err := flattenInto(leaves, path+"/"+k, child); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range t {
			if err := flattenInto(leaves, path+"/"+strconv.Itoa(i), child); err != nil {
				return err
			}
		}
		return nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		leaves[path] = data
		return nil
	}
}

// assemble rebuilds the subtree at base from its leaves. It returns nil
// when there are no leaves.
func assemble(base string, leaves map[string][]byte) (any, error) {
	if len(leaves) == 0 {
		return nil, nil
	}
	if data, ok := leaves[base]; ok {
		return decodeJSON(data)
	}

	root := make(map[string]any)
	for leaf, data := range leaves {
		rel := strings.TrimPrefix(leaf, base+"/")
		if rel == leaf {
			continue
		}
		v, err := decodeJSON(data)
		if err != nil {
			return nil, fmt.Errorf("leaf %s: %w", leaf, err)
		}

		segs := strings.Split(rel, "/")
		node := root
		for _, s := range segs[:len(segs)-1] {
			child, ok := node[s].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[s] = child
			}
			node = child
		}
		node[segs[len(segs)-1]] = v
	}
	return root, nil
}
