package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spektr-org/vizon/ai"
)

// ============================================================================
// RECORD DECODING — AI text → RawRecordSet
// ============================================================================
// Models are asked for a JSON array of objects. They also return
// {"rows": [...]}, a single object, arrays of arrays, or wrap any of it in a
// markdown fence. Object key order is the column order, so decoding walks
// tokens instead of unmarshalling into maps.
// ============================================================================

// wrapperKeys are tried, in order, when the top level is an object.
var wrapperKeys = []string{"rows", "data", "records", "items", "table"}

// DecodeRecords parses model output into a RawRecordSet. An empty array is
// valid and yields zero rows.
func DecodeRecords(text string) (*RawRecordSet, error) {
	text = ai.StripCodeFence(text)
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON in model output", ai.ErrMalformed)
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformed, err)
	}

	switch top := v.(type) {
	case []any:
		return fromArray(top), nil
	case *orderedObject:
		for _, k := range wrapperKeys {
			if arr, ok := top.lookup(k).([]any); ok {
				return fromArray(arr), nil
			}
		}
		// first array-valued field, otherwise the object is one record
		for _, k := range top.keys {
			if arr, ok := top.vals[k].([]any); ok {
				return fromArray(arr), nil
			}
		}
		return fromArray([]any{top}), nil
	}
	return nil, fmt.Errorf("%w: unexpected top-level JSON value", ai.ErrMalformed)
}

func fromArray(items []any) *RawRecordSet {
	rs := &RawRecordSet{Rows: [][]any{}}
	if len(items) == 0 {
		return rs
	}

	if _, ok := items[0].([]any); ok {
		return fromRowArrays(items)
	}

	// Header is the union of keys in first-seen order; absent keys stay nil.
	index := make(map[string]int)
	for _, it := range items {
		obj, ok := it.(*orderedObject)
		if !ok {
			continue
		}
		for _, k := range obj.keys {
			if _, seen := index[k]; !seen {
				index[k] = len(rs.Header)
				rs.Header = append(rs.Header, k)
			}
		}
	}

	for _, it := range items {
		row := make([]any, len(rs.Header))
		switch v := it.(type) {
		case *orderedObject:
			for _, k := range v.keys {
				row[index[k]] = cellValue(v.vals[k])
			}
		default:
			if len(row) == 0 {
				row = []any{cellValue(v)}
			} else {
				row[0] = cellValue(v)
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs
}

// fromRowArrays handles [[...], [...]]. The first row is a header when every
// cell in it is a non-numeric string.
func fromRowArrays(items []any) *RawRecordSet {
	rs := &RawRecordSet{Rows: [][]any{}}
	for i, it := range items {
		arr, ok := it.([]any)
		if !ok {
			arr = []any{it}
		}
		if i == 0 && len(items) > 1 && looksLikeHeader(arr) {
			for _, c := range arr {
				rs.Header = append(rs.Header, c.(string))
			}
			continue
		}
		row := make([]any, len(arr))
		for j, c := range arr {
			row[j] = cellValue(c)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs
}

func looksLikeHeader(arr []any) bool {
	if len(arr) == 0 {
		return false
	}
	for _, c := range arr {
		s, ok := c.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return false
		}
		if _, err := json.Number(strings.TrimSpace(s)).Float64(); err == nil {
			return false
		}
	}
	return true
}

// cellValue flattens nested structures to compact JSON text.
func cellValue(v any) any {
	switch x := v.(type) {
	case *orderedObject, []any:
		var b strings.Builder
		writeJSON(&b, x)
		return b.String()
	default:
		return x
	}
}

// ── ordered JSON ────────────────────────────────────────────

type orderedObject struct {
	keys []string
	vals map[string]any
}

func (o *orderedObject) lookup(key string) any {
	for _, k := range o.keys {
		if strings.EqualFold(k, key) {
			return o.vals[k]
		}
	}
	return nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &orderedObject{vals: make(map[string]any)}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, errors.New("object key is not a string")
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.vals[key]; !dup {
				obj.keys = append(obj.keys, key)
			}
			obj.vals[key] = val
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

func writeJSON(b *strings.Builder, v any) {
	switch x := v.(type) {
	case *orderedObject:
		b.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			writeJSON(b, x.vals[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, e)
		}
		b.WriteByte(']')
	default:
		vb, _ := json.Marshal(x)
		b.Write(vb)
	}
}
