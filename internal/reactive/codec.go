package reactive

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Persisted values mark Go maps with a type tag so that hydration can tell
// them apart from plain objects:
//
//	{"dataType":"Map","value":[[key, value], ...]}
//
// Maps are tagged wherever they nest, including struct fields. Structs with
// embedded fields or ",string" options, and types with their own JSON or
// text marshaling, are encoded by encoding/json as a whole.
const mapTag = "Map"

type taggedMap struct {
	DataType string               `json:"dataType"`
	Value    [][2]json.RawMessage `json:"value"`
}

// encode converts v into its persisted JSON form.
func encode(v any) (json.RawMessage, error) {
	return encodeValue(reflect.ValueOf(v))
}

func encodeValue(rv reflect.Value) (json.RawMessage, error) {
	if !rv.IsValid() {
		return json.RawMessage("null"), nil
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return json.RawMessage("null"), nil
		}
		if rv.Type().Implements(marshalerType) {
			break
		}
		return encodeValue(rv.Elem())
	case reflect.Map:
		if rv.IsNil() || rv.Type().Implements(marshalerType) {
			break
		}
		return encodeMap(rv)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 || rv.Type().Implements(marshalerType) {
			break
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			break
		}
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			elem, err := encodeValue(rv.Index(i))
			if err != nil {
				return nil, err
			}
			buf.Write(elem)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case reflect.Struct:
		if fields, ok := structFields(rv.Type()); ok {
			return encodeStruct(rv, fields)
		}
	}
	b, err := json.Marshal(rv.Interface())
	if err != nil {
		return nil, err
	}
	return b, nil
}

var (
	marshalerType     = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

type structField struct {
	index     int
	name      string
	omitEmpty bool
}

// structFields lists the exported fields of t the way encoding/json names
// them. ok is false when t needs encoding/json's full field rules.
func structFields(t reflect.Type) ([]structField, bool) {
	if t.Implements(marshalerType) || t.Implements(textMarshalerType) ||
		reflect.PointerTo(t).Implements(marshalerType) || reflect.PointerTo(t).Implements(textMarshalerType) {
		return nil, false
	}
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			return nil, false
		}
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		sf := structField{index: i, name: name}
		for _, opt := range strings.Split(opts, ",") {
			switch opt {
			case "omitempty":
				sf.omitEmpty = true
			case "string":
				return nil, false
			}
		}
		fields = append(fields, sf)
	}
	return fields, true
}

func encodeStruct(rv reflect.Value, fields []structField) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range fields {
		fv := rv.Field(f.index)
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		name, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		val, err := encodeValue(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.name, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// isEmptyValue matches the omitempty rule of encoding/json.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

func encodeMap(rv reflect.Value) (json.RawMessage, error) {
	type pair struct {
		sortKey string
		kv      [2]json.RawMessage
	}
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := json.Marshal(iter.Key().Interface())
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		v, err := encodeValue(iter.Value())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{sortKey: string(k), kv: [2]json.RawMessage{k, v}})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].sortKey < pairs[j].sortKey })

	tm := taggedMap{DataType: mapTag, Value: make([][2]json.RawMessage, len(pairs))}
	for i, p := range pairs {
		tm.Value[i] = p.kv
	}
	return json.Marshal(tm)
}

// decode parses a persisted value, reviving tagged maps as map[string]any.
// Numbers decode as json.Number so large integers survive unchanged.
func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return revive(v), nil
}

func revive(v any) any {
	switch t := v.(type) {
	case []any:
		for i := range t {
			t[i] = revive(t[i])
		}
		return t
	case map[string]any:
		if m, ok := reviveMap(t); ok {
			return m
		}
		for k := range t {
			t[k] = revive(t[k])
		}
		return t
	default:
		return v
	}
}

func reviveMap(obj map[string]any) (map[string]any, bool) {
	if len(obj) != 2 || obj["dataType"] != mapTag {
		return nil, false
	}
	pairs, ok := obj["value"].([]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		kv, ok := p.([]any)
		if !ok || len(kv) != 2 {
			return nil, false
		}
		var key string
		switch k := kv[0].(type) {
		case string:
			key = k
		case json.Number:
			key = k.String()
		default:
			key = fmt.Sprint(k)
		}
		out[key] = revive(kv[1])
	}
	return out, true
}

// normalize returns the value a reader observes after v is stored and
// hydrated again.
func normalize(v any) (any, json.RawMessage, error) {
	raw, err := encode(v)
	if err != nil {
		return nil, nil, err
	}
	out, err := decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return out, raw, nil
}
