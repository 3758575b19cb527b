// Package envelope extracts a human-readable reply from a response value
// whose schema is not known in advance.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// DefaultKeys is the mapping key priority. The first key holding a
// non-empty value wins; values of different keys are never merged.
var DefaultKeys = []string{"output", "response", "result", "results", "content", "messages", "text"}

// DefaultMaxDepth bounds recursion through opaque objects.
const DefaultMaxDepth = 2

const partSeparator = "\n\n"

var (
	attributeNames = []string{"Output", "Response"}
	nestedKeys     = []string{"text", "content"}
	partKeys       = []string{"content", "text"}
)

// Mapper is implemented by objects that can convert themselves to a map.
type Mapper interface {
	ToMap() map[string]any
}

// Decoder is immutable after construction and safe for concurrent use.
type Decoder struct {
	keys      []string
	maxDepth  int
	onDegrade func(v any)
}

type Option func(*Decoder)

// WithKeys replaces the mapping key priority list.
func WithKeys(keys ...string) Option {
	return func(d *Decoder) {
		if len(keys) > 0 {
			d.keys = append([]string(nil), keys...)
		}
	}
}

// WithMaxDepth sets the recursion limit for opaque objects.
func WithMaxDepth(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithDegradeHook is called whenever decoding falls back to the generic
// string form.
func WithDegradeHook(fn func(v any)) Option {
	return func(d *Decoder) { d.onDegrade = fn }
}

func New(opts ...Option) *Decoder {
	d := &Decoder{
		keys:     DefaultKeys,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Keys returns a copy of the key priority list.
func (d *Decoder) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Decode always returns a string. It never panics and performs no I/O.
func (d *Decoder) Decode(v any) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("<%T>", v)
		}
	}()

	if s, ok := d.decode(v, 0); ok {
		return s
	}
	if d.onDegrade != nil {
		d.onDegrade(v)
	}
	return Stringify(v)
}

func (d *Decoder) decode(v any, depth int) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.RawMessage:
		return d.decodeBytes(t, depth)
	case []byte:
		return d.decodeBytes(t, depth)
	}

	if m, ok := asMap(v); ok {
		return d.decodeMap(m, depth)
	}
	if seq, ok := asSlice(v); ok {
		return d.joinParts(seq)
	}
	return d.decodeObject(v, depth)
}

func (d *Decoder) decodeBytes(b []byte, depth int) (string, bool) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return "", false
	}
	if !json.Valid(trimmed) {
		return string(b), true
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return string(b), true
	}
	return d.decode(parsed, depth)
}

func (d *Decoder) decodeMap(m map[string]any, depth int) (string, bool) {
	for _, key := range d.keys {
		val, ok := m[key]
		if !ok || isEmpty(val) {
			continue
		}
		return d.extract(val, depth)
	}
	return "", false
}

// extract turns the selected value into text.
func (d *Decoder) extract(val any, depth int) (string, bool) {
	if s, ok := val.(string); ok {
		return s, true
	}
	if m, ok := asMap(val); ok {
		// One level only: malformed or hostile nesting is not followed.
		for _, key := range nestedKeys {
			if s, ok := m[key].(string); ok && s != "" {
				return s, true
			}
		}
		return "", false
	}
	if seq, ok := asSlice(val); ok {
		return d.joinParts(seq)
	}
	if isObject(val) {
		return d.decodeObject(val, depth)
	}
	return fmt.Sprint(val), true
}

// joinParts decodes each element on its own and joins the non-empty ones.
func (d *Decoder) joinParts(seq []any) (string, bool) {
	parts := make([]string, 0, len(seq))
	for _, el := range seq {
		if s := partText(el); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, partSeparator), true
}

func partText(el any) string {
	if m, ok := asMap(el); ok {
		for _, key := range partKeys {
			val, ok := m[key]
			if !ok || isEmpty(val) {
				continue
			}
			if s, ok := val.(string); ok {
				return s
			}
			return Stringify(val)
		}
		return ""
	}
	return Stringify(el)
}

// decodeObject probes attribute-like access on values that are not maps.
func (d *Decoder) decodeObject(v any, depth int) (string, bool) {
	if depth >= d.maxDepth {
		return "", false
	}

	for _, name := range attributeNames {
		if attr, ok := attribute(v, name); ok && !isEmpty(attr) {
			if s, ok := d.decode(attr, depth+1); ok {
				return s, true
			}
		}
	}

	if m, ok := v.(Mapper); ok {
		if s, ok := d.decode(m.ToMap(), depth+1); ok {
			return s, true
		}
	}

	if converted, ok := viaJSON(v); ok {
		return d.decode(converted, depth+1)
	}
	return "", false
}

// attribute looks up an exported field (by name or json tag) or a
// zero-argument method with the given name.
func attribute(v any, name string) (any, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}

	if method := rv.MethodByName(name); method.IsValid() {
		mt := method.Type()
		if mt.NumIn() == 0 && mt.NumOut() >= 1 {
			out := method.Call(nil)
			if len(out) == 2 && out[1].Kind() == reflect.Interface && !out[1].IsNil() {
				if _, isErr := out[1].Interface().(error); isErr {
					return nil, false
				}
			}
			return out[0].Interface(), true
		}
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := strings.Split(field.Tag.Get("json"), ",")[0]
		if field.Name == name || strings.EqualFold(tag, name) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func viaJSON(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	switch out.(type) {
	case map[string]any, []any, string:
		return out, true
	default:
		return nil, false
	}
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isObject(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Pointer, reflect.Interface:
		return true
	default:
		return false
	}
}

// isEmpty treats nil, "", and empty maps/slices as absent.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Stringify is the generic string form used when nothing better is found.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.RawMessage:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%T>", v)
		}
		return string(raw)
	default:
		return fmt.Sprint(v)
	}
}
