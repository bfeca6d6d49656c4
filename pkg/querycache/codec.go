package querycache

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// Codec turns opaque keys and values into the bytes stored in a grid map.
type Codec interface {
	// EncodeKey must map equal keys to equal bytes and distinct keys to distinct bytes, in every
	// process sharing the grid.
	EncodeKey(key any) ([]byte, error)
	EncodeValue(value any) ([]byte, error)
	DecodeValue(b []byte) (any, error)
}

// Register records a concrete value type so it can be stored and read back through the
// default codec. Builtin types need no registration.
func Register(value any) {
	gob.Register(value)
}

// DefaultCodec encodes a key as the import-path qualified types found in it followed by its
// sorted JSON, or by its MarshalBinary output when the key implements encoding.BinaryMarshaler.
// Keys JSON cannot represent exactly fail with ErrEncoding: structs with unexported fields,
// strings that are not valid UTF-8, and struct fields whose names collide once embedded structs
// are flattened. Values are gob encoded, which keeps their dynamic type across the round trip.
var DefaultCodec Codec = defaultCodec{}

const maxKeyDepth = 64

var (
	// json tags are ignored so that renamed or "-" fields cannot merge keys
	keyJSON = jsoniter.Config{
		SortMapKeys: true,
		EscapeHTML:  true,
		TagKey:      "querycachekey",
	}.Froze()

	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

type defaultCodec struct{}

type envelope struct {
	V any
}

func (defaultCodec) EncodeKey(key any) ([]byte, error) {
	if m, ok := key.(encoding.BinaryMarshaler); ok {
		b, err := m.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("%w: key %T: %w", ErrEncoding, key, err)
		}
		return appendKey(nil, []string{typeTag(reflect.TypeOf(key))}, b), nil
	}

	w := &keyWalker{}
	if err := w.walk(reflect.ValueOf(&key).Elem(), 0); err != nil {
		return nil, fmt.Errorf("%w: key %T: %w", ErrEncoding, key, err)
	}

	b, err := keyJSON.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("%w: key %T: %w", ErrEncoding, key, err)
	}
	return appendKey(nil, w.tags, b), nil
}

// appendKey writes the number of type tags, each tag with its length, then the payload.
func appendKey(buf []byte, tags []string, payload []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(tags)))
	for _, tag := range tags {
		buf = binary.AppendUvarint(buf, uint64(len(tag)))
		buf = append(buf, tag...)
	}
	return append(buf, payload...)
}

// keyWalker checks that a key survives JSON encoding unchanged and records the dynamic type
// of every interface it holds, in a deterministic order.
type keyWalker struct {
	tags []string
}

func (w *keyWalker) walk(v reflect.Value, depth int) error {
	if depth > maxKeyDepth {
		return errors.New("key is nested too deeply")
	}

	t := v.Type()
	if t.Kind() != reflect.Interface && (t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType)) {
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return fmt.Errorf("string %q is not valid UTF-8", v.String())
		}

	case reflect.Interface:
		if v.IsNil() {
			w.tags = append(w.tags, "nil")
			return nil
		}
		w.tags = append(w.tags, typeTag(v.Elem().Type()))
		return w.walk(v.Elem(), depth+1)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return w.walk(v.Elem(), depth+1)

	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := w.walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}

	case reflect.Map:
		keys, err := sortedMapKeys(v)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := w.walk(k, depth+1); err != nil {
				return err
			}
			if err := w.walk(v.MapIndex(k), depth+1); err != nil {
				return err
			}
		}

	case reflect.Struct:
		if err := checkFields(t, map[string]struct{}{}, depth); err != nil {
			return err
		}
		for i := 0; i < v.NumField(); i++ {
			if err := w.walk(v.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkFields rejects struct types JSON would encode lossily: unexported fields are dropped and
// fields promoted from embedded structs shadow each other by name.
func checkFields(t reflect.Type, names map[string]struct{}, depth int) error {
	if depth > maxKeyDepth {
		return errors.New("key is nested too deeply")
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			return fmt.Errorf("field %s of %s is unexported", f.Name, typeTag(t))
		}

		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && !ft.Implements(jsonMarshalerType) && !ft.Implements(textMarshalerType) {
				if err := checkFields(ft, names, depth+1); err != nil {
					return err
				}
				continue
			}
		}

		if _, ok := names[f.Name]; ok {
			return fmt.Errorf("field %s of %s is shadowed by an embedded field", f.Name, typeTag(t))
		}
		names[f.Name] = struct{}{}
	}
	return nil
}

// sortedMapKeys orders keys the way JSON object keys are written. Keys that would share a JSON
// name are rejected.
func sortedMapKeys(v reflect.Value) ([]reflect.Value, error) {
	keys := v.MapKeys()
	names := make(map[string]reflect.Value, len(keys))

	for _, k := range keys {
		var name string
		switch {
		case k.Kind() == reflect.String:
			name = k.String()
		case k.Type().Implements(textMarshalerType):
			b, err := k.Interface().(encoding.TextMarshaler).MarshalText()
			if err != nil {
				return nil, err
			}
			name = string(b)
		case k.CanInt():
			name = strconv.FormatInt(k.Int(), 10)
		case k.CanUint():
			name = strconv.FormatUint(k.Uint(), 10)
		default:
			return nil, fmt.Errorf("unsupported map key type %s", typeTag(k.Type()))
		}

		if _, ok := names[name]; ok {
			return nil, fmt.Errorf("map keys collide on %q", name)
		}
		names[name] = k
	}

	sorted := make([]reflect.Value, 0, len(keys))
	for _, name := range slices.Sorted(maps.Keys(names)) {
		sorted = append(sorted, names[name])
	}
	return sorted, nil
}

// typeTag names t by import path rather than package name, so same-named types of different
// packages differ.
func typeTag(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}

	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeTag(t.Elem())
	case reflect.Slice:
		return "[]" + typeTag(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + typeTag(t.Elem())
	case reflect.Map:
		return "map[" + typeTag(t.Key()) + "]" + typeTag(t.Elem())
	case reflect.Struct:
		var sb strings.Builder
		sb.WriteString("struct{")
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(f.Name)
			sb.WriteByte(' ')
			sb.WriteString(typeTag(f.Type))
		}
		sb.WriteString("}")
		return sb.String()
	default:
		return t.String()
	}
}

func (defaultCodec) EncodeValue(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{V: value}); err != nil {
		return nil, fmt.Errorf("%w: value %T: %w", ErrEncoding, value, err)
	}
	return buf.Bytes(), nil
}

func (defaultCodec) DecodeValue(b []byte) (any, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return env.V, nil
}
