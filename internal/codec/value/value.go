// Package value implements the tagged value/type algebra shared by every
// parser and formatter in the codec layer: a single Value variant and a
// single Type variant, so that equality, canonical display, and JSON
// serialization stay centralized instead of being re-derived per parser.
package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key is an opaque, hashable 128-bit identifier for a logical row.
type Key = uuid.UUID

// Offset identifies a record's position within its source, used to
// derive a stand-in key when neither the transport nor the parser
// configuration supplies one.
type Offset []byte

// AutogenerateKey derives a Key deterministically from a record offset so
// that replaying the same offset always yields the same key. uuid.New
// would be replay-unstable; a namespaced SHA1 UUID is not.
func AutogenerateKey(offset Offset) Key {
	return uuid.NewSHA1(offsetNamespace, offset)
}

var offsetNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// keyFieldsNamespace is distinct from offsetNamespace: the two
// namespaces must never collide, since an autogenerated key and a
// key derived from declared key fields mean different things even if
// the underlying bytes happened to coincide.
var keyFieldsNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// KeyFromFields derives a Key deterministically from a row's declared
// key field values, the same namespaced-SHA1 approach as
// AutogenerateKey but over the row's own data rather than its source
// offset, so two records with equal key fields always collide to the
// same Key.
func KeyFromFields(values []Value) Key {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return uuid.NewSHA1(keyFieldsNamespace, []byte(strings.Join(parts, "\x1f")))
}

// Kind discriminates the Value union.
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindBytes
	KindPointer
	KindTuple
	KindList
	KindIntArray
	KindFloatArray
	KindDateTimeNaive
	KindDateTimeUTC
	KindDuration
	KindJSON
	KindError
	KindPyObjectWrapper
)

// Value is a tagged variant representing a single field value. Only the
// fields relevant to Kind are populated; the rest are zero.
type Value struct {
	kind      Kind
	i         int64
	f         float64
	b         bool
	s         string
	bytes     []byte
	pointer   Key
	tuple     []Value
	intArray  []int64
	floatArr  []float64
	dateTime  time.Time
	json      json.RawMessage
	pyObject  any
}

func (v Value) Kind() Kind { return v.kind }

// None is the absence of a value, distinct from any zero value of a
// concrete type.
var None = Value{kind: KindNone}

// Error is the sentinel representing a per-cell parse failure, preserved
// in the row when the host's ErrorRemovalLogic chooses to keep it rather
// than drop the row or escalate.
var Error = Value{kind: KindError}

func NewInt(i int64) Value     { return Value{kind: KindInt, i: i} }
func NewFloat(f float64) Value { return Value{kind: KindFloat, f: f} }
func NewBool(b bool) Value     { return Value{kind: KindBool, b: b} }
func NewString(s string) Value { return Value{kind: KindString, s: s} }
func NewBytes(b []byte) Value  { return Value{kind: KindBytes, bytes: append([]byte(nil), b...)} }
func NewPointer(k Key) Value   { return Value{kind: KindPointer, pointer: k} }
func NewTuple(items []Value) Value {
	return Value{kind: KindTuple, tuple: append([]Value(nil), items...)}
}
func NewList(items []Value) Value {
	return Value{kind: KindList, tuple: append([]Value(nil), items...)}
}
func NewIntArray(items []int64) Value {
	return Value{kind: KindIntArray, intArray: append([]int64(nil), items...)}
}
func NewFloatArray(items []float64) Value {
	return Value{kind: KindFloatArray, floatArr: append([]float64(nil), items...)}
}
func NewDateTimeNaive(t time.Time) Value {
	return Value{kind: KindDateTimeNaive, dateTime: t}
}
func NewDateTimeUTC(t time.Time) Value {
	return Value{kind: KindDateTimeUTC, dateTime: t.UTC()}
}
func NewDuration(nanoseconds int64) Value {
	return Value{kind: KindDuration, i: nanoseconds}
}
func NewJSON(raw json.RawMessage) Value {
	return Value{kind: KindJSON, json: append(json.RawMessage(nil), raw...)}
}
func NewPyObjectWrapper(obj any) Value {
	return Value{kind: KindPyObjectWrapper, pyObject: obj}
}

func (v Value) AsInt() (int64, bool)   { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)   { return v.b, v.kind == KindBool }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool) { return v.bytes, v.kind == KindBytes }
func (v Value) AsPointer() (Key, bool) { return v.pointer, v.kind == KindPointer }
func (v Value) AsTuple() ([]Value, bool) { return v.tuple, v.kind == KindTuple }
func (v Value) AsList() ([]Value, bool) { return v.tuple, v.kind == KindList }
func (v Value) AsIntArray() ([]int64, bool) { return v.intArray, v.kind == KindIntArray }
func (v Value) AsFloatArray() ([]float64, bool) { return v.floatArr, v.kind == KindFloatArray }
func (v Value) AsDateTime() (time.Time, bool) {
	return v.dateTime, v.kind == KindDateTimeNaive || v.kind == KindDateTimeUTC
}
func (v Value) AsDurationNanos() (int64, bool) { return v.i, v.kind == KindDuration }
func (v Value) AsJSON() (json.RawMessage, bool) { return v.json, v.kind == KindJSON }
func (v Value) AsPyObject() (any, bool)         { return v.pyObject, v.kind == KindPyObjectWrapper }

// Equal reports deep equality between two Values of the same Kind.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNone, KindError:
		return true
	case KindInt, KindDuration:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindBytes:
		return string(v.bytes) == string(other.bytes)
	case KindPointer:
		return v.pointer == other.pointer
	case KindTuple, KindList:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if !v.tuple[i].Equal(other.tuple[i]) {
				return false
			}
		}
		return true
	case KindIntArray:
		if len(v.intArray) != len(other.intArray) {
			return false
		}
		for i := range v.intArray {
			if v.intArray[i] != other.intArray[i] {
				return false
			}
		}
		return true
	case KindFloatArray:
		if len(v.floatArr) != len(other.floatArr) {
			return false
		}
		for i := range v.floatArr {
			if v.floatArr[i] != other.floatArr[i] {
				return false
			}
		}
		return true
	case KindDateTimeNaive, KindDateTimeUTC:
		return v.dateTime.Equal(other.dateTime)
	case KindJSON:
		return string(v.json) == string(other.json)
	default:
		return false
	}
}

// String renders the canonical display form used by the delimited
// formatter (spec §4.7): bare tokens with no quoting, matching the
// original's reliance on std::fmt::Display for every variant.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return ""
	case KindInt, KindDuration:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindBytes:
		return string(v.bytes)
	case KindPointer:
		return v.pointer.String()
	case KindTuple, KindList:
		parts := make([]string, len(v.tuple))
		for i, item := range v.tuple {
			parts[i] = item.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindIntArray:
		parts := make([]string, len(v.intArray))
		for i, item := range v.intArray {
			parts[i] = strconv.FormatInt(item, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindFloatArray:
		parts := make([]string, len(v.floatArr))
		for i, item := range v.floatArr {
			parts[i] = strconv.FormatFloat(item, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDateTimeNaive:
		return v.dateTime.Format("2006-01-02T15:04:05.999999999")
	case KindDateTimeUTC:
		return v.dateTime.Format("2006-01-02T15:04:05.999999999Z")
	case KindJSON:
		return string(v.json)
	case KindError:
		return "Error"
	case KindPyObjectWrapper:
		return fmt.Sprintf("%v", v.pyObject)
	default:
		return ""
	}
}

// ErrErrorValueNonJSONSerializable and ErrPyObjectWrapperNonJSONSerializable
// are returned by MarshalJSON for the two variants spec §4.10 names as
// non-serializable.
var (
	ErrErrorValueNonJSONSerializable        = errors.New("error value is not json-serializable")
	ErrPyObjectWrapperNonJSONSerializable    = errors.New("PyObjectWrapper type is not json-serializable")
)

// MarshalJSON implements the JSON-lines formatter's serialization policy
// (spec §4.10): Bytes/IntArray/FloatArray become arrays of numbers,
// temporal values their canonical string form, Duration its nanosecond
// count, and Error/PyObjectWrapper fail.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNone:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(v.i)
	case KindDuration:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	case KindPointer:
		return json.Marshal(v.pointer.String())
	case KindTuple:
		return json.Marshal(v.tuple)
	case KindBytes:
		ints := make([]int, len(v.bytes))
		for i, b := range v.bytes {
			ints[i] = int(b)
		}
		return json.Marshal(ints)
	case KindIntArray:
		return json.Marshal(v.intArray)
	case KindFloatArray:
		return json.Marshal(v.floatArr)
	case KindDateTimeNaive:
		return json.Marshal(v.dateTime.Format("2006-01-02T15:04:05.999999999"))
	case KindDateTimeUTC:
		return json.Marshal(v.dateTime.Format("2006-01-02T15:04:05.999999999Z"))
	case KindJSON:
		if len(v.json) == 0 {
			return []byte("null"), nil
		}
		return v.json, nil
	case KindError:
		return nil, ErrErrorValueNonJSONSerializable
	case KindPyObjectWrapper:
		return nil, ErrPyObjectWrapperNonJSONSerializable
	default:
		return []byte("null"), nil
	}
}

// TypeKind discriminates the Type union.
type TypeKind int

const (
	TypeKindAny TypeKind = iota
	TypeKindNone
	TypeKindInt
	TypeKindFloat
	TypeKindBool
	TypeKindString
	TypeKindBytes
	TypeKindPointer
	TypeKindTuple
	TypeKindList
	TypeKindIntArray
	TypeKindFloatArray
	TypeKindDateTimeNaive
	TypeKindDateTimeUTC
	TypeKindDuration
	TypeKindJSON
	TypeKindError
	TypeKindPyObjectWrapper
	TypeKindOptional
)

// Type is the schema-declared expected type of a field.
type Type struct {
	Kind  TypeKind
	Elem  *Type  // element type for Optional and List
	Items []Type // component types for Tuple
}

var (
	Any            = Type{Kind: TypeKindAny}
	TNone          = Type{Kind: TypeKindNone}
	Int            = Type{Kind: TypeKindInt}
	Float          = Type{Kind: TypeKindFloat}
	Bool           = Type{Kind: TypeKindBool}
	String         = Type{Kind: TypeKindString}
	Bytes          = Type{Kind: TypeKindBytes}
	Pointer        = Type{Kind: TypeKindPointer}
	DateTimeNaive  = Type{Kind: TypeKindDateTimeNaive}
	DateTimeUTC    = Type{Kind: TypeKindDateTimeUTC}
	Duration       = Type{Kind: TypeKindDuration}
	JSON           = Type{Kind: TypeKindJSON}
	ErrorType      = Type{Kind: TypeKindError}
	PyObjectWrapper = Type{Kind: TypeKindPyObjectWrapper}
)

func List(elem Type) Type { return Type{Kind: TypeKindList, Elem: &elem} }
func Tuple(items ...Type) Type { return Type{Kind: TypeKindTuple, Items: items} }
func Optional(elem Type) Type { return Type{Kind: TypeKindOptional, Elem: &elem} }

// Unoptionalize strips one Optional layer, per spec §3.
func Unoptionalize(t Type) Type {
	if t.Kind == TypeKindOptional {
		return *t.Elem
	}
	return t
}

func (t Type) String() string {
	switch t.Kind {
	case TypeKindAny:
		return "Any"
	case TypeKindNone:
		return "None"
	case TypeKindInt:
		return "Int"
	case TypeKindFloat:
		return "Float"
	case TypeKindBool:
		return "Bool"
	case TypeKindString:
		return "String"
	case TypeKindBytes:
		return "Bytes"
	case TypeKindPointer:
		return "Pointer"
	case TypeKindDateTimeNaive:
		return "DateTimeNaive"
	case TypeKindDateTimeUTC:
		return "DateTimeUtc"
	case TypeKindDuration:
		return "Duration"
	case TypeKindJSON:
		return "Json"
	case TypeKindError:
		return "Error"
	case TypeKindPyObjectWrapper:
		return "PyObjectWrapper"
	case TypeKindOptional:
		return "Optional(" + t.Elem.String() + ")"
	case TypeKindList:
		return "List(" + t.Elem.String() + ")"
	case TypeKindTuple:
		parts := make([]string, len(t.Items))
		for i, it := range t.Items {
			parts[i] = it.String()
		}
		return "Tuple(" + strings.Join(parts, ", ") + ")"
	default:
		return "Unknown"
	}
}
