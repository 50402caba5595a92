package enrich

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a FieldValue.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueList
)

// FieldValue is a typed custom-field value. The ticketing platform transports
// these untyped; the tagged variant keeps the raw value distinguishable from
// its rendering.
type FieldValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

// NullValue returns the null variant.
func NullValue() FieldValue { return FieldValue{kind: ValueNull} }

// StringValue wraps a string.
func StringValue(s string) FieldValue { return FieldValue{kind: ValueString, str: s} }

// NumberValue wraps a number.
func NumberValue(n float64) FieldValue { return FieldValue{kind: ValueNumber, num: n} }

// BoolValue wraps a boolean.
func BoolValue(b bool) FieldValue { return FieldValue{kind: ValueBool, b: b} }

// ListValue wraps a list of strings (multi-select fields).
func ListValue(items []string) FieldValue { return FieldValue{kind: ValueList, list: items} }

// FieldValueOf converts a raw transport value into its tagged variant.
func FieldValueOf(raw any) FieldValue {
	switch v := raw.(type) {
	case nil:
		return NullValue()
	case string:
		return StringValue(v)
	case float64:
		return NumberValue(v)
	case bool:
		return BoolValue(v)
	case []string:
		return ListValue(v)
	default:
		return StringValue(fmt.Sprintf("%v", v))
	}
}

// Kind returns the variant tag.
func (v FieldValue) Kind() ValueKind { return v.kind }

// IsEmpty reports whether the value is null or an empty string, the two
// cases the projection skips.
func (v FieldValue) IsEmpty() bool {
	switch v.kind {
	case ValueNull:
		return true
	case ValueString:
		return v.str == ""
	default:
		return false
	}
}

// String renders the value for chunk text.
func (v FieldValue) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

// Raw returns the value in its native representation, for metadata payloads.
func (v FieldValue) Raw() any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num
	case ValueBool:
		return v.b
	case ValueList:
		return v.list
	default:
		return nil
	}
}
