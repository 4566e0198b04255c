package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a decoded reply. Only the field matching Kind is meaningful.
// JSON holds map[string]any or []any with numbers as json.Number.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	JSON  any

	// Raw is the reply line as received, trimmed.
	Raw string
}

func Null() Value { return Value{Kind: KindNull, Raw: ReplyNil} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Interface returns the Go value carried by v, nil for KindNull.
func (v Value) Interface() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindJSON:
		return v.JSON
	default:
		return nil
	}
}

// Decode stores v into target using encoding/json conversion rules, so a
// KindJSON value can be read into a struct.
func (v Value) Decode(target any) error {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return fmt.Errorf("decode %s value: %w", v.Kind, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s value: %w", v.Kind, err)
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "(nil)"
	case KindString:
		return v.Str
	default:
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return v.Raw
		}
		return string(data)
	}
}
