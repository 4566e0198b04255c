package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ValidateKey rejects keys that cannot travel as a single argument.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidKey, key)
		}
	}
	return nil
}

// FormatCommand renders one command line without the trailing terminator.
func FormatCommand(verb Verb, args ...string) (string, error) {
	if !verb.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVerb, string(verb))
	}
	var b strings.Builder
	b.WriteString(string(verb))
	for _, arg := range args {
		if strings.ContainsAny(arg, "\r\n") {
			return "", fmt.Errorf("%w: argument contains a line terminator", ErrInvalidValue)
		}
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	return b.String(), nil
}

// EncodeValue renders v as the value argument of a SET command. Scalars are
// written bare; everything else is compact JSON. Floats always carry a '.'
// so they decode back as floats.
func EncodeValue(v any) (string, error) {
	var out string
	switch x := v.(type) {
	case nil:
		out = "null"
	case bool:
		out = strconv.FormatBool(x)
	case string:
		if strings.TrimSpace(x) == "" {
			return "", fmt.Errorf("%w: blank string", ErrInvalidValue)
		}
		out = x
	case int:
		out = strconv.FormatInt(int64(x), 10)
	case int8:
		out = strconv.FormatInt(int64(x), 10)
	case int16:
		out = strconv.FormatInt(int64(x), 10)
	case int32:
		out = strconv.FormatInt(int64(x), 10)
	case int64:
		out = strconv.FormatInt(x, 10)
	case uint:
		out = strconv.FormatUint(uint64(x), 10)
	case uint8:
		out = strconv.FormatUint(uint64(x), 10)
	case uint16:
		out = strconv.FormatUint(uint64(x), 10)
	case uint32:
		out = strconv.FormatUint(uint64(x), 10)
	case uint64:
		out = strconv.FormatUint(x, 10)
	case float32:
		s, err := formatFloat(float64(x), 32)
		if err != nil {
			return "", err
		}
		out = s
	case float64:
		s, err := formatFloat(x, 64)
		if err != nil {
			return "", err
		}
		out = s
	case json.Number:
		if x == "" {
			return "", fmt.Errorf("%w: empty number", ErrInvalidValue)
		}
		out = x.String()
	default:
		s, err := encodeJSON(v)
		if err != nil {
			return "", err
		}
		out = s
	}
	if strings.ContainsAny(out, "\r\n") {
		return "", fmt.Errorf("%w: serialized value contains a line terminator", ErrInvalidValue)
	}
	return out, nil
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v is not representable", ErrInvalidValue, f)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeValue turns a GET reply into a Value. The wire carries no type tag,
// so the most specific reading wins, in this order:
//
//  1. "nil" is an absent key
//  2. one layer of surrounding double quotes is stripped
//  3. "null", "true", "false"
//  4. text starting with '{' or '[' that parses as JSON
//  5. a float if the text contains '.', otherwise an int64
//  6. the text itself as a string
func DecodeValue(line string) Value {
	raw := strings.TrimSpace(line)
	if raw == ReplyNil {
		return Null()
	}
	text := stripQuotes(raw)

	switch text {
	case "null":
		return Value{Kind: KindNull, Raw: raw}
	case "true":
		return Value{Kind: KindBool, Bool: true, Raw: raw}
	case "false":
		return Value{Kind: KindBool, Bool: false, Raw: raw}
	}

	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if doc, err := decodeJSON(text); err == nil {
			return Value{Kind: KindJSON, JSON: doc, Raw: raw}
		}
	}

	if strings.Contains(text, ".") {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Value{Kind: KindFloat, Float: f, Raw: raw}
		}
	} else if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Value{Kind: KindInt, Int: n, Raw: raw}
	}

	return Value{Kind: KindString, Str: text, Raw: raw}
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after json document")
	}
	return doc, nil
}
