package tree

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Base is the value representation of a variable or command argument.
type Base string

const (
	BaseEnum   Base = "enum"
	BaseBool   Base = "bool"
	BaseFloat  Base = "float"
	BaseUInt   Base = "uint"
	BaseHex    Base = "hex"
	BaseBin    Base = "bin"
	BaseRange  Base = "range"
	BaseString Base = "string"
	BaseNone   Base = "none"
)

// ParseBase returns the Base named s.
func ParseBase(s string) (Base, error) {
	switch b := Base(strings.ToLower(s)); b {
	case BaseEnum, BaseBool, BaseFloat, BaseUInt, BaseHex, BaseBin, BaseRange, BaseString, BaseNone:
		return b, nil
	default:
		return "", fmt.Errorf("unknown base %q", s)
	}
}

// IsInteger returns true for bases holding uint64 values.
func (b Base) IsInteger() bool {
	switch b {
	case BaseUInt, BaseHex, BaseBin, BaseRange, BaseEnum:
		return true
	default:
		return false
	}
}

// Mode is the access mode of a variable.
type Mode string

const (
	RW Mode = "RW"
	RO Mode = "RO"
	WO Mode = "WO"
)

// Enum maps the integer values of an enum variable to their labels.
type Enum map[uint64]string

// Keys returns the enum values in ascending order.
func (e Enum) Keys() []uint64 {
	keys := make([]uint64, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}

// Labels returns the labels ordered by value.
func (e Enum) Labels() []string {
	keys := e.Keys()
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = e[k]
	}

	return labels
}

// Lookup returns the value of label.
func (e Enum) Lookup(label string) (uint64, bool) {
	for k, v := range e {
		if v == label {
			return k, true
		}
	}

	return 0, false
}

// ParseValue converts text to a value of base.
//
// hex accepts an optional 0x prefix and bin an optional 0b prefix. Enum text is resolved by
// Variable.Parse, which knows the labels.
func ParseValue(base Base, text string) (any, error) {
	text = strings.TrimSpace(text)

	switch base {
	case BaseUInt, BaseRange:
		return parseUint(text, 10)
	case BaseHex:
		return parseUint(trimPrefixFold(text, "0x"), 16)
	case BaseBin:
		return parseUint(trimPrefixFold(text, "0b"), 2)
	case BaseFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrInvalidValue, text)
		}

		return f, nil
	case BaseBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrInvalidValue, text)
		}

		return b, nil
	case BaseString:
		return text, nil
	case BaseNone:
		return nil, nil //nolint:nilnil
	default:
		return nil, fmt.Errorf("%w: can't parse %q as %s", ErrInvalidValue, text, base)
	}
}

// FormatValue returns the display string of v in base.
func FormatValue(base Base, v any) string {
	switch base {
	case BaseHex:
		if u, ok := v.(uint64); ok {
			return "0x" + strconv.FormatUint(u, 16)
		}
	case BaseBin:
		if u, ok := v.(uint64); ok {
			return "0b" + strconv.FormatUint(u, 2)
		}
	case BaseUInt, BaseRange, BaseEnum:
		if u, ok := v.(uint64); ok {
			return strconv.FormatUint(u, 10)
		}
	case BaseFloat:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
	case BaseBool:
		if b, ok := v.(bool); ok {
			if b {
				return "True"
			}

			return "False"
		}
	case BaseNone:
		return ""
	}

	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}

// convert normalizes v to the Go type held by base: uint64 for integer bases, float64, bool or
// string. Strings are parsed with ParseValue.
func convert(base Base, v any) (any, error) {
	if s, ok := v.(string); ok && base != BaseString {
		return ParseValue(base, s)
	}

	switch base {
	case BaseUInt, BaseHex, BaseBin, BaseRange, BaseEnum:
		return toUint(v)
	case BaseFloat:
		return toFloat(v)
	case BaseBool:
		return toBool(v)
	case BaseString:
		if s, ok := v.(string); ok {
			return s, nil
		}

		return fmt.Sprint(v), nil
	case BaseNone:
		return nil, nil //nolint:nilnil
	default:
		return nil, fmt.Errorf("%w: unknown base %q", ErrInvalidValue, base)
	}
}

func toUint(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case int:
		return signedToUint(int64(x))
	case int64:
		return signedToUint(x)
	case int32:
		return signedToUint(int64(x))
	case float64:
		if x < 0 || x != math.Trunc(x) || x >= math.MaxUint64 {
			return 0, fmt.Errorf("%w: %v is not an unsigned integer", ErrInvalidValue, x)
		}

		return uint64(x), nil
	case bool:
		if x {
			return 1, nil
		}

		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T is not an unsigned integer", ErrInvalidValue, v)
	}
}

func signedToUint(x int64) (uint64, error) {
	if x < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrInvalidValue, x)
	}

	return uint64(x), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("%w: %T is not a float", ErrInvalidValue, v)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int, int64, uint64, float64:
		u, err := toUint(x)
		if err != nil || u > 1 {
			return false, fmt.Errorf("%w: %v is not a bool", ErrInvalidValue, v)
		}

		return u == 1, nil
	default:
		return false, fmt.Errorf("%w: %T is not a bool", ErrInvalidValue, v)
	}
}

func parseUint(text string, base int) (uint64, error) {
	u, err := strconv.ParseUint(strings.ReplaceAll(text, "_", ""), base, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a base-%d unsigned integer", ErrInvalidValue, text, base)
	}

	return u, nil
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}

	return s
}

// zeroValue returns the initial value of a variable of base.
func zeroValue(base Base, enum Enum) any {
	switch base {
	case BaseUInt, BaseHex, BaseBin, BaseRange:
		return uint64(0)
	case BaseEnum:
		if keys := enum.Keys(); len(keys) > 0 {
			return keys[0]
		}

		return uint64(0)
	case BaseFloat:
		return float64(0)
	case BaseBool:
		return false
	case BaseString:
		return ""
	default:
		return nil
	}
}
