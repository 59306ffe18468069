package tree

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/arloliu/go-rogue/memory"
)

// Variable is a typed value in the tree.
//
// The value lives in one of three places: locally in the variable, behind getter and setter
// functions, or in a bit field of a memory.Block when created WithBits.
type Variable struct {
	node

	base    Base
	mode    Mode
	enum    Enum
	minimum uint64
	maximum uint64
	initial any

	getter func() (any, error)
	setter func(any) error

	memBacked bool
	offset    uint64
	bitOffset uint32
	bitSize   uint32
	block     *memory.Block

	mu       sync.RWMutex
	value    any
	lastDisp string
}

// NewVariable creates a variable. The default base is BaseHex and the default mode is RW.
func NewVariable(name string, opts ...Option) (*Variable, error) {
	n, err := newNode(name)
	if err != nil {
		return nil, err
	}

	v := &Variable{node: n, base: BaseHex, mode: RW}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if v.base == BaseNone {
		return nil, fmt.Errorf("variable %s: base none is only valid for commands", name)
	}
	if v.memBacked {
		if err := v.checkBits(); err != nil {
			return nil, err
		}
	}

	v.value = zeroValue(v.base, v.enum)
	if v.initial != nil {
		val, err := v.normalize(v.initial)
		if err != nil {
			return nil, fmt.Errorf("variable %s: initial value: %w", name, err)
		}
		v.value = val
	}
	v.lastDisp = v.format(v.value)

	return v, nil
}

func (v *Variable) Base() Base { return v.base }
func (v *Variable) Mode() Mode { return v.mode }

// Enum returns the enum labels, or nil for other bases.
func (v *Variable) Enum() Enum { return v.enum }

// Range returns the limits of a range variable.
func (v *Variable) Range() (minimum, maximum uint64, ok bool) {
	return v.minimum, v.maximum, v.base == BaseRange
}

// IsMemory returns true for variables backed by a memory block.
func (v *Variable) IsMemory() bool { return v.memBacked }

// Value returns the last known value without accessing hardware.
func (v *Variable) Value() any {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.value
}

// Disp returns the display string of the last known value.
func (v *Variable) Disp() string {
	return v.format(v.Value())
}

// Parse converts display text to a value of the variable, resolving enum labels.
func (v *Variable) Parse(text string) (any, error) {
	return v.normalize(text)
}

// Get returns the current value, reading it from the block or the getter first.
// Write-only variables return the last written value.
func (v *Variable) Get(ctx context.Context) (any, error) {
	if v.mode == WO {
		return v.Value(), nil
	}

	if v.memBacked {
		if v.block == nil {
			return nil, fmt.Errorf("%s: %w", v.path, ErrNoSlave)
		}
		if err := v.block.BlockingRead(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", v.path, err)
		}
	}

	update, changed, err := v.refresh()
	if err != nil {
		return nil, err
	}
	if changed {
		v.publish(Batch{update})
	}

	return update.Value, nil
}

// Set converts val and writes it to the block, the setter or the local value.
// Set publishes an update even when the value does not change.
func (v *Variable) Set(ctx context.Context, val any) error {
	if v.mode == RO {
		return fmt.Errorf("%s: %w", v.path, ErrReadOnly)
	}

	norm, err := v.normalize(val)
	if err != nil {
		return fmt.Errorf("%s: %w", v.path, err)
	}

	switch {
	case v.memBacked:
		if v.block == nil {
			return fmt.Errorf("%s: %w", v.path, ErrNoSlave)
		}
		if err := v.encode(norm); err != nil {
			return fmt.Errorf("%s: %w", v.path, err)
		}
		if err := v.block.BlockingWrite(ctx); err != nil {
			return fmt.Errorf("%s: %w", v.path, err)
		}
	case v.setter != nil:
		if err := v.setter(norm); err != nil {
			return fmt.Errorf("%s: %w", v.path, err)
		}
	}

	disp := v.format(norm)

	v.mu.Lock()
	v.value = norm
	v.lastDisp = disp
	v.mu.Unlock()

	v.publish(Batch{{Path: v.path, Value: norm, Display: disp}})

	return nil
}

// refresh loads the value from the block shadow or the getter. It reports whether the display
// value changed since the last published update.
func (v *Variable) refresh() (Update, bool, error) {
	var (
		val any
		err error
	)

	switch {
	case v.memBacked:
		val, err = v.decode()
	case v.getter != nil:
		var raw any
		raw, err = v.getter()
		if err == nil {
			val, err = v.normalize(raw)
		}
	default:
		val = v.Value()
	}
	if err != nil {
		return Update{}, false, fmt.Errorf("%s: %w", v.path, err)
	}

	disp := v.format(val)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.value = val
	changed := disp != v.lastDisp
	v.lastDisp = disp

	return Update{Path: v.path, Value: val, Display: disp}, changed, nil
}

func (v *Variable) normalize(val any) (any, error) {
	if v.base == BaseEnum {
		return v.normalizeEnum(val)
	}

	norm, err := convert(v.base, val)
	if err != nil {
		return nil, err
	}

	if u, ok := norm.(uint64); ok {
		if v.base == BaseRange && (u < v.minimum || u > v.maximum) {
			return nil, fmt.Errorf("%w: %d outside range [%d, %d]", ErrInvalidValue, u, v.minimum, v.maximum)
		}
		if v.memBacked && v.bitSize < 64 && u>>v.bitSize != 0 {
			return nil, fmt.Errorf("%w: %d does not fit in %d bits", ErrInvalidValue, u, v.bitSize)
		}
	}

	return norm, nil
}

func (v *Variable) normalizeEnum(val any) (any, error) {
	if s, ok := val.(string); ok {
		if key, found := v.enum.Lookup(s); found {
			return key, nil
		}

		key, err := parseUint(s, 10)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an enum label", ErrInvalidValue, s)
		}
		val = key
	}

	key, err := toUint(val)
	if err != nil {
		return nil, err
	}
	if _, ok := v.enum[key]; !ok {
		return nil, fmt.Errorf("%w: %d is not an enum value", ErrInvalidValue, key)
	}

	return key, nil
}

func (v *Variable) format(val any) string {
	if v.base == BaseEnum {
		if key, ok := val.(uint64); ok {
			if label, found := v.enum[key]; found {
				return label
			}
		}
	}

	return FormatValue(v.base, val)
}

func (v *Variable) checkBits() error {
	switch v.base {
	case BaseFloat:
		if v.bitSize != 32 && v.bitSize != 64 {
			return fmt.Errorf("variable %s: float needs 32 or 64 bits, got %d", v.name, v.bitSize)
		}
	case BaseString:
		if v.bitOffset%8 != 0 || v.bitSize%8 != 0 {
			return fmt.Errorf("variable %s: string must be byte aligned", v.name)
		}
	default:
		if v.bitSize > 64 {
			return fmt.Errorf("variable %s: %d bits exceed 64", v.name, v.bitSize)
		}
	}

	return nil
}

// byteSpan returns the number of block bytes the variable occupies.
func (v *Variable) byteSpan() uint32 {
	return (v.bitOffset + v.bitSize + 7) / 8
}

func (v *Variable) decode() (any, error) {
	switch v.base {
	case BaseString:
		if err := v.block.Err(); err != nil {
			return nil, err
		}
		raw := v.block.Bytes()[v.bitOffset/8 : v.byteSpan()]
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}

		return string(raw), nil
	case BaseFloat:
		u, err := v.block.GetUInt(v.bitOffset, v.bitSize)
		if err != nil {
			return nil, err
		}
		if v.bitSize == 32 {
			return float64(math.Float32frombits(uint32(u))), nil //nolint:gosec
		}

		return math.Float64frombits(u), nil
	case BaseBool:
		u, err := v.block.GetUInt(v.bitOffset, v.bitSize)
		if err != nil {
			return nil, err
		}

		return u != 0, nil
	default:
		return v.block.GetUInt(v.bitOffset, v.bitSize)
	}
}

func (v *Variable) encode(val any) error {
	switch x := val.(type) {
	case string:
		size := int(v.bitSize / 8)
		if len(x) > size {
			return fmt.Errorf("%w: string longer than %d bytes", ErrInvalidValue, size)
		}
		buf := make([]byte, size)
		copy(buf, x)

		return v.block.SetBytes(v.bitOffset/8, buf)
	case float64:
		if v.bitSize == 32 {
			return v.block.SetUInt(v.bitOffset, 32, uint64(math.Float32bits(float32(x))))
		}

		return v.block.SetUInt(v.bitOffset, 64, math.Float64bits(x))
	case bool:
		var u uint64
		if x {
			u = 1
		}

		return v.block.SetUInt(v.bitOffset, v.bitSize, u)
	case uint64:
		return v.block.SetUInt(v.bitOffset, v.bitSize, x)
	default:
		return fmt.Errorf("%w: %T can't be stored in memory", ErrInvalidValue, val)
	}
}
