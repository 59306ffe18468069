package tree

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
)

// Node is an element of the tree: a *Variable, *Command or *Device.
type Node interface {
	Name() string
	Description() string
	// Path returns the dotted path from the root, assigned when the root starts.
	Path() string
	Hidden() bool
	// Parent returns the device holding the node, or nil for the root and unattached nodes.
	Parent() *Device

	nodeBase() *node
}

type node struct {
	name        string
	description string
	path        string
	hidden      bool
	parent      *Device
	root        *Root
}

func newNode(name string) (node, error) {
	if name == "" || strings.Contains(name, ".") {
		return node{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return node{name: name, path: name}, nil
}

func (n *node) Name() string        { return n.name }
func (n *node) Description() string { return n.description }
func (n *node) Path() string        { return n.path }
func (n *node) Hidden() bool        { return n.hidden }
func (n *node) Parent() *Device     { return n.parent }
func (n *node) nodeBase() *node     { return n }

func (n *node) publish(batch Batch) {
	if n.root != nil {
		n.root.publish(batch)
	}
}

// Option configures a node. Applying an option to a node type it does not support returns an
// error.
type Option func(target any) error

func notApplicable(option string, target any) error {
	return fmt.Errorf("option %s is not applicable to %T", option, target)
}

// WithDescription sets the description of any node.
func WithDescription(s string) Option {
	return func(target any) error {
		n, ok := target.(interface{ nodeBase() *node })
		if !ok {
			return notApplicable("WithDescription", target)
		}
		n.nodeBase().description = s

		return nil
	}
}

// WithHidden hides a node from consoles.
func WithHidden() Option {
	return func(target any) error {
		n, ok := target.(interface{ nodeBase() *node })
		if !ok {
			return notApplicable("WithHidden", target)
		}
		n.nodeBase().hidden = true

		return nil
	}
}

// WithBase sets the base of a variable or of a command argument.
func WithBase(b Base) Option {
	return func(target any) error {
		if _, err := ParseBase(string(b)); err != nil {
			return err
		}

		switch t := target.(type) {
		case *Variable:
			t.base = b
		case *Command:
			t.base = b
		default:
			return notApplicable("WithBase", target)
		}

		return nil
	}
}

// WithEnum sets the labels of an enum variable or command argument. It implies BaseEnum.
func WithEnum(e Enum) Option {
	return func(target any) error {
		if len(e) == 0 {
			return fmt.Errorf("%w: empty enum", ErrInvalidValue)
		}

		cp := make(Enum, len(e))
		for k, v := range e {
			cp[k] = v
		}

		switch t := target.(type) {
		case *Variable:
			t.base, t.enum = BaseEnum, cp
		case *Command:
			t.base, t.enum = BaseEnum, cp
		default:
			return notApplicable("WithEnum", target)
		}

		return nil
	}
}

// WithMode sets the access mode of a variable. The default is RW.
func WithMode(m Mode) Option {
	return func(target any) error {
		v, ok := target.(*Variable)
		if !ok {
			return notApplicable("WithMode", target)
		}
		if m != RW && m != RO && m != WO {
			return fmt.Errorf("unknown mode %q", m)
		}
		v.mode = m

		return nil
	}
}

// WithRange sets the inclusive limits of a variable. It implies BaseRange.
func WithRange(minimum, maximum uint64) Option {
	return func(target any) error {
		v, ok := target.(*Variable)
		if !ok {
			return notApplicable("WithRange", target)
		}
		if minimum > maximum {
			return fmt.Errorf("range minimum %d is greater than maximum %d", minimum, maximum)
		}
		v.base, v.minimum, v.maximum = BaseRange, minimum, maximum

		return nil
	}
}

// WithValue sets the initial value of a local variable.
func WithValue(val any) Option {
	return func(target any) error {
		v, ok := target.(*Variable)
		if !ok {
			return notApplicable("WithValue", target)
		}
		v.initial = val

		return nil
	}
}

// WithGetter makes a variable read its value from fn.
func WithGetter(fn func() (any, error)) Option {
	return func(target any) error {
		v, ok := target.(*Variable)
		if !ok {
			return notApplicable("WithGetter", target)
		}
		v.getter = fn

		return nil
	}
}

// WithSetter makes a variable pass written values to fn.
func WithSetter(fn func(any) error) Option {
	return func(target any) error {
		v, ok := target.(*Variable)
		if !ok {
			return notApplicable("WithSetter", target)
		}
		v.setter = fn

		return nil
	}
}

// WithBits backs a variable by bitSize bits starting at bitOffset of the register at offset
// bytes from its device address.
func WithBits(offset uint64, bitOffset, bitSize uint32) Option {
	return func(target any) error {
		v, ok := target.(*Variable)
		if !ok {
			return notApplicable("WithBits", target)
		}
		if bitSize == 0 {
			return fmt.Errorf("%w: bit size must be greater than 0", ErrInvalidValue)
		}
		v.memBacked = true
		v.offset, v.bitOffset, v.bitSize = offset, bitOffset, bitSize

		return nil
	}
}

// WithSlave attaches a memory slave to a device. Sub-devices without their own slave use it.
func WithSlave(s memory.Slave) Option {
	return func(target any) error {
		d, ok := asDevice(target)
		if !ok {
			return notApplicable("WithSlave", target)
		}
		if s == nil {
			return memory.ErrSlaveNil
		}
		d.slave = s

		return nil
	}
}

// WithOffset sets the address of a device relative to its parent.
func WithOffset(offset uint64) Option {
	return func(target any) error {
		d, ok := asDevice(target)
		if !ok {
			return notApplicable("WithOffset", target)
		}
		d.offset = offset

		return nil
	}
}

// WithBlockTimeout sets the transaction timeout of the memory blocks of a device.
func WithBlockTimeout(timeout time.Duration) Option {
	return func(target any) error {
		d, ok := asDevice(target)
		if !ok {
			return notApplicable("WithBlockTimeout", target)
		}
		if timeout <= 0 {
			return fmt.Errorf("block timeout must be positive")
		}
		d.blockTimeout = timeout

		return nil
	}
}

// WithPollInterval makes a root refresh every memory-backed and getter-backed variable at the
// given interval while it runs.
func WithPollInterval(d time.Duration) Option {
	return func(target any) error {
		r, ok := target.(*Root)
		if !ok {
			return notApplicable("WithPollInterval", target)
		}
		if d < 0 {
			return fmt.Errorf("poll interval must not be negative")
		}
		r.pollInterval = d

		return nil
	}
}

// WithLogger sets the logger of a root.
func WithLogger(l logger.Logger) Option {
	return func(target any) error {
		r, ok := target.(*Root)
		if !ok {
			return notApplicable("WithLogger", target)
		}
		if l == nil {
			return fmt.Errorf("logger is nil")
		}
		r.logger = l

		return nil
	}
}

func asDevice(target any) (*Device, bool) {
	switch t := target.(type) {
	case *Device:
		return t, true
	case *Root:
		return t.Device, true
	default:
		return nil, false
	}
}
