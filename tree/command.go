package tree

import (
	"context"
	"fmt"
)

// CommandFunc performs a command. arg is converted to the command base, nil for BaseNone.
type CommandFunc func(ctx context.Context, arg any) (any, error)

// Command is an action in the tree with an optional typed argument.
type Command struct {
	node

	base Base
	enum Enum
	fn   CommandFunc
}

// NewCommand creates a command calling fn. The default argument base is BaseNone.
func NewCommand(name string, fn CommandFunc, opts ...Option) (*Command, error) {
	n, err := newNode(name)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("command %s: function is nil", name)
	}

	c := &Command{node: n, base: BaseNone, fn: fn}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Base returns the argument base.
func (c *Command) Base() Base { return c.base }

// Enum returns the argument labels of an enum command.
func (c *Command) Enum() Enum { return c.enum }

// Exec converts arg to the argument base and runs the command.
// Commands with BaseNone ignore arg.
func (c *Command) Exec(ctx context.Context, arg any) (any, error) {
	var (
		val any
		err error
	)

	switch {
	case c.base == BaseNone:
	case c.base == BaseEnum:
		val, err = c.enumArg(arg)
	default:
		val, err = convert(c.base, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.path, err)
	}

	return c.fn(ctx, val)
}

func (c *Command) enumArg(arg any) (any, error) {
	if s, ok := arg.(string); ok {
		if key, found := c.enum.Lookup(s); found {
			return key, nil
		}
	}

	key, err := convert(BaseUInt, arg)
	if err != nil {
		return nil, err
	}
	if _, ok := c.enum[key.(uint64)]; !ok { //nolint:forcetypeassert
		return nil, fmt.Errorf("%w: %v is not an enum value", ErrInvalidValue, arg)
	}

	return key, nil
}
