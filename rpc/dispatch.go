package rpc

import (
	"context"
	"fmt"

	"github.com/arloliu/go-rogue/tree"
)

type handlerFunc func(ctx context.Context, n tree.Node, req *Request) (any, error)

// dispatch is the closed table of attributes a request may name.
var dispatch = map[string]handlerFunc{
	"get":         handleGet,
	"value":       handleValue,
	"disp":        handleDisp,
	"set":         handleSet,
	"exec":        handleExec,
	"call":        handleExec,
	"name":        func(_ context.Context, n tree.Node, _ *Request) (any, error) { return n.Name(), nil },
	"path":        func(_ context.Context, n tree.Node, _ *Request) (any, error) { return n.Path(), nil },
	"description": func(_ context.Context, n tree.Node, _ *Request) (any, error) { return n.Description(), nil },
	"base":        handleBase,
	"mode":        handleMode,
	"readAll":     handleReadAll,
	"writeAll":    handleWriteAll,
}

func unsupported(attr string, n tree.Node) error {
	return fmt.Errorf("%w: %s on %s", ErrUnsupportedAttr, attr, n.Path())
}

func asVariable(attr string, n tree.Node) (*tree.Variable, error) {
	v, ok := n.(*tree.Variable)
	if !ok {
		return nil, unsupported(attr, n)
	}

	return v, nil
}

func asDevice(attr string, n tree.Node) (*tree.Device, error) {
	d, ok := n.(*tree.Device)
	if !ok {
		return nil, unsupported(attr, n)
	}

	return d, nil
}

// handleGet reads the variable unless kwargs.read is false.
func handleGet(ctx context.Context, n tree.Node, req *Request) (any, error) {
	v, err := asVariable("get", n)
	if err != nil {
		return nil, err
	}
	if !req.boolKwarg("read", true) {
		return v.Value(), nil
	}

	return v.Get(ctx)
}

func handleValue(_ context.Context, n tree.Node, _ *Request) (any, error) {
	v, err := asVariable("value", n)
	if err != nil {
		return nil, err
	}

	return v.Value(), nil
}

func handleDisp(ctx context.Context, n tree.Node, req *Request) (any, error) {
	v, err := asVariable("disp", n)
	if err != nil {
		return nil, err
	}
	if req.boolKwarg("read", true) {
		if _, err := v.Get(ctx); err != nil {
			return nil, err
		}
	}

	return v.Disp(), nil
}

func handleSet(ctx context.Context, n tree.Node, req *Request) (any, error) {
	v, err := asVariable("set", n)
	if err != nil {
		return nil, err
	}
	val, ok := req.arg(0)
	if !ok {
		return nil, fmt.Errorf("%w: set needs a value", ErrMissingArgument)
	}

	return nil, v.Set(ctx, val)
}

func handleExec(ctx context.Context, n tree.Node, req *Request) (any, error) {
	c, ok := n.(*tree.Command)
	if !ok {
		return nil, unsupported(req.Attr, n)
	}
	arg, _ := req.arg(0)

	return c.Exec(ctx, arg)
}

func handleBase(_ context.Context, n tree.Node, _ *Request) (any, error) {
	switch t := n.(type) {
	case *tree.Variable:
		return t.Base(), nil
	case *tree.Command:
		return t.Base(), nil
	default:
		return nil, unsupported("base", n)
	}
}

func handleMode(_ context.Context, n tree.Node, _ *Request) (any, error) {
	v, err := asVariable("mode", n)
	if err != nil {
		return nil, err
	}

	return v.Mode(), nil
}

func handleReadAll(ctx context.Context, n tree.Node, _ *Request) (any, error) {
	d, err := asDevice("readAll", n)
	if err != nil {
		return nil, err
	}

	return nil, d.ReadAll(ctx)
}

func handleWriteAll(ctx context.Context, n tree.Node, _ *Request) (any, error) {
	d, err := asDevice("writeAll", n)
	if err != nil {
		return nil, err
	}

	return nil, d.WriteAll(ctx)
}
