package tree

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// nodeInfo is the YAML description of a node.
type nodeInfo struct {
	Class       string     `yaml:"class"`
	Path        string     `yaml:"path"`
	Description string     `yaml:"description,omitempty"`
	Hidden      bool       `yaml:"hidden,omitempty"`
	Base        Base       `yaml:"base,omitempty"`
	Mode        Mode       `yaml:"mode,omitempty"`
	Enum        Enum       `yaml:"enum,omitempty"`
	Minimum     *uint64    `yaml:"minimum,omitempty"`
	Maximum     *uint64    `yaml:"maximum,omitempty"`
	Offset      *uint64    `yaml:"offset,omitempty"`
	BitOffset   *uint32    `yaml:"bitOffset,omitempty"`
	BitSize     *uint32    `yaml:"bitSize,omitempty"`
	Nodes       *yaml.Node `yaml:"nodes,omitempty"`
}

// YAMLStructure describes the tree as YAML, keeping the insertion order of children.
func (r *Root) YAMLStructure() (string, error) {
	info, err := describe(r.Device, "Root")
	if err != nil {
		return "", err
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	if err := appendMapping(doc, r.name, info); err != nil {
		return "", err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

func describe(n Node, class string) (*nodeInfo, error) {
	info := &nodeInfo{
		Class:       class,
		Path:        n.Path(),
		Description: n.Description(),
		Hidden:      n.Hidden(),
	}

	switch t := n.(type) {
	case *Variable:
		info.Base, info.Mode, info.Enum = t.base, t.mode, t.enum
		if minimum, maximum, ok := t.Range(); ok {
			info.Minimum, info.Maximum = &minimum, &maximum
		}
		if t.memBacked {
			info.Offset, info.BitOffset, info.BitSize = &t.offset, &t.bitOffset, &t.bitSize
		}
	case *Command:
		info.Base, info.Enum = t.base, t.enum
	case *Device:
		children := &yaml.Node{Kind: yaml.MappingNode}
		for _, child := range t.Nodes() {
			childInfo, err := describe(child, className(child))
			if err != nil {
				return nil, err
			}
			if err := appendMapping(children, child.Name(), childInfo); err != nil {
				return nil, err
			}
		}
		if len(children.Content) > 0 {
			info.Nodes = children
		}
	}

	return info, nil
}

func className(n Node) string {
	switch n.(type) {
	case *Variable:
		return "Variable"
	case *Command:
		return "Command"
	default:
		return "Device"
	}
}

func appendMapping(m *yaml.Node, key string, val any) error {
	valNode := &yaml.Node{}
	if err := valNode.Encode(val); err != nil {
		return err
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, valNode)

	return nil
}

// YAMLValues returns the last known values of all readable variables as nested mappings by
// name. Enum variables are written with their labels.
func (r *Root) YAMLValues() (string, error) {
	values, err := valuesOf(r.Device)
	if err != nil {
		return "", err
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: r.name}, values)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

func valuesOf(d *Device) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}

	for _, n := range d.Nodes() {
		switch t := n.(type) {
		case *Variable:
			if t.mode == WO {
				continue
			}
			var val any = t.Value()
			if t.base == BaseEnum {
				val = t.Disp()
			}
			if err := appendMapping(m, t.name, val); err != nil {
				return nil, err
			}
		case *Device:
			sub, err := valuesOf(t)
			if err != nil {
				return nil, err
			}
			if len(sub.Content) == 0 {
				continue
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: t.name}, sub)
		}
	}

	return m, nil
}

// LoadValues applies a YAML document shaped like the output of YAMLValues.
//
// Read-only variables and commands are skipped. Unknown names and failed writes are collected
// and returned together after the rest of the document is applied.
func (r *Root) LoadValues(ctx context.Context, doc string) error {
	var top yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &top); err != nil {
		return fmt.Errorf("parse values: %w", err)
	}
	if top.Kind == 0 {
		return nil
	}
	if top.Kind != yaml.DocumentNode || len(top.Content) != 1 || top.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: values document must be a mapping", ErrInvalidValue)
	}

	var errs []error
	m := top.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		if key != r.name {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNodeNotFound, key))
			continue
		}
		errs = append(errs, r.loadDevice(ctx, r.Device, r.name, val)...)
	}

	return errors.Join(errs...)
}

func (r *Root) loadDevice(ctx context.Context, d *Device, path string, m *yaml.Node) []error {
	if m.Kind != yaml.MappingNode {
		return []error{fmt.Errorf("%w: %s must be a mapping", ErrInvalidValue, path)}
	}

	var errs []error
	for i := 0; i+1 < len(m.Content); i += 2 {
		name, val := m.Content[i].Value, m.Content[i+1]
		childPath := path + "." + name

		switch t := d.Node(name).(type) {
		case *Device:
			errs = append(errs, r.loadDevice(ctx, t, childPath, val)...)
		case *Variable:
			if t.mode == RO {
				continue
			}
			if val.Kind != yaml.ScalarNode {
				errs = append(errs, fmt.Errorf("%w: %s must be a scalar", ErrInvalidValue, childPath))
				continue
			}
			var typed any
			if err := val.Decode(&typed); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalidValue, childPath, err))
				continue
			}
			if err := t.Set(ctx, typed); err != nil {
				errs = append(errs, err)
			}
		case *Command:
			// commands carry no value
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrNodeNotFound, childPath))
		}
	}

	return errs
}
