package pvbridge

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/arloliu/go-rogue/tree"
)

// Type is the value type of a PV.
type Type string

const (
	TypeEnum   Type = "enum"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeString Type = "string"
)

var boolLabels = []string{"False", "True"}

// PV describes one process variable.
type PV struct {
	Name string
	// Path is the tree path of the node, empty for the structure PV.
	Path        string
	Type        Type
	EnumStrings []string
	// Lolim and Hilim are set for range variables.
	Lolim, Hilim *uint64
	Command      bool
	ReadOnly     bool
	Description  string

	base tree.Base
	enum tree.Enum
}

// PVDB maps PV names to their descriptions.
type PVDB map[string]*PV

// Names returns the PV names in lexical order.
func (db PVDB) Names() []string {
	names := make([]string, 0, len(db))
	for name := range db {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// PVName returns the PV name of a tree path.
func PVName(base, path string) string {
	return base + ":" + strings.ReplaceAll(path, ".", ":")
}

// StructureName returns the name of the PV holding the YAML structure of the root.
func StructureName(base, rootName string) string {
	return base + ":" + rootName + ":structure"
}

// BuildPVDB creates a PV for every variable and command below root, and the structure PV.
func BuildPVDB(root *tree.Root, base string) (PVDB, error) {
	if root == nil {
		return nil, ErrRootNil
	}
	if base == "" || strings.ContainsAny(base, ". ") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBase, base)
	}

	db := make(PVDB)
	if err := addDevice(db, base, root.Name(), root.Device); err != nil {
		return nil, err
	}

	name := StructureName(base, root.Name())
	if _, ok := db[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePV, name)
	}
	db[name] = &PV{Name: name, Type: TypeString, ReadOnly: true, Description: "tree structure"}

	return db, nil
}

func addDevice(db PVDB, base, path string, d *tree.Device) error {
	for _, n := range d.Nodes() {
		childPath := path + "." + n.Name()

		var pv *PV
		switch t := n.(type) {
		case *tree.Device:
			if err := addDevice(db, base, childPath, t); err != nil {
				return err
			}
			continue
		case *tree.Variable:
			pv = variablePV(t)
		case *tree.Command:
			pv = &PV{Command: true, base: t.Base(), enum: t.Enum()}
			pv.Type, pv.EnumStrings = pvType(t.Base(), t.Enum())
		default:
			continue
		}

		pv.Name = PVName(base, childPath)
		pv.Path = childPath
		pv.Description = n.Description()
		if _, ok := db[pv.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePV, pv.Name)
		}
		db[pv.Name] = pv
	}

	return nil
}

func variablePV(v *tree.Variable) *PV {
	pv := &PV{ReadOnly: v.Mode() == tree.RO, base: v.Base(), enum: v.Enum()}
	pv.Type, pv.EnumStrings = pvType(v.Base(), v.Enum())
	if minimum, maximum, ok := v.Range(); ok {
		pv.Lolim, pv.Hilim = &minimum, &maximum
	}

	return pv
}

func pvType(base tree.Base, enum tree.Enum) (Type, []string) {
	switch base {
	case tree.BaseEnum:
		return TypeEnum, enum.Labels()
	case tree.BaseBool:
		return TypeEnum, slices.Clone(boolLabels)
	case tree.BaseFloat:
		return TypeFloat, nil
	case tree.BaseUInt, tree.BaseHex, tree.BaseBin, tree.BaseRange:
		return TypeInt, nil
	default:
		return TypeString, nil
	}
}

// toPV converts a tree value and its display string to the PV representation.
// Enum PVs carry the index of the label.
func (pv *PV) toPV(val any, disp string) (any, error) {
	switch pv.Type {
	case TypeEnum:
		idx := slices.Index(pv.EnumStrings, disp)
		if idx < 0 {
			return nil, fmt.Errorf("%s: %q is not an enum label", pv.Name, disp)
		}

		return idx, nil
	case TypeString:
		return disp, nil
	default:
		return val, nil
	}
}

// fromPV converts a PV value written by a client to a value accepted by the tree.
// Integer writes to enum PVs are indices into EnumStrings.
func (pv *PV) fromPV(val any) (any, error) {
	if pv.Type != TypeEnum {
		return val, nil
	}

	var idx int
	switch x := val.(type) {
	case string:
		return x, nil
	case int:
		idx = x
	case int32:
		idx = int(x)
	case int64:
		idx = int(x)
	case uint64:
		idx = int(x) //nolint:gosec
	case uint32:
		idx = int(x)
	default:
		return nil, fmt.Errorf("%s: %T is not an enum index", pv.Name, val)
	}
	if idx < 0 || idx >= len(pv.EnumStrings) {
		return nil, fmt.Errorf("%s: enum index %d out of range", pv.Name, idx)
	}

	return pv.EnumStrings[idx], nil
}
