package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-rogue/memory"
)

// Device is a container of variables, commands and sub-devices.
//
// A device with a memory slave, or below one, maps its memory-backed variables to blocks at
// its address, which is the parent address plus the device offset.
type Device struct {
	node

	slave        memory.Slave
	offset       uint64
	blockTimeout time.Duration

	mu       sync.RWMutex
	children []Node
	byName   map[string]Node
}

// NewDevice creates an empty device.
func NewDevice(name string, opts ...Option) (*Device, error) {
	n, err := newNode(name)
	if err != nil {
		return nil, err
	}

	d := &Device{
		node:         n,
		blockTimeout: memory.DefaultBlockTimeout,
		byName:       make(map[string]Node),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Add appends nodes to the device. Nodes must be added before the root starts.
func (d *Device) Add(nodes ...Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range nodes {
		switch n.(type) {
		case *Variable, *Command, *Device:
		default:
			return fmt.Errorf("can't add %T to device %s", n, d.name)
		}

		base := n.nodeBase()
		if base.parent != nil {
			return fmt.Errorf("node %s already belongs to device %s", base.name, base.parent.name)
		}
		if _, ok := d.byName[base.name]; ok {
			return fmt.Errorf("%w: %s in device %s", ErrDuplicateNode, base.name, d.name)
		}

		base.parent = d
		d.byName[base.name] = n
		d.children = append(d.children, n)
	}

	return nil
}

// Node returns the direct child called name, or nil.
func (d *Device) Node(name string) Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.byName[name]
}

// Nodes returns the children in insertion order.
func (d *Device) Nodes() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Node, len(d.children))
	copy(out, d.children)

	return out
}

// Variables returns the child variables in insertion order.
func (d *Device) Variables() []*Variable {
	return childrenOf[*Variable](d)
}

// Commands returns the child commands in insertion order.
func (d *Device) Commands() []*Command {
	return childrenOf[*Command](d)
}

// Devices returns the child devices in insertion order.
func (d *Device) Devices() []*Device {
	return childrenOf[*Device](d)
}

func childrenOf[T Node](d *Device) []T {
	var out []T
	for _, n := range d.Nodes() {
		if t, ok := n.(T); ok {
			out = append(out, t)
		}
	}

	return out
}

// Slave returns the memory slave of the device or its nearest ancestor that has one.
func (d *Device) Slave() memory.Slave {
	for dev := d; dev != nil; dev = dev.parent {
		if dev.slave != nil {
			return dev.slave
		}
	}

	return nil
}

// Address returns the absolute address of the device.
func (d *Device) Address() uint64 {
	addr := d.offset
	for dev := d.parent; dev != nil; dev = dev.parent {
		addr += dev.offset
	}

	return addr
}

// ReadAll reads every memory-backed block and getter-backed variable of the device and its
// sub-devices, then publishes the values that changed.
func (d *Device) ReadAll(ctx context.Context) error {
	vars := d.allVariables()

	var errs []error
	for _, blk := range blocksOf(vars) {
		if err := blk.BlockingRead(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	var batch Batch
	for _, v := range vars {
		if v.mode == WO || (!v.memBacked && v.getter == nil) {
			continue
		}
		if v.memBacked && v.block == nil {
			continue
		}
		if v.memBacked && v.block.Err() != nil {
			continue
		}

		update, changed, err := v.refresh()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			batch = append(batch, update)
		}
	}

	d.publish(batch)

	return errors.Join(errs...)
}

// WriteAll writes the shadow data of every block with a writable variable.
func (d *Device) WriteAll(ctx context.Context) error {
	var writable []*Variable
	for _, v := range d.allVariables() {
		if v.mode != RO {
			writable = append(writable, v)
		}
	}

	var errs []error
	for _, blk := range blocksOf(writable) {
		if err := blk.BlockingWrite(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// walk calls fn for every node below the device, depth first in insertion order.
func (d *Device) walk(fn func(Node)) {
	for _, n := range d.Nodes() {
		fn(n)
		if sub, ok := n.(*Device); ok {
			sub.walk(fn)
		}
	}
}

func (d *Device) allVariables() []*Variable {
	var vars []*Variable
	d.walk(func(n Node) {
		if v, ok := n.(*Variable); ok {
			vars = append(vars, v)
		}
	})

	return vars
}

// attach assigns paths and the root to the subtree and creates memory blocks.
func (d *Device) attach(r *Root) error {
	d.root = r

	groups := make(map[uint64][]*Variable)
	var offsets []uint64

	for _, n := range d.Nodes() {
		base := n.nodeBase()
		base.path = d.path + "." + base.name
		base.root = r

		switch t := n.(type) {
		case *Device:
			if err := t.attach(r); err != nil {
				return err
			}
		case *Variable:
			if !t.memBacked {
				continue
			}
			if _, ok := groups[t.offset]; !ok {
				offsets = append(offsets, t.offset)
			}
			groups[t.offset] = append(groups[t.offset], t)
		}
	}

	if len(offsets) == 0 {
		return nil
	}

	slave := d.Slave()
	if slave == nil {
		return fmt.Errorf("device %s: %w", d.path, ErrNoSlave)
	}

	for _, offset := range offsets {
		var size uint32
		for _, v := range groups[offset] {
			size = max(size, v.byteSpan())
		}

		blk, err := memory.NewBlock(slave, d.Address()+offset, size,
			memory.WithBlockTimeout(d.blockTimeout),
			memory.WithBlockLogger(r.logger),
		)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.path, err)
		}
		for _, v := range groups[offset] {
			v.block = blk
		}
	}

	return nil
}

func blocksOf(vars []*Variable) []*memory.Block {
	seen := make(map[*memory.Block]struct{})
	var blocks []*memory.Block
	for _, v := range vars {
		if v.block == nil {
			continue
		}
		if _, ok := seen[v.block]; ok {
			continue
		}
		seen[v.block] = struct{}{}
		blocks = append(blocks, v.block)
	}

	return blocks
}
