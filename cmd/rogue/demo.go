package main

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
	"github.com/arloliu/go-rogue/tree"
)

const demoVersion uint32 = 0x0001_0002

// newDemoRoot builds the tree served by "rogue serve": one device mapped on the emulator at
// offset 0.
func newDemoRoot(slave memory.Slave, poll time.Duration, l logger.Logger) (*tree.Root, error) {
	root, err := tree.NewRoot("Top", tree.WithPollInterval(poll), tree.WithLogger(l))
	if err != nil {
		return nil, err
	}

	dev, err := tree.NewDevice("Dev", tree.WithSlave(slave), tree.WithDescription("emulated register device"))
	if err != nil {
		return nil, err
	}

	started := time.Now()
	vars := []struct {
		name string
		opts []tree.Option
	}{
		{"Version", []tree.Option{tree.WithBits(0x0, 0, 32), tree.WithMode(tree.RO), tree.WithDescription("firmware version")}},
		{"ScratchPad", []tree.Option{tree.WithBits(0x4, 0, 32), tree.WithDescription("register test value")}},
		{"Enable", []tree.Option{tree.WithBits(0x8, 0, 1), tree.WithBase(tree.BaseBool)}},
		{"Mode", []tree.Option{tree.WithBits(0x8, 4, 2), tree.WithEnum(tree.Enum{0: "Off", 1: "On", 2: "Auto"})}},
		{"Threshold", []tree.Option{tree.WithBits(0x8, 8, 8), tree.WithBase(tree.BaseUInt)}},
		{"Gain", []tree.Option{tree.WithRange(0, 100), tree.WithValue(50), tree.WithDescription("local gain setting")}},
		{"Uptime", []tree.Option{
			tree.WithBase(tree.BaseUInt), tree.WithMode(tree.RO), tree.WithDescription("seconds since start"),
			tree.WithGetter(func() (any, error) { return uint64(time.Since(started).Seconds()), nil }),
		}},
	}
	for _, def := range vars {
		v, err := tree.NewVariable(def.name, def.opts...)
		if err != nil {
			return nil, err
		}
		if err := dev.Add(v); err != nil {
			return nil, err
		}
	}

	clearCmd, err := tree.NewCommand("ClearScratch", func(ctx context.Context, _ any) (any, error) {
		return nil, root.Set(ctx, "Top.Dev.ScratchPad", 0)
	}, tree.WithDescription("zero the scratch pad"))
	if err != nil {
		return nil, err
	}
	if err := dev.Add(clearCmd); err != nil {
		return nil, err
	}

	if err := root.Add(dev); err != nil {
		return nil, err
	}

	return root, nil
}

// presetDemoMemory writes the read-only registers of the demo device.
func presetDemoMemory(ctx context.Context, slave memory.Slave) error {
	return memory.WriteBytes(ctx, slave, 0x0, binary.LittleEndian.AppendUint32(nil, demoVersion))
}
