// Package tree organizes hardware registers and actions into a named hierarchy.
//
// A Root is the top Device. Devices hold Variables, Commands and other Devices, and address every
// node with a dotted path starting at the root name, for example "Top.Dev.Scratch".
//
// A Variable holds its value locally, through getter and setter functions, or in a bit field of
// a memory.Block on the memory.Slave attached to its device. Setting a variable and reading
// variables, on demand or by the root poller, publish a Batch of Updates to subscribers.
//
// Usage Example:
//
//	root, _ := tree.NewRoot("Top", tree.WithPollInterval(time.Second))
//	dev, _ := tree.NewDevice("Dev", tree.WithSlave(emu), tree.WithOffset(0x1000))
//	scratch, _ := tree.NewVariable("Scratch", tree.WithBits(0x0, 0, 32), tree.WithBase(tree.BaseHex))
//	_ = dev.Add(scratch)
//	_ = root.Add(dev)
//	_ = root.Start(ctx)
//	defer root.Stop()
//
//	_ = root.Set(ctx, "Top.Dev.Scratch", "0xdeadbeef")
package tree
