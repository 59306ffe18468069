// Package memory implements the memory transaction model: transactions addressed by byte offset
// and size, slaves that resolve them, and masters that issue them.
//
// A Slave receives a Transaction through DoTransaction and must resolve it exactly once with a
// Status. The Emulator is a slave backed by a sparse byte store, used to stand in for a
// memory-mapped device in tests and simulations:
//
//	emu, _ := memory.NewEmulator(memory.WithMinWidth(4), memory.WithMaxSize(65536))
//
//	tx := memory.NewTransaction(memory.Write, 4, 4, []byte{1, 2, 3, 4})
//	emu.DoTransaction(tx) // tx.Status() == memory.Success
//
//	tx = memory.NewTransaction(memory.Read, 4, 4, nil)
//	emu.DoTransaction(tx) // tx.Data() == []byte{1, 2, 3, 4}
//
// A Block is a master holding a shadow copy of a register range. It issues blocking, background,
// posted and verify transactions against a slave and packs bit fields in and out of the shadow.
package memory
