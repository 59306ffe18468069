// Package memtcp bridges memory transactions over a TCP connection.
//
// A Server exposes any memory.Slave, typically a memory.Emulator, to remote masters. A Client is
// itself a memory.Slave: transactions handed to it are forwarded to a remote Server and resolved
// when the reply arrives.
//
// Frame Layout:
//
// Every frame is big-endian and starts with a 4-byte length counting the bytes that follow it.
//
//	length  u32
//	id      u32   transaction ID, echoed in the reply
//	type    u8    memory.Type
//	status  u32   memory.Status, zero in requests
//	address u64
//	size    u32
//	data    []byte
//
// Data carries the payload of write requests and of successful read replies. It is empty
// otherwise.
//
// Usage Example:
//
//	emu, _ := memory.NewEmulator()
//	cfg, _ := memtcp.NewConnectionConfig("127.0.0.1", 9000)
//	srv, _ := memtcp.NewServer(ctx, emu, cfg)
//	_ = srv.Open()
//	defer srv.Close()
//
//	client, _ := memtcp.NewClient(ctx, cfg)
//	_ = client.Open()
//	data, err := memory.ReadBytes(ctx, client, 0x1000, 16)
package memtcp
