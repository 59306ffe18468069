package fileio

// StreamWriter writes received frames to a data file.
type StreamWriter interface {
	Open(path string) error
	Close() error
	// Size returns the number of bytes written to the current file.
	Size() uint64
	// BankCount returns the number of banks written to the current file.
	BankCount() uint32
	SetBufferSize(n uint32)
	SetMaxSize(n uint64)
}

// StreamReader replays frames from a data file.
type StreamReader interface {
	Open(path string) error
	Close() error
	IsOpen() bool
}
