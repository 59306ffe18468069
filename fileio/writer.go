package fileio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/arloliu/go-rogue/tree"
)

var (
	ErrWriterNil   = errors.New("fileio: stream writer is nil")
	ErrReaderNil   = errors.New("fileio: stream reader is nil")
	ErrNoDataFile  = errors.New("fileio: data file is not set")
	ErrSizeTooLong = errors.New("fileio: buffer size exceeds 32 bits")
)

// WriterDevice exposes a StreamWriter as a device with the variables DataFile, Open,
// BufferSize, MaxSize, FileSize and BankCount.
type WriterDevice struct {
	*tree.Device

	w StreamWriter

	mu     sync.Mutex
	opened bool

	dataFile  *tree.Variable
	fileSize  *tree.Variable
	bankCount *tree.Variable
}

// NewWriterDevice creates a device driving w. opts are applied to the device.
func NewWriterDevice(name string, w StreamWriter, opts ...tree.Option) (*WriterDevice, error) {
	if w == nil {
		return nil, ErrWriterNil
	}

	opts = append([]tree.Option{tree.WithDescription("Stream Writer")}, opts...)
	dev, err := tree.NewDevice(name, opts...)
	if err != nil {
		return nil, err
	}
	wd := &WriterDevice{Device: dev, w: w}

	vars := []struct {
		target **tree.Variable
		name   string
		opts   []tree.Option
	}{
		{&wd.dataFile, "DataFile", []tree.Option{
			tree.WithDescription("Data File"), tree.WithBase(tree.BaseString),
		}},
		{nil, "Open", []tree.Option{
			tree.WithDescription("Data file open state"), tree.WithBase(tree.BaseBool),
			tree.WithSetter(wd.setOpen),
		}},
		{nil, "BufferSize", []tree.Option{
			tree.WithDescription("File buffering size"), tree.WithBase(tree.BaseUInt),
			tree.WithSetter(wd.setBufferSize),
		}},
		{nil, "MaxSize", []tree.Option{
			tree.WithDescription("File maximum size"), tree.WithBase(tree.BaseUInt),
			tree.WithSetter(func(v any) error {
				w.SetMaxSize(v.(uint64)) //nolint:forcetypeassert
				return nil
			}),
		}},
		{&wd.fileSize, "FileSize", []tree.Option{
			tree.WithDescription("File size in bytes"), tree.WithBase(tree.BaseUInt), tree.WithMode(tree.RO),
			tree.WithGetter(func() (any, error) { return w.Size(), nil }),
		}},
		{&wd.bankCount, "BankCount", []tree.Option{
			tree.WithDescription("Total banks in file"), tree.WithBase(tree.BaseUInt), tree.WithMode(tree.RO),
			tree.WithGetter(func() (any, error) { return uint64(w.BankCount()), nil }),
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
		if def.target != nil {
			*def.target = v
		}
	}

	return wd, nil
}

// Writer returns the wrapped writer.
func (wd *WriterDevice) Writer() StreamWriter {
	return wd.w
}

// IsOpen reports whether the device opened the writer.
func (wd *WriterDevice) IsOpen() bool {
	wd.mu.Lock()
	defer wd.mu.Unlock()

	return wd.opened
}

// ReadPoll refreshes FileSize and BankCount.
func (wd *WriterDevice) ReadPoll(ctx context.Context) error {
	_, err1 := wd.fileSize.Get(ctx)
	_, err2 := wd.bankCount.Get(ctx)

	return errors.Join(err1, err2)
}

// setOpen opens or closes the writer when the state changes.
func (wd *WriterDevice) setOpen(v any) error {
	open := v.(bool) //nolint:forcetypeassert

	wd.mu.Lock()
	defer wd.mu.Unlock()

	if open == wd.opened {
		return nil
	}

	if !open {
		if err := wd.w.Close(); err != nil {
			return err
		}
		wd.opened = false

		return nil
	}

	path, _ := wd.dataFile.Value().(string)
	if path == "" {
		return ErrNoDataFile
	}
	if err := wd.w.Open(path); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	wd.opened = true

	return nil
}

func (wd *WriterDevice) setBufferSize(v any) error {
	n := v.(uint64) //nolint:forcetypeassert
	if n > math.MaxUint32 {
		return ErrSizeTooLong
	}
	wd.w.SetBufferSize(uint32(n))

	return nil
}
