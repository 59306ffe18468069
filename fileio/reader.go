package fileio

import (
	"context"
	"fmt"

	"github.com/arloliu/go-rogue/tree"
)

// ReaderDevice exposes a StreamReader as a device with the variable DataFile, the commands Open
// and Close, and the read-only variable IsOpen.
type ReaderDevice struct {
	*tree.Device

	r        StreamReader
	dataFile *tree.Variable
	isOpen   *tree.Variable
}

// NewReaderDevice creates a device driving r. opts are applied to the device.
func NewReaderDevice(name string, r StreamReader, opts ...tree.Option) (*ReaderDevice, error) {
	if r == nil {
		return nil, ErrReaderNil
	}

	opts = append([]tree.Option{tree.WithDescription("Stream Reader")}, opts...)
	dev, err := tree.NewDevice(name, opts...)
	if err != nil {
		return nil, err
	}
	rd := &ReaderDevice{Device: dev, r: r}

	rd.dataFile, err = tree.NewVariable("DataFile", tree.WithDescription("Data File"), tree.WithBase(tree.BaseString))
	if err != nil {
		return nil, err
	}
	rd.isOpen, err = tree.NewVariable("IsOpen",
		tree.WithDescription("Data file is open."),
		tree.WithBase(tree.BaseBool),
		tree.WithMode(tree.RO),
		tree.WithGetter(func() (any, error) { return r.IsOpen(), nil }),
	)
	if err != nil {
		return nil, err
	}
	openCmd, err := tree.NewCommand("Open", rd.open, tree.WithDescription("Open data file."))
	if err != nil {
		return nil, err
	}
	closeCmd, err := tree.NewCommand("Close", rd.close, tree.WithDescription("Close data file."))
	if err != nil {
		return nil, err
	}

	if err := dev.Add(rd.dataFile, openCmd, closeCmd, rd.isOpen); err != nil {
		return nil, err
	}

	return rd, nil
}

// Reader returns the wrapped reader.
func (rd *ReaderDevice) Reader() StreamReader {
	return rd.r
}

func (rd *ReaderDevice) open(ctx context.Context, _ any) (any, error) {
	path, _ := rd.dataFile.Value().(string)
	if path == "" {
		return nil, ErrNoDataFile
	}
	if err := rd.r.Open(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	_, err := rd.isOpen.Get(ctx)

	return nil, err
}

func (rd *ReaderDevice) close(ctx context.Context, _ any) (any, error) {
	if err := rd.r.Close(); err != nil {
		return nil, err
	}
	_, err := rd.isOpen.Get(ctx)

	return nil, err
}
