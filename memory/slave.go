package memory

import "context"

// Slave answers memory transactions.
type Slave interface {
	// MinAccess returns the address alignment granularity in bytes.
	MinAccess() uint32
	// MaxAccess returns the largest transaction size in bytes.
	MaxAccess() uint32
	// DoTransaction services tx. The slave must resolve tx exactly once, either before returning
	// or later from another goroutine.
	DoTransaction(tx *Transaction)
}

// ReadBytes issues a blocking read of size bytes at address.
func ReadBytes(ctx context.Context, slave Slave, address uint64, size uint32) ([]byte, error) {
	if slave == nil {
		return nil, ErrSlaveNil
	}

	tx := NewTransaction(Read, address, size, nil)
	slave.DoTransaction(tx)
	if err := tx.Wait(ctx); err != nil {
		return nil, err
	}

	data := tx.Data()
	if data == nil {
		data = make([]byte, size)
	}

	return data, nil
}

// WriteBytes issues a blocking write of data at address.
func WriteBytes(ctx context.Context, slave Slave, address uint64, data []byte) error {
	if slave == nil {
		return ErrSlaveNil
	}

	tx := NewTransaction(Write, address, uint32(len(data)), data) //nolint:gosec
	slave.DoTransaction(tx)

	return tx.Wait(ctx)
}
