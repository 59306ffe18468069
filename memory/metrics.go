package memory

import "sync/atomic"

// Metrics contains atomic counters of a slave.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ReadCount indicates the number of successful read and verify transactions.
	ReadCount atomic.Uint64
	// WriteCount indicates the number of successful write and post transactions.
	WriteCount atomic.Uint64
	// AddressErrCount indicates the number of transactions rejected for misalignment.
	AddressErrCount atomic.Uint64
	// SizeErrCount indicates the number of transactions rejected for exceeding the maximum size.
	SizeErrCount atomic.Uint64
	// BytesRead indicates the number of bytes returned by read transactions.
	BytesRead atomic.Uint64
	// BytesWritten indicates the number of bytes stored by write transactions.
	BytesWritten atomic.Uint64
}

func (m *Metrics) observe(tx *Transaction, status Status) {
	switch status {
	case Success:
		if tx.Type().IsWrite() {
			m.WriteCount.Add(1)
			m.BytesWritten.Add(uint64(tx.Size()))
		} else {
			m.ReadCount.Add(1)
			m.BytesRead.Add(uint64(tx.Size()))
		}
	case AddressError:
		m.AddressErrCount.Add(1)
	case SizeError:
		m.SizeErrCount.Add(1)
	}
}
