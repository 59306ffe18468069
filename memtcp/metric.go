package memtcp

import "sync/atomic"

// ConnectionMetrics contains atomic metrics of a server or client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// FrameSendCount indicates the number of frames written.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of frames read and decoded.
	FrameRecvCount atomic.Uint64
	// FrameErrCount indicates the number of frames that failed to be read, decoded or written.
	FrameErrCount atomic.Uint64
	// TimeoutCount indicates the number of transactions resolved with a timeout.
	TimeoutCount atomic.Uint64
	// InflightCount indicates the number of transactions waiting for a reply.
	InflightCount atomic.Int64
	// ConnCount indicates the number of open TCP connections.
	ConnCount atomic.Int32
}

func (m *ConnectionMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *ConnectionMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *ConnectionMetrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *ConnectionMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *ConnectionMetrics) incInflightCount() {
	m.InflightCount.Add(1)
}

func (m *ConnectionMetrics) decInflightCount() {
	m.InflightCount.Add(-1)
}
