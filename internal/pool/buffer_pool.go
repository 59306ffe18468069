package pool

import "sync"

// maxPooledBuffer bounds the capacity of buffers kept in the pool, larger buffers are left to
// the garbage collector.
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{New: func() any {
	b := make([]byte, 0, 512)
	return &b
}}

// GetBuffer returns a zero length byte slice with at least size bytes of capacity.
func GetBuffer(size int) *[]byte {
	bp, _ := bufferPool.Get().(*[]byte)
	if cap(*bp) < size {
		b := make([]byte, 0, size)
		return &b
	}
	*bp = (*bp)[:0]

	return bp
}

// PutBuffer returns a buffer obtained by GetBuffer to the pool.
func PutBuffer(bp *[]byte) {
	if bp == nil || cap(*bp) > maxPooledBuffer {
		return
	}
	bufferPool.Put(bp)
}
