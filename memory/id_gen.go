package memory

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
)

// txIDGenerator hands out process-wide unique transaction IDs.
//
// The starting ID is random so that IDs from two processes sharing a bridge are unlikely to
// collide right after start up.
type txIDGenerator struct {
	id atomic.Uint32
}

func newTxIDGenerator() *txIDGenerator {
	inst := &txIDGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return inst
	}
	inst.id.Store(binary.LittleEndian.Uint32(buf[:]))

	return inst
}

func (g *txIDGenerator) next() uint32 {
	return g.id.Add(1)
}

var (
	genInst *txIDGenerator
	genOnce sync.Once
)

// GenerateTransactionID returns a unique transaction ID.
func GenerateTransactionID() uint32 {
	genOnce.Do(func() {
		genInst = newTxIDGenerator()
	})

	return genInst.next()
}
