package memtcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/arloliu/go-rogue/internal/pool"
	"github.com/arloliu/go-rogue/memory"
)

const (
	// HeaderSize is the number of bytes between the length field and the payload.
	HeaderSize = 21
	lengthSize = 4
)

// Frame is a transaction request or reply on the wire.
type Frame struct {
	ID      uint32
	Type    memory.Type
	Status  memory.Status
	Address uint64
	Size    uint32
	Data    []byte
}

// RequestFrame builds the request frame of tx. Only write transactions carry a payload.
func RequestFrame(tx *memory.Transaction) *Frame {
	f := &Frame{
		ID:      tx.ID(),
		Type:    tx.Type(),
		Address: tx.Address(),
		Size:    tx.Size(),
	}
	if tx.Type().IsWrite() {
		f.Data = tx.Data()
	}

	return f
}

// ReplyFrame builds the reply frame of a resolved tx. Successful reads carry exactly Size bytes.
func ReplyFrame(tx *memory.Transaction) *Frame {
	f := &Frame{
		ID:      tx.ID(),
		Type:    tx.Type(),
		Status:  tx.Status(),
		Address: tx.Address(),
		Size:    tx.Size(),
	}
	if f.Status == memory.Success && !tx.Type().IsWrite() && f.Size > 0 {
		f.Data = tx.Data()
		if f.Data == nil {
			f.Data = make([]byte, f.Size)
		}
	}

	return f
}

// Transaction creates a transaction from a request frame, keeping the remote ID.
func (f *Frame) Transaction() *memory.Transaction {
	return memory.NewTransactionWithID(f.ID, f.Type, f.Address, f.Size, f.Data)
}

// checkRequest rejects a write request whose payload is not exactly Size bytes.
// Replies are never checked, a write reply carries no data.
func (f *Frame) checkRequest() error {
	if f.Type.IsWrite() && uint64(len(f.Data)) != uint64(f.Size) {
		return fmt.Errorf("%w: write data %d, size %d", ErrFrameDataSize, len(f.Data), f.Size)
	}

	return nil
}

// Len returns the value of the length field of the encoded frame.
func (f *Frame) Len() int {
	return HeaderSize + len(f.Data)
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame(id=%d, type=%s, status=%s, address=0x%08x, size=%d, data=%d)",
		f.ID, f.Type, f.Status, f.Address, f.Size, len(f.Data))
}

// EncodeFrame returns the encoded frame including the length field.
func EncodeFrame(f *Frame) []byte {
	return AppendFrame(make([]byte, 0, lengthSize+f.Len()), f)
}

// AppendFrame appends the encoded frame to dst and returns the extended buffer.
func AppendFrame(dst []byte, f *Frame) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.Len())) //nolint:gosec
	dst = binary.BigEndian.AppendUint32(dst, f.ID)
	dst = append(dst, byte(f.Type))
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.Status))
	dst = binary.BigEndian.AppendUint64(dst, f.Address)
	dst = binary.BigEndian.AppendUint32(dst, f.Size)

	return append(dst, f.Data...)
}

// DecodeFrame decodes the bytes following the length field.
// length is the value of the length field and must equal len(buf).
func DecodeFrame(length uint32, buf []byte) (*Frame, error) {
	if length < HeaderSize || len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: length %d", ErrFrameTooShort, length)
	}
	if int(length) != len(buf) {
		return nil, fmt.Errorf("frame length %d does not match buffer length %d", length, len(buf))
	}

	f := &Frame{
		ID:      binary.BigEndian.Uint32(buf[0:4]),
		Type:    memory.Type(buf[4]),
		Status:  memory.Status(binary.BigEndian.Uint32(buf[5:9])),
		Address: binary.BigEndian.Uint64(buf[9:17]),
		Size:    binary.BigEndian.Uint32(buf[17:21]),
	}

	if f.Type < memory.Read || f.Type > memory.Verify {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, uint8(f.Type))
	}

	data := buf[HeaderSize:]
	if len(data) != 0 && uint64(len(data)) != uint64(f.Size) {
		return nil, fmt.Errorf("%w: data %d, size %d", ErrFrameDataSize, len(data), f.Size)
	}
	if len(data) > 0 {
		f.Data = data
	}

	return f, nil
}

// frameReader reads and decodes frames from a net.Conn.
//
// The length field is read without a deadline so idle connections stay open. The rest of the frame
// must arrive within timeout.
//
// frameReader is not goroutine-safe, each connection owns one.
type frameReader struct {
	timeout      time.Duration
	maxFrameSize uint32
	lenBuf       [lengthSize]byte
}

// ReadFrame reads one complete frame from conn.
func (fr *frameReader) ReadFrame(conn net.Conn) (*Frame, error) {
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clear read deadline: %w", err)
	}

	if _, err := io.ReadFull(conn, fr.lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.lenBuf[:])
	if length < HeaderSize {
		return nil, fmt.Errorf("%w: length %d", ErrFrameTooShort, length)
	}
	if length > fr.maxFrameSize {
		return nil, fmt.Errorf("%w: length %d, maximum %d", ErrFrameTooLarge, length, fr.maxFrameSize)
	}

	if err := conn.SetReadDeadline(time.Now().Add(fr.timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	f, err := DecodeFrame(length, body)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	return f, nil
}

// writeFrame writes f to conn within timeout.
func writeFrame(conn net.Conn, f *Frame, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	bp := pool.GetBuffer(lengthSize + f.Len())
	*bp = AppendFrame(*bp, f)
	_, err := conn.Write(*bp)
	pool.PutBuffer(bp)

	return err
}
