/*
Package device exposes one shared stack.Stack to local processes over a unix
domain socket, with the semantics of a character device: writing pushes,
reading pops, and a control request changes the capacity.

Every message is a chunk: a varint length followed by the payload. A request
payload is an op byte followed by the op's body; a response payload is a
status byte followed by any data. Values are 4-byte little-endian signed
integers and cross the socket by value only.

Server side:
  stk, err := stack.New()
  if err != nil {
    // Do something.
  }

  serv, err := device.New("/tmp/int_stack.sock", stk)
  if err != nil {
    // Do something.
  }
  err = <-serv.Closed()

Client side:
  c, err := device.Dial("/tmp/int_stack.sock")
  if err != nil {
    // Do something.
  }
  defer c.Close()

  if err := c.Push(42); err != nil {
    // Do something. errors.Is(err, device.ErrFull) means the stack is full.
  }

  v, ok, err := c.Pop()
*/
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ordering is the byte order of every multi-byte integer on the wire.
var ordering = binary.LittleEndian

// ValueSize is the wire size of one stack entry: a 4-byte signed integer.
const ValueSize = 4

// Request op codes.
const (
	opPush    = byte(1)
	opPop     = byte(2)
	opSetSize = byte(3)
)

// Response status codes.
const (
	statusOK              = byte(0)
	statusEmpty           = byte(1)
	statusInvalidArgument = byte(2)
	statusFull            = byte(3)
	statusInvalidSize     = byte(4)
	statusNoMemory        = byte(5)
	statusUnsupported     = byte(6)
)

// Errors surfaced by Client, mapped from response statuses.
var (
	// ErrInvalidArgument indicates a request the adapter rejected before it
	// reached the stack, such as a push body that is not 4 bytes.
	ErrInvalidArgument = errors.New("device: invalid argument")

	// ErrFull indicates a push against a stack at capacity. Retry after a
	// pop or a growing set-size.
	ErrFull = errors.New("device: stack is at capacity")

	// ErrInvalidSize indicates a set-size request for zero entries.
	ErrInvalidSize = errors.New("device: requested capacity is invalid")

	// ErrNoMemory indicates the server could not allocate the resized
	// buffer; the stack is unchanged.
	ErrNoMemory = errors.New("device: out of memory")

	// ErrUnsupported indicates an op code the server does not implement.
	ErrUnsupported = errors.New("device: operation not supported")
)

func statusErr(status byte) error {
	switch status {
	case statusOK, statusEmpty:
		return nil
	case statusInvalidArgument:
		return ErrInvalidArgument
	case statusFull:
		return ErrFull
	case statusInvalidSize:
		return ErrInvalidSize
	case statusNoMemory:
		return ErrNoMemory
	case statusUnsupported:
		return ErrUnsupported
	}
	return fmt.Errorf("device: unknown response status %#x", status)
}

// maxFrame bounds any frame on the wire. The largest legal payload is an op
// byte plus a 4-byte body, so anything near this limit is garbage.
const maxFrame = 64

type byteReader interface {
	io.Reader
	io.ByteReader
}

// readFrame reads the next varint-prefixed payload from r.
func readFrame(r byteReader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size == 0 || size > maxFrame {
		return nil, fmt.Errorf("frame size %d outside [1, %d]", size, maxFrame)
	}

	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("could not read full frame: %w", err)
	}
	return b, nil
}

// writeFrame writes payload to w with its varint length prefix.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
