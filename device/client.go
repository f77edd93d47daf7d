package device

import (
	"fmt"
	"os"
	"sync"

	"github.com/intstack/intstack/ipc/uds"
)

// Client is a session against a device Server. Opening a session has no
// stack-level effect and closing one leaves the stack as it was. A Client is
// safe for concurrent use; requests are serialized over the one connection.
type Client struct {
	conn *uds.Client

	mu sync.Mutex // One request/response in flight at a time.
}

// Dial opens a session with the server at socketAddr.
func Dial(socketAddr string) (*Client, error) {
	conn, err := uds.NewClient(socketAddr, []os.FileMode{0770, 1770})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) roundTrip(req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, req); err != nil {
		return nil, fmt.Errorf("device: cannot send request: %w", err)
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("device: cannot read response: %w", err)
	}
	return resp, nil
}

// Push writes v onto the shared stack. ErrFull means the stack was at
// capacity and nothing changed.
func (c *Client) Push(v int32) error {
	req := make([]byte, 1+ValueSize)
	req[0] = opPush
	ordering.PutUint32(req[1:], uint32(v))

	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	return statusErr(resp[0])
}

// Pop reads the top value off the shared stack. ok is false with a nil error
// when the stack was empty; that is end-of-data, not a fault.
func (c *Client) Pop() (v int32, ok bool, err error) {
	req := make([]byte, 1+4)
	req[0] = opPop
	ordering.PutUint32(req[1:], ValueSize)

	resp, err := c.roundTrip(req)
	if err != nil {
		return 0, false, err
	}

	switch resp[0] {
	case statusOK:
		if len(resp) != 1+ValueSize {
			return 0, false, fmt.Errorf("device: pop response had %d data bytes, want %d", len(resp)-1, ValueSize)
		}
		return int32(ordering.Uint32(resp[1:])), true, nil
	case statusEmpty:
		return 0, false, nil
	}
	return 0, false, statusErr(resp[0])
}

// SetSize asks the server to resize the shared stack to n entries.
func (c *Client) SetSize(n uint32) error {
	req := make([]byte, 1+4)
	req[0] = opSetSize
	ordering.PutUint32(req[1:], n)

	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	return statusErr(resp[0])
}

// Close ends the session. The stack outlives it.
func (c *Client) Close() error {
	return c.conn.Close()
}
