/*
Package uds provides a server and client for Unix Domain Sockets. This
provides convenience around the "net" package for the socket file setup and
teardown and surfaces the peer credentials of every connecting process.

One socket path here plays the role a device node would: a single well-known
file that any local process can open to reach a shared service. The package
takes the stance that Read() and Write() calls by default block until the
socket is closed; use the deadline helpers when a timeout is wanted.

The package currently only works for Linux/Darwin.

Unix/Linux Note:
	Socket paths have a length limit that is different from the normal
	filesystem; on Linux it is 108 characters. That is used as the limit
	everywhere so errors stay understandable.
*/
package uds

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"
	"syscall"
	"time"

	log "github.com/golang/glog"
)

// ID represents a numeric ID. Go in various libraries stores IDs such as Uid
// or Gid as strings, while OS level libraries use int or int32. This unifies
// them so translation is in one place.
type ID int

// String returns the ID as a string.
func (i ID) String() string {
	return strconv.Itoa(int(i))
}

// Int returns the ID as an int.
func (i ID) Int() int {
	return int(i)
}

// Cred provides the credentials of a local process on one side of a socket.
type Cred struct {
	// PID is the process id of the process.
	PID ID
	// UID is the user id of the process.
	UID ID
	// GID is the group id of the process.
	GID ID
}

// Current provides information about the current process and user.
func Current() (Cred, *user.User, error) {
	u, err := user.Current()
	if err != nil {
		return Cred{}, nil, err
	}

	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)

	cred := Cred{
		PID: ID(os.Getpid()),
		UID: ID(uid),
		GID: ID(gid),
	}
	return cred, u, nil
}

// Conn represents a UDS connection from a client. Must take a pointer if
// this will be copied after being received.
type Conn struct {
	// Cred is the credentials of the process on the other end.
	Cred Cred

	conn          *net.UnixConn
	readDeadline  time.Time
	writeDeadline time.Time
}

// Read implements io.Reader.Read(). This has an infinite read timeout unless
// ReadDeadline()/ReadTimeout() was called before it.
func (c *Conn) Read(b []byte) (int, error) {
	c.conn.SetReadDeadline(c.readDeadline)
	c.readDeadline = time.Time{}
	return c.conn.Read(b)
}

// ReadByte implements io.ByteReader.
func (c *Conn) ReadByte() (byte, error) {
	b := make([]byte, 1)
	if _, err := c.Read(b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadTimeout causes the next Read() call to timeout at time.Now().Add(timeout).
// Must be used before every Read() call that you want to have a timeout.
func (c *Conn) ReadTimeout(timeout time.Duration) {
	c.readDeadline = time.Now().Add(timeout)
}

// ReadDeadline causes the next Read() call to timeout at t.
func (c *Conn) ReadDeadline(t time.Time) {
	c.readDeadline = t
}

// WriteTimeout causes the next Write() call to timeout at time.Now().Add(timeout).
// Must be used before every Write() call that you want to have a timeout.
func (c *Conn) WriteTimeout(timeout time.Duration) {
	c.writeDeadline = time.Now().Add(timeout)
}

// WriteDeadline causes the next Write() call to timeout at t.
func (c *Conn) WriteDeadline(t time.Time) {
	c.writeDeadline = t
}

// Write implements io.Writer.Write(). This has an infinite write timeout
// unless WriteDeadline()/WriteTimeout() was called before it.
func (c *Conn) Write(b []byte) (int, error) {
	c.conn.SetWriteDeadline(c.writeDeadline)
	c.writeDeadline = time.Time{}
	return c.conn.Write(b)
}

// Close implements io.Closer.Close().
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Server provides a Unix Domain Socket server that clients can connect on.
type Server struct {
	l      *net.UnixListener
	errCh  chan error
	connCh chan Conn
}

// NewServer creates a new UDS server that creates and listens to the file at
// socketAddr with fileMode as its mode (suggest 0770). If socketAddr already
// exists this will attempt to delete it first.
func NewServer(socketAddr string, fileMode os.FileMode) (*Server, error) {
	if len([]rune(socketAddr)) >= 108 {
		return nil, fmt.Errorf("socketAddr(%s) path length must be 108 characters or less", socketAddr)
	}

	if err := os.Remove(socketAddr); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("unable to create server socket(%s), could not remove old socket file: %s", socketAddr, err)
		}
	}

	// This is sketchy, but it is how its done:
	// https://github.com/golang/go/issues/11822
	syscall.Umask(0770)

	l, err := net.Listen("unix", socketAddr)
	if err != nil {
		return nil, fmt.Errorf("unable to create server socket(%s): %w", socketAddr, err)
	}

	if err := os.Chmod(socketAddr, fileMode); err != nil {
		l.Close()
		return nil, fmt.Errorf("unable to create server socket(%s), could not chmod the socket file: %s", socketAddr, err)
	}

	serv := &Server{
		l:      l.(*net.UnixListener),
		errCh:  make(chan error, 1),
		connCh: make(chan Conn, 1),
	}
	go serv.accept()
	return serv, nil
}

// Conn returns a channel that is populated with connections to the server.
// The channel is closed when the server is no longer serving.
func (s *Server) Conn() chan Conn {
	return s.connCh
}

// Close stops listening for connections on the socket.
func (s *Server) Close() error {
	return s.l.Close()
}

// Closed returns a channel that returns an error when the server stops
// serving. This can be because you called Close(), the socket had a read
// error or the socket file was removed. An io.EOF error will not be returned
// (as this is normal operation). Normally this is used to block and return
// the final status of the server.
func (s *Server) Closed() chan error {
	return s.errCh
}

func (s *Server) accept() {
	defer close(s.connCh)
	defer close(s.errCh)
	for {
		conn, err := s.l.Accept()
		if err != nil {
			s.l.Close()
			if err != io.EOF {
				// This seems to be the error that happens once a listener is
				// closed for a UDS listener.
				var opErr *net.OpError
				if errors.As(err, &opErr) && opErr.Op != "accept" {
					s.errCh <- err
				}
			}
			return
		}
		uc := conn.(*net.UnixConn)
		cred, err := readCreds(uc)
		if err != nil {
			log.Errorf("unable to read creds from socket client, rejecting conn: %s", err)
			conn.Close()
			continue
		}
		s.connCh <- Conn{conn: uc, Cred: cred}
	}
}

// Client provides a UDS client for connecting to a UDS server.
type Client struct {
	conn                        *net.UnixConn
	readDeadline, writeDeadline time.Time
}

// NewClient creates a new UDS client to the socket at socketAddr. fileModes,
// if not empty, is the list of acceptable modes the socket file may be in
// (suggest 0770, 1770).
func NewClient(socketAddr string, fileModes []os.FileMode) (*Client, error) {
	stats, err := os.Stat(socketAddr)
	if err != nil {
		return nil, fmt.Errorf("could not stat socket address(%s): %w", socketAddr, err)
	}

	if len(fileModes) > 0 {
		ok := false
		for _, m := range fileModes {
			if stats.Mode().Perm() == m.Perm() {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("socket address(%s) had incorrect mode(%v)", socketAddr, stats.Mode())
		}
	}

	conn, err := net.Dial("unix", socketAddr)
	if err != nil {
		return nil, fmt.Errorf("unable to dial socket(%s): %w", socketAddr, err)
	}

	return &Client{conn: conn.(*net.UnixConn)}, nil
}

// Read implements io.Reader.Read(). This will block until it has read into
// the buffer. Use ReadDeadline()/ReadTimeout() before every Read() you want
// to time out.
func (c *Client) Read(b []byte) (int, error) {
	c.conn.SetReadDeadline(c.readDeadline)
	c.readDeadline = time.Time{}
	return c.conn.Read(b)
}

// ReadByte implements io.ByteReader.
func (c *Client) ReadByte() (byte, error) {
	b := make([]byte, 1)
	if _, err := c.Read(b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadTimeout causes the next Read() call to timeout at time.Now().Add(timeout).
func (c *Client) ReadTimeout(timeout time.Duration) {
	c.readDeadline = time.Now().Add(timeout)
}

// ReadDeadline causes the next Read() call to timeout at t.
func (c *Client) ReadDeadline(t time.Time) {
	c.readDeadline = t
}

// WriteTimeout causes the next Write() call to timeout at time.Now().Add(timeout).
func (c *Client) WriteTimeout(timeout time.Duration) {
	c.writeDeadline = time.Now().Add(timeout)
}

// WriteDeadline causes the next Write() call to timeout at t.
func (c *Client) WriteDeadline(t time.Time) {
	c.writeDeadline = t
}

// Write implements io.Writer.Write(). This will block until it has written
// the buffer. Use WriteDeadline()/WriteTimeout() before every Write() you
// want to time out.
func (c *Client) Write(b []byte) (int, error) {
	c.conn.SetWriteDeadline(c.writeDeadline)
	c.writeDeadline = time.Time{}
	return c.conn.Write(b)
}

// Close implements io.Closer.Close().
func (c *Client) Close() error {
	return c.conn.Close()
}
