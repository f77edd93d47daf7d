package device

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/intstack/intstack/ipc/uds"
	"github.com/intstack/intstack/stack"
)

// Server serves one shared *stack.Stack on a unix domain socket. Any number
// of sessions may be open at once; the stack outlives every session.
type Server struct {
	stk        *stack.Stack
	socketAddr string

	udsServ *uds.Server
	watcher *fsnotify.Watcher
	noWatch bool

	closeOnce sync.Once
	closed    chan struct{}
	sessions  sync.WaitGroup
}

// Option provides an optional argument to New().
type Option func(s *Server)

// NoSocketWatch disables the fsnotify watch that shuts the server down when
// its socket file is removed.
func NoSocketWatch() Option {
	return func(s *Server) {
		s.noWatch = true
	}
}

// New creates a Server listening at socketAddr and begins serving stk.
func New(socketAddr string, stk *stack.Stack, options ...Option) (*Server, error) {
	udsServ, err := uds.NewServer(socketAddr, 0770)
	if err != nil {
		return nil, err
	}

	s := &Server{
		stk:        stk,
		socketAddr: socketAddr,
		udsServ:    udsServ,
		closed:     make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}

	if !s.noWatch {
		if err := s.watchSocket(); err != nil {
			udsServ.Close()
			return nil, err
		}
	}

	go s.serve()
	return s, nil
}

// Closed returns a channel that yields the server's final status once it
// stops serving.
func (s *Server) Closed() chan error {
	return s.udsServ.Closed()
}

// Close stops the server. The stack itself is not touched; it belongs to the
// caller.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.watcher != nil {
			s.watcher.Close()
		}
		err = s.udsServ.Close()
	})
	return err
}

// watchSocket closes the server when the socket file disappears, the moral
// equivalent of the device node being removed. The watch is on the directory
// because watching the socket file itself stops at the first rename.
func (s *Server) watchSocket() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create socket watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.socketAddr)); err != nil {
		watcher.Close()
		return fmt.Errorf("could not watch socket directory: %w", err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.socketAddr {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Warningf("device: socket file %s was removed, shutting down", s.socketAddr)
					s.Close()
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("device: socket watcher: %s", err)
			case <-s.closed:
				return
			}
		}
	}()
	return nil
}

func (s *Server) serve() {
	for conn := range s.udsServ.Conn() {
		conn := conn
		s.sessions.Add(1)
		go s.serveConn(&conn)
	}
	s.sessions.Wait()
}

// serveConn answers one session. A session failure only ends that session;
// the stack and every other session carry on.
func (s *Server) serveConn(conn *uds.Conn) {
	defer s.sessions.Done()
	defer conn.Close()

	sess := uuid.New()
	log.Infof("device: session %s opened by pid %s", sess, conn.Cred.PID)

	for {
		req, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Errorf("device: session %s: bad request: %s", sess, err)
			}
			break
		}

		if err := writeFrame(conn, s.handle(sess, req)); err != nil {
			log.Errorf("device: session %s: cannot write response: %s", sess, err)
			break
		}
	}

	log.Infof("device: session %s closed", sess)
}

// handle runs a single request against the stack and builds the response
// payload. Argument validation happens here; the stack only ever sees
// well-formed calls.
func (s *Server) handle(sess string, req []byte) []byte {
	op, body := req[0], req[1:]

	switch op {
	case opPush:
		if len(body) != ValueSize {
			return []byte{statusInvalidArgument}
		}
		err := s.stk.Push(int32(ordering.Uint32(body)))
		switch {
		case err == nil:
			return []byte{statusOK}
		case errors.Is(err, stack.StackFull):
			return []byte{statusFull}
		default:
			log.Errorf("device: session %s: push: %s", sess, err)
			return []byte{statusInvalidArgument}
		}

	case opPop:
		if len(body) != 4 {
			return []byte{statusInvalidArgument}
		}
		if ordering.Uint32(body) < ValueSize {
			// The caller's receive buffer cannot hold one value.
			return []byte{statusInvalidArgument}
		}
		v, ok := s.stk.Pop()
		if !ok {
			return []byte{statusEmpty}
		}
		resp := make([]byte, 1+ValueSize)
		resp[0] = statusOK
		ordering.PutUint32(resp[1:], uint32(v))
		return resp

	case opSetSize:
		if len(body) != 4 {
			return []byte{statusInvalidArgument}
		}
		n := ordering.Uint32(body)
		err := s.stk.Resize(n)
		switch {
		case err == nil:
			log.Infof("device: session %s resized stack to %d entries", sess, n)
			return []byte{statusOK}
		case errors.Is(err, stack.InvalidSize):
			return []byte{statusInvalidSize}
		case errors.Is(err, stack.OutOfMemory):
			return []byte{statusNoMemory}
		default:
			log.Errorf("device: session %s: resize: %s", sess, err)
			return []byte{statusInvalidArgument}
		}
	}

	log.Infof("device: session %s sent unknown op %#x", sess, op)
	return []byte{statusUnsupported}
}
