/*
Package stack implements a bounded LIFO queue (known as a stack) of int32
values shared by any number of concurrent callers. The stack holds a fixed
number of entries set at construction time and changeable afterwards with
Resize(). All operations are thread-safe.

Usage:
  s, err := stack.New(stack.Capacity(4))
  if err != nil {
    // Do something.
  }

  if err := s.Push(42); err != nil {
    // Do something. err == stack.StackFull means the stack is at capacity.
  }

  v, ok := s.Pop()
  if !ok {
    // The stack was empty.
  }

  fmt.Println(v) // Prints 42

Resize() replaces the buffer in one shot. Shrinking below the current
occupancy drops the most recently pushed entries; the bottom of the stack
always survives:
  s.Push(1); s.Push(2); s.Push(3)
  s.Resize(2)
  v, _ = s.Pop() // v == 2
*/
package stack

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of entries a Stack created without the
// Capacity() option can hold.
const DefaultCapacity = 1024

var (
	// StackFull indicates the stack was at capacity and no entries can be
	// pushed until a Pop() or a growing Resize() occurs.
	StackFull = errors.New("stack is at capacity")

	// InvalidSize indicates a Resize() to zero entries, which is never legal.
	InvalidSize = errors.New("stack capacity must be at least 1")

	// OutOfMemory indicates Resize() could not allocate the replacement
	// buffer. The stack is left exactly as it was.
	OutOfMemory = errors.New("cannot allocate stack buffer")

	// StackClosed indicates a use of the Stack after Close().
	StackClosed = errors.New("stack is closed")
)

// Stack implements a bounded LIFO queue of int32 values. There is one Stack
// per system and every caller shares it; a zero value is not usable, use
// New(). All methods may be called concurrently.
type Stack struct {
	mu sync.Mutex // Protects everything below.

	buf    []int32 // len(buf) is the capacity.
	top    int     // Count of valid entries, buf[top-1] is the newest.
	closed bool

	// alloc makes the buffers. It exists so the allocation-failure path of
	// Resize() can be exercised; outside of tests it is always allocBuffer.
	alloc func(n int) ([]int32, error)

	initCap int // Only consulted by New().
}

// Option provides an optional argument to New().
type Option func(s *Stack)

// Capacity sets how many entries the Stack holds before Push() returns
// StackFull. n must be at least 1. If not given, DefaultCapacity is used.
func Capacity(n int) Option {
	return func(s *Stack) {
		s.initCap = n
	}
}

func allocBuffer(n int) ([]int32, error) {
	return make([]int32, n), nil
}

// New creates a new instance of Stack.
func New(options ...Option) (*Stack, error) {
	s := &Stack{initCap: DefaultCapacity, alloc: allocBuffer}
	for _, o := range options {
		o(s)
	}

	if s.initCap < 1 {
		return nil, fmt.Errorf("stack capacity must be at least 1, got %d", s.initCap)
	}

	buf, err := s.alloc(s.initCap)
	if err != nil {
		return nil, fmt.Errorf("new stack with %d entries: %w", s.initCap, OutOfMemory)
	}
	s.buf = buf
	return s, nil
}

// Push adds v to the top of the stack. If the stack is at capacity this
// returns StackFull and nothing changes.
func (s *Stack) Push(v int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return StackClosed
	}
	if s.top == len(s.buf) {
		return StackFull
	}
	s.buf[s.top] = v
	s.top++
	return nil
}

// Pop removes and returns the most recently pushed value. ok is false when
// the stack holds no entries; that is the normal end-of-data signal, not a
// fault.
func (s *Stack) Pop() (v int32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.top == 0 {
		return 0, false
	}
	s.top--
	return s.buf[s.top], true
}

// Resize changes the capacity to n entries. When n is smaller than the
// current occupancy the newest entries are dropped so that exactly n remain;
// the bottom of the stack keeps its indices. The swap is all-or-nothing: if
// the replacement buffer cannot be allocated, Resize returns an error
// wrapping OutOfMemory and the stack is untouched.
func (s *Stack) Resize(n uint32) error {
	if n == 0 {
		return InvalidSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return StackClosed
	}

	buf, err := s.alloc(int(n))
	if err != nil {
		return fmt.Errorf("resize stack to %d entries: %w", n, OutOfMemory)
	}
	if s.top > int(n) {
		s.top = int(n)
	}
	copy(buf, s.buf[:s.top])
	s.buf = buf
	return nil
}

// Len returns the current number of entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top
}

// Cap returns the current capacity.
func (s *Stack) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Close releases the buffer. Further Push()/Resize() calls return
// StackClosed and Pop() reports empty. Close is idempotent.
func (s *Stack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.buf = nil
	s.top = 0
	return nil
}
