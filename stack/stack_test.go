package stack

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

// popAll drains the stack and returns the values in pop order.
func popAll(s *Stack) []int32 {
	var out []int32
	for {
		v, ok := s.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestLIFORoundTrip(t *testing.T) {
	s, err := New(Capacity(4))
	if err != nil {
		t.Fatalf("TestLIFORoundTrip: %s", err)
	}

	for _, v := range []int32{1, 2, 3, 4} {
		if err := s.Push(v); err != nil {
			t.Fatalf("TestLIFORoundTrip: on entry %d: %v", v, err)
		}
	}

	if err := s.Push(5); err != StackFull {
		t.Fatalf("TestLIFORoundTrip: fifth push: got err == %v, want StackFull", err)
	}

	want := []int32{4, 3, 2, 1}
	if diff := pretty.Compare(want, popAll(s)); diff != "" {
		t.Errorf("TestLIFORoundTrip: -want/+got:\n%s", diff)
	}

	if _, ok := s.Pop(); ok {
		t.Errorf("TestLIFORoundTrip: pop on empty stack: got ok == true, want false")
	}
}

func TestPushFullLeavesStateUnchanged(t *testing.T) {
	s, err := New(Capacity(2))
	if err != nil {
		t.Fatalf("TestPushFullLeavesStateUnchanged: %s", err)
	}
	s.Push(10)
	s.Push(20)

	if err := s.Push(30); err != StackFull {
		t.Fatalf("TestPushFullLeavesStateUnchanged: got err == %v, want StackFull", err)
	}

	if s.Len() != 2 || s.Cap() != 2 {
		t.Fatalf("TestPushFullLeavesStateUnchanged: len/cap: got %d/%d, want 2/2", s.Len(), s.Cap())
	}
	if diff := pretty.Compare([]int32{10, 20}, s.buf); diff != "" {
		t.Errorf("TestPushFullLeavesStateUnchanged: buffer -want/+got:\n%s", diff)
	}
}

func TestPopEmpty(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("TestPopEmpty: %s", err)
	}

	for i := 0; i < 3; i++ {
		if v, ok := s.Pop(); ok || v != 0 {
			t.Fatalf("TestPopEmpty: got (%d, %v), want (0, false)", v, ok)
		}
	}
	if s.Len() != 0 || s.Cap() != DefaultCapacity {
		t.Errorf("TestPopEmpty: len/cap changed: got %d/%d", s.Len(), s.Cap())
	}
}

func TestResizeGrowPreservesEntries(t *testing.T) {
	s, err := New(Capacity(4))
	if err != nil {
		t.Fatalf("TestResizeGrowPreservesEntries: %s", err)
	}
	for _, v := range []int32{1, 2, 3} {
		s.Push(v)
	}

	if err := s.Resize(8); err != nil {
		t.Fatalf("TestResizeGrowPreservesEntries: %s", err)
	}
	if s.Cap() != 8 || s.Len() != 3 {
		t.Fatalf("TestResizeGrowPreservesEntries: len/cap: got %d/%d, want 3/8", s.Len(), s.Cap())
	}

	if diff := pretty.Compare([]int32{3, 2, 1}, popAll(s)); diff != "" {
		t.Errorf("TestResizeGrowPreservesEntries: -want/+got:\n%s", diff)
	}
}

func TestResizeShrinkTruncatesNewest(t *testing.T) {
	s, err := New(Capacity(4))
	if err != nil {
		t.Fatalf("TestResizeShrinkTruncatesNewest: %s", err)
	}
	for _, v := range []int32{1, 2, 3} {
		s.Push(v)
	}

	if err := s.Resize(2); err != nil {
		t.Fatalf("TestResizeShrinkTruncatesNewest: %s", err)
	}

	// Entry 3 was on top and must be the one dropped.
	if diff := pretty.Compare([]int32{2, 1}, popAll(s)); diff != "" {
		t.Errorf("TestResizeShrinkTruncatesNewest: -want/+got:\n%s", diff)
	}
}

func TestResizeZero(t *testing.T) {
	s, err := New(Capacity(4))
	if err != nil {
		t.Fatalf("TestResizeZero: %s", err)
	}
	s.Push(7)

	if err := s.Resize(0); err != InvalidSize {
		t.Fatalf("TestResizeZero: got err == %v, want InvalidSize", err)
	}
	if s.Cap() != 4 || s.Len() != 1 {
		t.Fatalf("TestResizeZero: len/cap: got %d/%d, want 1/4", s.Len(), s.Cap())
	}

	// The stack behaves as if the resize never happened.
	if err := s.Push(8); err != nil {
		t.Fatalf("TestResizeZero: push after failed resize: %s", err)
	}
	if diff := pretty.Compare([]int32{8, 7}, popAll(s)); diff != "" {
		t.Errorf("TestResizeZero: -want/+got:\n%s", diff)
	}
}

func TestResizeAllocFailure(t *testing.T) {
	s, err := New(Capacity(4))
	if err != nil {
		t.Fatalf("TestResizeAllocFailure: %s", err)
	}
	for _, v := range []int32{1, 2, 3} {
		s.Push(v)
	}

	s.alloc = func(n int) ([]int32, error) {
		return nil, fmt.Errorf("fake allocator is out of memory")
	}
	if err := s.Resize(1024); !errors.Is(err, OutOfMemory) {
		t.Fatalf("TestResizeAllocFailure: got err == %v, want OutOfMemory", err)
	}

	// All-or-nothing: the old buffer, capacity and occupancy are intact.
	if s.Cap() != 4 || s.Len() != 3 {
		t.Fatalf("TestResizeAllocFailure: len/cap: got %d/%d, want 3/4", s.Len(), s.Cap())
	}
	if diff := pretty.Compare([]int32{3, 2, 1}, popAll(s)); diff != "" {
		t.Errorf("TestResizeAllocFailure: -want/+got:\n%s", diff)
	}
}

func TestNewBadCapacity(t *testing.T) {
	if _, err := New(Capacity(0)); err == nil {
		t.Errorf("TestNewBadCapacity: New(Capacity(0)): got err == nil, want error")
	}
	if _, err := New(Capacity(-5)); err == nil {
		t.Errorf("TestNewBadCapacity: New(Capacity(-5)): got err == nil, want error")
	}
}

func TestClose(t *testing.T) {
	s, err := New(Capacity(4))
	if err != nil {
		t.Fatalf("TestClose: %s", err)
	}
	s.Push(1)

	if err := s.Close(); err != nil {
		t.Fatalf("TestClose: %s", err)
	}

	if err := s.Push(2); err != StackClosed {
		t.Errorf("TestClose: push after close: got err == %v, want StackClosed", err)
	}
	if _, ok := s.Pop(); ok {
		t.Errorf("TestClose: pop after close: got ok == true, want false")
	}
	if err := s.Resize(8); err != StackClosed {
		t.Errorf("TestClose: resize after close: got err == %v, want StackClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("TestClose: second close: got err == %v, want nil", err)
	}
}

// TestConcurrent runs pushers, poppers and growing resizes against one Stack
// and verifies no value is lost or duplicated and occupancy never exceeds
// the largest capacity in play. Resizes only grow (or return to the starting
// capacity while occupancy is below it), so truncation never discards values.
func TestConcurrent(t *testing.T) {
	const count = 1000

	s, err := New() // DefaultCapacity, comfortably above count.
	if err != nil {
		t.Fatalf("TestConcurrent: %s", err)
	}

	seen := make([]bool, count)
	wg := sync.WaitGroup{}
	wg.Add(count)

	// Resizes run alongside the pushes and pops. Occupancy never exceeds
	// count, which is below both sizes, so no resize here truncates.
	resizeDone := make(chan struct{})
	go func() {
		defer close(resizeDone)
		sizes := []uint32{2 * DefaultCapacity, DefaultCapacity}
		for i := 0; i < 50; i++ {
			if err := s.Resize(sizes[i%len(sizes)]); err != nil {
				t.Errorf("TestConcurrent: resize: %s", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < count; i++ {
		go func(i int) {
			if err := s.Push(int32(i)); err != nil {
				t.Errorf("TestConcurrent: on entry %d: %v", i, err)
			}
		}(i)

		go func() {
			defer wg.Done()
			for {
				v, ok := s.Pop()
				if !ok {
					time.Sleep(time.Millisecond)
					continue
				}
				seen[v] = true

				if n := s.Len(); n > 2*DefaultCapacity {
					t.Errorf("TestConcurrent: occupancy %d exceeds every capacity in play", n)
				}
				return
			}
		}()
	}

	wg.Wait()
	<-resizeDone

	for i, ok := range seen {
		if !ok {
			t.Errorf("TestConcurrent: entry %d was not seen", i)
		}
	}
	if s.Len() != 0 {
		t.Errorf("TestConcurrent: .Len(): got %d, want 0", s.Len())
	}
}
