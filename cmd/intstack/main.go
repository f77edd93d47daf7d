// Binary intstack is the command line surface for the shared integer stack
// served by intstackd.
//
// Usage:
//	intstack [--socket path] set-size N   set max entries (N>0)
//	intstack [--socket path] push VALUE   push a 32-bit signed integer
//	intstack [--socket path] pop          pop and print one value (or NULL)
//	intstack [--socket path] unwind       pop until empty, printing each value
//
// The exit status distinguishes the failure classes: 1 invalid argument,
// 2 resource exhausted (push on a full stack), 3 resource limit invalid
// (set-size rejected), 4 operation unsupported, 5 transport failure.
package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/intstack/intstack/device"
)

const (
	exitOK              = 0
	exitInvalidArgument = 1
	exitExhausted       = 2
	exitBadLimit        = 3
	exitUnsupported     = 4
	exitTransport       = 5
)

var socketAddr = pflag.String("socket", "/tmp/int_stack.sock", "path of the stack device socket")

func usage() {
	fmt.Fprintf(os.Stderr,
		"Usage: %s [--socket path] <cmd> [arg]\n"+
			"  set-size N    set max entries (N>0)\n"+
			"  push VAL      push integer VAL\n"+
			"  pop           pop and print one (or NULL)\n"+
			"  unwind        pop until empty\n",
		os.Args[0])
}

func main() {
	os.Exit(run())
}

func run() int {
	pflag.Parse()
	args := pflag.Args()
	if len(args) < 1 {
		usage()
		return exitInvalidArgument
	}

	switch args[0] {
	case "set-size":
		if len(args) != 2 {
			usage()
			return exitInvalidArgument
		}
		return setSize(args[1])
	case "push":
		if len(args) != 2 {
			usage()
			return exitInvalidArgument
		}
		return push(args[1])
	case "pop":
		if len(args) != 1 {
			usage()
			return exitInvalidArgument
		}
		return pop()
	case "unwind":
		if len(args) != 1 {
			usage()
			return exitInvalidArgument
		}
		return unwind()
	}

	usage()
	return exitInvalidArgument
}

// dial opens the session. A failure here is a transport problem, not a stack
// outcome.
func dial() (*device.Client, int) {
	c, err := device.Dial(*socketAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot open %s: %s\n", *socketAddr, err)
		return nil, exitTransport
	}
	return c, exitOK
}

// failure maps a device error onto an exit status.
func failure(err error) int {
	switch {
	case errors.Is(err, device.ErrFull):
		fmt.Fprintln(os.Stderr, "ERROR: stack is full")
		return exitExhausted
	case errors.Is(err, device.ErrInvalidSize), errors.Is(err, device.ErrNoMemory):
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return exitBadLimit
	case errors.Is(err, device.ErrUnsupported):
		fmt.Fprintln(os.Stderr, "ERROR: operation not supported")
		return exitUnsupported
	case errors.Is(err, device.ErrInvalidArgument):
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return exitInvalidArgument
	}
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
	return exitTransport
}

func setSize(arg string) int {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: bad size %q\n", arg)
		return exitInvalidArgument
	}
	if n <= 0 || n > math.MaxUint32 {
		fmt.Fprintln(os.Stderr, "ERROR: size should be > 0")
		return exitBadLimit
	}

	c, code := dial()
	if c == nil {
		return code
	}
	defer c.Close()

	if err := c.SetSize(uint32(n)); err != nil {
		return failure(err)
	}
	return exitOK
}

func push(arg string) int {
	v, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: bad int %q\n", arg)
		return exitInvalidArgument
	}

	c, code := dial()
	if c == nil {
		return code
	}
	defer c.Close()

	if err := c.Push(int32(v)); err != nil {
		return failure(err)
	}
	return exitOK
}

func pop() int {
	c, code := dial()
	if c == nil {
		return code
	}
	defer c.Close()

	v, ok, err := c.Pop()
	if err != nil {
		return failure(err)
	}
	if !ok {
		fmt.Println("NULL")
		return exitOK
	}
	fmt.Println(v)
	return exitOK
}

func unwind() int {
	c, code := dial()
	if c == nil {
		return code
	}
	defer c.Close()

	for {
		v, ok, err := c.Pop()
		if err != nil {
			return failure(err)
		}
		if !ok {
			return exitOK
		}
		fmt.Println(v)
	}
}
