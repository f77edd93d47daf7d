// Binary intstackd hosts the shared integer stack on a unix domain socket.
// Local processes push, pop and resize it through the intstack CLI or the
// device package. One stack exists for the life of the daemon; it is torn
// down only at shutdown.
package main

import (
	goflag "flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/intstack/intstack/device"
	"github.com/intstack/intstack/stack"
)

var (
	socketAddr = pflag.String("socket", "/tmp/int_stack.sock", "path of the stack device socket")
	capacity   = pflag.Int("capacity", stack.DefaultCapacity, "initial number of entries the stack can hold")
)

func main() {
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()
	defer log.Flush()

	stk, err := stack.New(stack.Capacity(*capacity))
	if err != nil {
		log.Exitf("intstackd: %s", err)
	}

	serv, err := device.New(*socketAddr, stk)
	if err != nil {
		log.Exitf("intstackd: %s", err)
	}
	log.Infof("intstackd: serving on %s with capacity %d", *socketAddr, *capacity)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case got := <-sig:
		log.Infof("intstackd: received %v, shutting down", got)
		serv.Close()
	case err := <-serv.Closed():
		if err != nil {
			log.Errorf("intstackd: server stopped: %s", err)
		}
	}

	stk.Close()
	os.Remove(*socketAddr)
	log.Infof("intstackd: stopped")
}
