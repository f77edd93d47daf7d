//go:build linux

package uds

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// readCreds returns the credentials of the process on the other end of conn,
// fetched via SO_PEERCRED on the raw socket.
func readCreds(conn *net.UnixConn) (Cred, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Cred{}, fmt.Errorf("error opening raw connection: %s", err)
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(
		func(fd uintptr) {
			cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		},
	)

	if err != nil {
		return Cred{}, fmt.Errorf("Control() error: %s", err)
	}
	if credErr != nil {
		return Cred{}, fmt.Errorf("GetsockoptUcred() error: %s", credErr)
	}

	return Cred{PID: ID(cred.Pid), UID: ID(cred.Uid), GID: ID(cred.Gid)}, nil
}
