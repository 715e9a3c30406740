package ipc

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// syscallSignalZero is the null signal used to probe process liveness
// without delivering an actual signal.
var syscallSignalZero = syscall.Signal(0)

// socketpair allocates an AF_UNIX SOCK_STREAM pair: index 0 is kept by the
// parent, index 1 is handed to the child via cmd.ExtraFiles. This stands in
// for a shared-memory IPC substrate: a single-producer / single-consumer
// duplex byte stream scoped to one (session_id, node_id) channel pair.
func socketpair() ([2]*os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return [2]*os.File{}, err
	}
	return [2]*os.File{
		os.NewFile(uintptr(fds[0]), "ipc-parent"),
		os.NewFile(uintptr(fds[1]), "ipc-child"),
	}, nil
}
