//go:build !windows

package mcp

import (
	"os/exec"
	"syscall"
)

// detachSubprocess puts the child in its own process group, the Go
// equivalent of the original client's start_new_session=True. Without
// this, a signal sent to our own process group (e.g. an interactive
// Ctrl-C) also reaches the child directly instead of going through Close.
func detachSubprocess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
