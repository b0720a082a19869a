//go:build windows

package mcp

import "os/exec"

// detachSubprocess is a no-op on Windows: process groups work differently
// there and the default CreateProcess behavior already isolates the child
// from our console signal group closely enough for Close's terminate/kill
// sequence to be the only teardown path that matters.
func detachSubprocess(cmd *exec.Cmd) {}
