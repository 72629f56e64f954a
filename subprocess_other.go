//go:build !linux

package docalign

import "os/exec"

// setParentDeathSignal is a no-op outside Linux; there is no parent-death
// signal to request.
func setParentDeathSignal(_ *exec.Cmd) {}
