//go:build !unix

package runner

import "os/exec"

// configureProcessGroup keeps the exec default of killing only the converter process.
func configureProcessGroup(cmd *exec.Cmd) {}
