//go:build !unix

package subproc

import (
	"os/exec"
	"syscall"
)

func setpgid() *syscall.SysProcAttr { return nil }

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
