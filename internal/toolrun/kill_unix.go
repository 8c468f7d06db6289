//go:build unix

package toolrun

import (
	"os/exec"
	"syscall"
	"time"
)

// configureKill makes cancellation take down the whole process group, so that
// make and its children do not outlive the run.
func configureKill(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
	c.WaitDelay = 5 * time.Second
}
