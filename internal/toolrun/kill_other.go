//go:build !unix

package toolrun

import (
	"os/exec"
	"time"
)

func configureKill(c *exec.Cmd) {
	c.WaitDelay = 5 * time.Second
}
