package automation

import (
	"fmt"
	"os/exec"
)

// ExecLauncher starts processes detached, mirroring a desktop "open"
// action. The child is not waited on.
type ExecLauncher struct{}

func NewExecLauncher() *ExecLauncher { return &ExecLauncher{} }

func (ExecLauncher) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	// Reap the child in the background so it doesn't linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}
