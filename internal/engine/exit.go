package engine

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitDescription renders a Wait error as a short human-readable cause:
// "exit code N" for normal exits, "signal NAME" for signal deaths, and the
// raw error text for anything else.
func ExitDescription(err error) string {
	if err == nil {
		return "exit code 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Sprintf("signal %s", status.Signal())
		}
		return fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return err.Error()
}

// ResolveBinary locates the engine executable and confirms it can run.
// Relative names resolve through PATH; absolute and path-qualified names
// are checked in place.
func ResolveBinary(binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", errors.New("engine binary required")
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("locate engine binary %q: %w", binary, err)
	}
	if err := unix.Access(resolved, unix.X_OK); err != nil {
		return "", fmt.Errorf("engine binary %q not executable: %w", resolved, err)
	}
	return resolved, nil
}
