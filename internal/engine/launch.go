// Package engine launches and tracks the external synthesis process. It
// owns argv construction and pipe plumbing; lifecycle policy (restarts,
// graceful stop) lives in the supervisor.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"grainbridge/internal/config"
)

// LaunchSpec describes one engine invocation. The line callbacks receive
// one pipe line at a time and must not block for long; they run on the
// scanner goroutines.
type LaunchSpec struct {
	Binary   string
	Args     []string
	OnStdout func(line string)
	OnStderr func(line string)
}

// BuildArgs assembles the engine's standard argv from configuration. The
// engine listens for commands on the OSC command address and emits
// telemetry to the telemetry address; extra_args are appended last so
// operators can override anything.
func BuildArgs(cfg *config.Config) []string {
	args := []string{
		"--osc-host", cfg.OSC.CommandHost,
		"--osc-port", strconv.Itoa(cfg.OSC.CommandPort),
		"--telemetry-host", cfg.OSC.TelemetryHost,
		"--telemetry-port", strconv.Itoa(cfg.OSC.TelemetryPort),
		"--data-dir", cfg.Paths.DataDir,
		"--samples-dir", cfg.Paths.SamplesDir,
	}
	if cfg.Engine.Autostart {
		args = append(args, "--autostart")
	}
	if cfg.Engine.NoAudio {
		args = append(args, "--no-audio")
	}
	args = append(args, cfg.Engine.ExtraArgs...)
	return args
}

// Process is a handle to a running engine instance. Done is closed once
// the process has exited and both pipes are drained; Err is valid after
// that.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	Kill() error
	Done() <-chan struct{}
	Err() error
}

// Launcher abstracts process creation for testability.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher runs the real binary. The context acts as a backstop: when
// it is cancelled the process is killed outright, so callers that want a
// graceful stop should signal through the handle first.
type ExecLauncher struct{}

// Launch starts the process and begins draining its pipes.
func (ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if spec.Binary == "" {
		return nil, errors.New("engine binary required")
	}

	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	proc := &execProcess{cmd: cmd, done: make(chan struct{})}

	var wg sync.WaitGroup
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
	}
	wg.Add(2)
	go scan(stdout, spec.OnStdout)
	go scan(stderr, spec.OnStderr)

	go func() {
		// Pipes must be fully drained before Wait releases them.
		wg.Wait()
		err := cmd.Wait()
		proc.mu.Lock()
		proc.err = err
		proc.mu.Unlock()
		close(proc.done)
	}()

	return proc, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	err := p.cmd.Process.Kill()
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

var _ Launcher = ExecLauncher{}
