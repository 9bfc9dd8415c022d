package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const processStopTimeout = 5 * time.Second

// process wraps one PipeWire helper (pw-play, pw-record) and its output.
type process struct {
	name string
	cmd  *exec.Cmd

	outputWG  sync.WaitGroup
	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	stopping atomic.Bool
	done     chan struct{}
	err      error
}

func newProcess(args ...string) *process {
	// Set PipeWire environment variables
	env := os.Environ()
	env = append(env, "PIPEWIRE_LATENCY=256/48000")

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = env

	return &process{
		name: args[0],
		cmd:  cmd,
		done: make(chan struct{}),
	}
}

// start launches the process. stdout, when non-nil, receives the read end of
// its standard output; all of it must be consumed before wait returns.
func (p *process) start(stdout *io.ReadCloser) error {
	if stdout != nil {
		pipe, err := p.cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		*stdout = pipe
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Info("Starting PipeWire helper", "command", strings.Join(p.cmd.Args, " "))
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.name, err)
	}

	p.outputWG.Add(1)
	go p.readOutput(stderr)
	return nil
}

// readOutput reads stderr and buffers output
func (p *process) readOutput(pipe io.ReadCloser) {
	defer p.outputWG.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		p.stderrMu.Lock()
		p.stderrBuf.WriteString(line + "\n")
		p.stderrMu.Unlock()
		slog.Debug("PipeWire helper output", "process", p.name, "line", line)
	}
}

// wait reaps the process. It must be called exactly once, by the owner.
func (p *process) wait() error {
	p.outputWG.Wait()
	p.err = p.cmd.Wait()
	close(p.done)

	if p.err != nil && !p.stopping.Load() {
		p.stderrMu.Lock()
		slog.Debug("PipeWire helper stderr", "process", p.name, "output", p.stderrBuf.String())
		p.stderrMu.Unlock()
	}
	return p.err
}

// stopped reports whether stop was requested, so the owner can tell a
// requested exit from a crash.
func (p *process) stopped() bool {
	return p.stopping.Load()
}

// stop interrupts the process and waits for the owner to reap it
func (p *process) stop() {
	if !p.stopping.CompareAndSwap(false, true) {
		<-p.done
		return
	}
	if p.cmd.Process == nil {
		return
	}

	slog.Debug("Sending SIGINT to PipeWire helper", "process", p.name)
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return
		}
		slog.Debug("Failed to send interrupt, falling back to SIGKILL", "process", p.name, "error", err)
		p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(processStopTimeout):
		slog.Warn("PipeWire helper did not exit within timeout, force killing", "process", p.name)
		p.cmd.Process.Kill()
		<-p.done
	}
}

// exitCode returns the exit status of a finished process, -1 when unknown
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
