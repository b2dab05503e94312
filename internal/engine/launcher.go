package engine

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Launcher manages an engine process owned by the sweep. When the engine is
// operated externally (shared license server, remote host) no Launcher is
// used and restart degrades to disconnect/reconnect.
type Launcher struct {
	command string
	args    []string
	log     *slog.Logger

	cmd *exec.Cmd
}

func NewLauncher(command string, args []string, log *slog.Logger) *Launcher {
	return &Launcher{command: command, args: args, log: log}
}

// Start spawns the engine process. Stdout/stderr go to the sweep's own
// streams so engine diagnostics stay visible.
func (l *Launcher) Start() error {
	if l.cmd != nil {
		return fmt.Errorf("engine process already running (pid %d)", l.cmd.Process.Pid)
	}
	cmd := exec.Command(l.command, l.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine %s: %w", l.command, err)
	}
	l.cmd = cmd
	l.log.Info("engine process started", "command", l.command, "pid", cmd.Process.Pid)
	return nil
}

// Stop terminates the engine process, escalating to a kill if it ignores the
// interrupt.
func (l *Launcher) Stop() error {
	if l.cmd == nil {
		return nil
	}
	cmd := l.cmd
	l.cmd = nil

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// Already gone or unkillable via signal; force it.
		_ = cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		l.log.Warn("engine process ignored interrupt, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
	l.log.Info("engine process stopped")
	return nil
}

// Running reports whether a process is currently managed.
func (l *Launcher) Running() bool {
	return l.cmd != nil
}
