package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Session is the single live connection to the engine. The sweep owns
// exactly one session at a time; every pipeline step goes through it.
type Session struct {
	Client *Client

	host     string
	port     int
	launcher *Launcher // nil when the engine is externally managed
	log      *slog.Logger
}

// SessionConfig describes how to reach (and optionally spawn) the engine.
type SessionConfig struct {
	Host    string
	Port    int
	Command string // empty: connect to an externally managed engine
	Args    []string

	ConnectTimeout time.Duration
}

// Connect establishes the engine session, spawning the process first when a
// command is configured, then polling health until the control API answers.
func Connect(ctx context.Context, cfg SessionConfig, log *slog.Logger) (*Session, error) {
	s := &Session{
		host: cfg.Host,
		port: cfg.Port,
		log:  log,
	}
	if cfg.Command != "" {
		s.launcher = NewLauncher(cfg.Command, cfg.Args, log)
		if err := s.launcher.Start(); err != nil {
			return nil, &LifecycleError{Step: "relaunch", Err: err}
		}
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if err := s.reconnect(ctx, timeout); err != nil {
		if s.launcher != nil {
			_ = s.launcher.Stop()
		}
		return nil, err
	}
	return s, nil
}

// reconnect builds a fresh client and polls health until the engine answers
// or the timeout passes.
func (s *Session) reconnect(ctx context.Context, timeout time.Duration) error {
	client := NewClient(s.host, s.port)
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return &LifecycleError{Step: "reconnect", Err: err}
		}
		if lastErr = client.Health(ctx); lastErr == nil {
			s.Client = client
			s.log.Info("engine connected", "host", s.host, "port", s.port)
			return nil
		}
		select {
		case <-ctx.Done():
			return &LifecycleError{Step: "reconnect", Err: ctx.Err()}
		case <-time.After(2 * time.Second):
		}
	}
	return &LifecycleError{Step: "reconnect", Err: fmt.Errorf("engine did not answer within %s: %w", timeout, lastErr)}
}

// Restart cycles the engine process to reclaim its memory. The order is
// fixed: snapshot save, session teardown, process relaunch, reconnect,
// snapshot reload. Any failure leaves the sweep without an engine and is
// fatal.
//
// snapshotPath is only saved/reloaded when reload is true; a model that is
// rebuilt from parameters on every cell does not need it.
func (s *Session) Restart(ctx context.Context, snapshotPath string, reload bool) error {
	if reload {
		if err := s.Client.SaveSnapshot(ctx, snapshotPath); err != nil {
			return &LifecycleError{Step: "save", Err: err}
		}
	}

	s.Client.Close()
	s.Client = nil
	if s.launcher != nil {
		if err := s.launcher.Stop(); err != nil {
			return &LifecycleError{Step: "teardown", Err: err}
		}
		if err := s.launcher.Start(); err != nil {
			return &LifecycleError{Step: "relaunch", Err: err}
		}
	} else {
		s.log.Info("externally managed engine, skipping process relaunch")
	}

	if err := s.reconnect(ctx, 2*time.Minute); err != nil {
		return err
	}

	if reload {
		if err := s.Client.LoadSnapshot(ctx, snapshotPath); err != nil {
			return &LifecycleError{Step: "reload", Err: err}
		}
	}
	s.log.Info("engine session restarted")
	return nil
}

// Close tears the session down. Safe to call after a failed restart.
func (s *Session) Close() error {
	if s.Client != nil {
		s.Client.Close()
		s.Client = nil
	}
	if s.launcher != nil {
		return s.launcher.Stop()
	}
	return nil
}
