package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultUser is the account cloud-init installs the SSH key for.
	DefaultUser = "root"

	// DefaultDir is where Copy places files when no directory is given.
	DefaultDir = "/root"

	// DefaultPollInterval is how often WaitForIP asks for a lease.
	DefaultPollInterval = 500 * time.Millisecond
)

// Streams are the standard streams handed to a command.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// StdStreams returns the process's own standard streams.
func StdStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Runner executes name with args attached to streams.
type Runner func(ctx context.Context, streams Streams, name string, args ...string) error

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, streams Streams, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = streams.Stdin
	cmd.Stdout = streams.Stdout
	cmd.Stderr = streams.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// Session addresses one VM over SSH.
type Session struct {
	Host    string
	User    string   // DefaultUser when empty
	Options []string // passed to both ssh and scp, e.g. "-o", "StrictHostKeyChecking=no"
	Streams Streams

	Runner Runner // nil means ExecRunner
	Log    *logrus.Entry
}

// NewSession returns a Session for host that uses the process's streams.
func NewSession(host string, options []string, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		Host:    host,
		User:    DefaultUser,
		Options: options,
		Streams: StdStreams(),
		Log:     log.WithField("component", "remote"),
	}
}

func (s *Session) target() string {
	user := s.User
	if user == "" {
		user = DefaultUser
	}
	return user + "@" + s.Host
}

func (s *Session) exec(ctx context.Context, name string, args ...string) error {
	if s.Host == "" {
		return fmt.Errorf("no address to connect to")
	}
	if s.Log != nil {
		s.Log.Debugf("running %s %v", name, args)
	}
	run := s.Runner
	if run == nil {
		run = ExecRunner
	}
	return run(ctx, s.Streams, name, args...)
}

// Interactive opens a login shell on the VM.
func (s *Session) Interactive(ctx context.Context) error {
	args := append(append([]string{}, s.Options...), s.target())
	return s.exec(ctx, "ssh", args...)
}

// Run executes command on the VM.
func (s *Session) Run(ctx context.Context, command string) error {
	args := append(append([]string{}, s.Options...), s.target(), command)
	if err := s.exec(ctx, "ssh", args...); err != nil {
		return fmt.Errorf("failed to run %q: %w", command, err)
	}
	return nil
}

// Copy uploads each local file into dir on the VM, keeping its base name.
// It returns the remote paths written, in order, up to the first failure.
func (s *Session) Copy(ctx context.Context, files []string, dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultDir
	}

	copied := make([]string, 0, len(files))
	for _, file := range files {
		dest := path.Join(dir, filepath.Base(file))
		args := append(append([]string{}, s.Options...), file, s.target()+":"+dest)
		if err := s.exec(ctx, "scp", args...); err != nil {
			return copied, fmt.Errorf("failed to copy %s: %w", file, err)
		}
		copied = append(copied, dest)
	}
	return copied, nil
}

// IPFunc returns the leased address of a VM, or "" while it has none.
type IPFunc func(ctx context.Context, name string) (string, error)

// WaitForIP polls lookup every interval until the VM has an address.
// A lookup error or a done ctx ends the wait.
func WaitForIP(ctx context.Context, lookup IPFunc, name string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ip, err := lookup(ctx, name)
		if err != nil {
			return "", err
		}
		if ip != "" {
			return ip, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("timed out waiting for an address for %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}
