// Package ssh implements the remote command-execution action tool over SSH.
// It runs provider CLI commands on a bastion or management host instead of
// the local machine.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/azimuth-ai/azimuth/pkg/engine"
	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// Config describes the remote execution target.
type Config struct {
	// Host is the remote host.
	Host string

	// Port is the SSH port. Zero means 22.
	Port int

	// User is the login user.
	User string

	// PrivateKeyPath points to the private key file.
	PrivateKeyPath string

	// KnownHostsPath points to the known_hosts file. Host keys are always
	// verified; there is no insecure mode.
	KnownHostsPath string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// Tool executes actions on a remote host over SSH. Connections are opened
// per action; the engine's per-action timeout covers dial and execution.
type Tool struct {
	cfg          Config
	clientConfig *ssh.ClientConfig
}

// New creates an SSH tool, loading the key and known hosts up front so
// misconfiguration surfaces before the first action.
func New(cfg Config) (*Tool, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("ssh tool requires host and user")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	hostKeyCallback, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}

	return &Tool{
		cfg: cfg,
		clientConfig: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.ConnectTimeout,
		},
	}, nil
}

// Name implements engine.Tool.
func (t *Tool) Name() string {
	return "ssh"
}

// Execute runs the command on the remote host. The remote shell quoting is
// conservative: every argument is single-quoted.
func (t *Tool) Execute(ctx context.Context, spec engine.ActionSpec) (*engine.RawResult, error) {
	log := telemetry.FromContext(ctx).NewComponentLogger("tool.ssh").WithGoalID(spec.GoalID)

	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))
	client, err := t.dial(ctx, addr)
	if err != nil {
		return nil, engine.NewActionError(spec.GoalID, engine.ToolCodeExecFailed,
			fmt.Sprintf("ssh dial %s failed", addr), err)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return nil, engine.NewActionError(spec.GoalID, engine.ToolCodeExecFailed,
			"ssh session failed", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	command := buildCommand(spec)
	log.Debugf("running remote command on %s", t.cfg.Host)

	start := time.Now()
	runErr := t.runWithContext(ctx, session, command)
	elapsed := time.Since(start)

	result := &engine.RawResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if runErr == nil {
		return result, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
		result.ExitCode = -1
		return result, engine.NewActionTimeoutError(spec.GoalID, ctx.Err())
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
		return result, engine.NewActionError(spec.GoalID, engine.ToolCodeExecFailed,
			fmt.Sprintf("remote command exited %d", result.ExitCode), runErr)
	}
	return result, engine.NewActionError(spec.GoalID, engine.ToolCodeExecFailed,
		"remote command failed", runErr)
}

// dial opens the TCP connection under the caller's context, then completes
// the SSH handshake.
func (t *Tool) dial(ctx context.Context, addr string) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, t.clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runWithContext starts the command and races completion against the
// context. On cancellation the session is closed, which tears down the
// remote process.
func (t *Tool) runWithContext(ctx context.Context, session *ssh.Session, command string) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return ctx.Err()
	}
}

// buildCommand assembles the remote command line with single-quoted
// arguments.
func buildCommand(spec engine.ActionSpec) string {
	parts := make([]string, 0, len(spec.Args)+1)
	parts = append(parts, spec.Command)
	for _, arg := range spec.Args {
		parts = append(parts, "'"+strings.ReplaceAll(arg, "'", `'\''`)+"'")
	}
	return strings.Join(parts, " ")
}
