package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/config"
)

// LaunchSpec is a fully resolved server command.
type LaunchSpec struct {
	Path string
	Args []string
	Env  []string
}

// ResolveLaunch applies the bridge configuration: args are split like a
// shell would, SearchPath is prepended to the child's PATH, and a bare
// command name is looked up on that augmented PATH.
func ResolveLaunch(cfg config.BridgeConfig) (LaunchSpec, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return LaunchSpec{}, errors.New("server command is empty")
	}
	args, err := splitCommandLine(cfg.Args)
	if err != nil {
		return LaunchSpec{}, err
	}

	pathEnv := os.Getenv("PATH")
	if sp := strings.TrimSpace(cfg.SearchPath); sp != "" {
		if pathEnv == "" {
			pathEnv = sp
		} else {
			pathEnv = sp + string(os.PathListSeparator) + pathEnv
		}
	}
	env := append(withoutKey(os.Environ(), "PATH"), "PATH="+pathEnv)

	path := command
	if !strings.ContainsRune(command, filepath.Separator) && !strings.ContainsRune(command, '/') {
		path, err = lookPath(command, pathEnv)
		if err != nil {
			return LaunchSpec{}, err
		}
	}
	return LaunchSpec{Path: path, Args: args, Env: env}, nil
}

func lookPath(name, pathEnv string) (string, error) {
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q not found on server search path", exec.ErrNotFound, name)
}

func withoutKey(env []string, key string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, key+"=") {
			out = append(out, kv)
		}
	}
	return out
}

// splitCommandLine splits input on unquoted whitespace. Backslash escapes
// the next rune except inside single quotes, as in a POSIX shell.
func splitCommandLine(input string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		escape  bool
		started bool
	)
	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case quote == '\'':
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\\':
			escape = true
			started = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			started = true
		case r == ' ' || r == '\t' || r == '\n':
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if escape {
		return nil, errors.New("unterminated escape sequence in server args")
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote in server args")
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

// process supervises the server child. A single goroutine waits on it, so
// the child is reaped no matter how the session ends.
type process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	exited  chan struct{}
	waitErr error
	grace   time.Duration
	logger  *zap.Logger

	shutdownOnce sync.Once
}

func startProcess(spec LaunchSpec, stderr io.Writer, grace time.Duration, logger *zap.Logger) (*process, io.Reader, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// An os.Pipe instead of StdoutPipe: Wait must not close the read end
	// while the transport is still draining it.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}
	_ = stdoutW.Close()

	p := &process{cmd: cmd, stdin: stdin, exited: make(chan struct{}), grace: grace, logger: logger}
	go func() {
		p.waitErr = cmd.Wait()
		_ = stdoutR.Close()
		close(p.exited)
	}()
	return p, stdoutR, nil
}

func (p *process) kill() {
	select {
	case <-p.exited:
	default:
		_ = p.cmd.Process.Kill()
	}
}

// shutdown closes stdin, gives the child the grace period to exit on its
// own, then kills it, and always waits for it to be reaped.
func (p *process) shutdown() error {
	var err error
	p.shutdownOnce.Do(func() {
		_ = p.stdin.Close()
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.exited:
		case <-timer.C:
			p.logger.Warn("tool server did not exit in time, killing", zap.Int("pid", p.cmd.Process.Pid))
			p.kill()
			<-p.exited
		}
		var exitErr *exec.ExitError
		if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
			err = p.waitErr
		}
	})
	return err
}

// Dial spawns the configured server and performs the handshake. The
// returned client owns the child; Close releases it.
func Dial(ctx context.Context, cfg config.BridgeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	spec, err := ResolveLaunch(cfg)
	if err != nil {
		return nil, &TransportError{Op: "spawn", Command: cfg.Command, Err: err}
	}
	proc, stdout, err := startProcess(spec, os.Stderr, cfg.ShutdownGrace(), logger)
	if err != nil {
		return nil, &TransportError{Op: "spawn", Command: spec.Path, Err: err}
	}
	logger.Debug("tool server started",
		zap.String("command", spec.Path),
		zap.Strings("args", spec.Args),
		zap.Int("pid", proc.cmd.Process.Pid))

	client, err := NewClient(ctx, NewLineTransport(stdout, proc.stdin), ClientOptions{
		HandshakeTimeout: cfg.HandshakeTimeout(),
		CallTimeout:      cfg.CallTimeout(),
		Logger:           logger,
		Command:          spec.Path,
		OnAbort:          proc.kill,
	})
	if err != nil {
		_ = proc.shutdown()
		return nil, err
	}
	client.closeHooks = append(client.closeHooks, proc.shutdown)
	return client, nil
}
