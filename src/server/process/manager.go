// Package process starts and stops language server processes and exposes their stdio as a stream.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/constants"
	"lsp-tester/src/internal/types"
)

// ProcessInfo holds information about a running LSP server process
type ProcessInfo struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	StopCh chan struct{}
	Name   string

	mu              sync.Mutex
	active          bool
	intentionalStop bool
	stopOnce        sync.Once
	cleanupOnce     sync.Once

	exited  chan struct{}
	exitErr error
}

// Exited is closed once the process has been reaped
func (info *ProcessInfo) Exited() <-chan struct{} {
	return info.exited
}

// ExitErr returns the result of Wait; valid after Exited is closed
func (info *ProcessInfo) ExitErr() error {
	<-info.exited
	return info.exitErr
}

// Active reports whether the process is running and not being stopped
func (info *ProcessInfo) Active() bool {
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.active
}

// IntentionalStop reports whether StopProcess was called
func (info *ProcessInfo) IntentionalStop() bool {
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.intentionalStop
}

// PID returns the OS process id, or 0 if the process never started
func (info *ProcessInfo) PID() int {
	if info.Cmd == nil || info.Cmd.Process == nil {
		return 0
	}
	return info.Cmd.Process.Pid
}

// Conn returns the process stdio as one stream: reads come from stdout, writes go to
// stdin. Closing it closes both ends on our side; the process itself is left running.
func (info *ProcessInfo) Conn() io.ReadWriteCloser {
	return &stdioConn{info: info}
}

func (info *ProcessInfo) signalStop() {
	info.stopOnce.Do(func() {
		close(info.StopCh)
	})
}

type stdioConn struct {
	info *ProcessInfo
}

func (c *stdioConn) Read(p []byte) (int, error) {
	return c.info.Stdout.Read(p)
}

func (c *stdioConn) Write(p []byte) (int, error) {
	return c.info.Stdin.Write(p)
}

func (c *stdioConn) Close() error {
	errIn := c.info.Stdin.Close()
	errOut := c.info.Stdout.Close()
	if errIn != nil && !isClosedErr(errIn) {
		return errIn
	}
	if errOut != nil && !isClosedErr(errOut) {
		return errOut
	}
	return nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, os.ErrClosed)
}

// ShutdownSender sends the LSP shutdown sequence to the server
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// ProcessManager is the lifecycle contract the session depends on
type ProcessManager interface {
	StartProcess(config types.ClientConfig, name string) (*ProcessInfo, error)
	StopProcess(ctx context.Context, info *ProcessInfo, sender ShutdownSender) error
	MonitorProcess(info *ProcessInfo, onExit func(error))
	CleanupProcess(info *ProcessInfo)
}

// Option configures an LSPProcessManager
type Option func(*LSPProcessManager)

// WithShutdownTimeout bounds how long StopProcess waits for a voluntary exit before killing
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(pm *LSPProcessManager) {
		if timeout > 0 {
			pm.shutdownTimeout = timeout
		}
	}
}

// WithLogger sets the logger that receives lifecycle events and server stderr
func WithLogger(logger *common.SafeLogger) Option {
	return func(pm *LSPProcessManager) {
		pm.logger = logger
	}
}

// LSPProcessManager implements ProcessManager for LSP server processes
type LSPProcessManager struct {
	shutdownTimeout time.Duration
	logger          *common.SafeLogger
}

// NewLSPProcessManager creates a new LSP process manager
func NewLSPProcessManager(opts ...Option) *LSPProcessManager {
	pm := &LSPProcessManager{
		shutdownTimeout: constants.ProcessShutdownTimeout,
		logger:          common.LSPLogger,
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// StartProcess launches the server. Stdout and stderr use os.Pipe rather than
// StdoutPipe so that reaping the process never closes a pipe we are still draining.
func (pm *LSPProcessManager) StartProcess(config types.ClientConfig, name string) (*ProcessInfo, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.Command(config.Command, config.Args...)

	dir, err := common.ValidateAndGetWorkingDir(config.WorkingDir)
	if err != nil {
		return nil, err
	}
	cmd.Dir = dir

	if len(config.Env) > 0 {
		env := os.Environ()
		for k, v := range config.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	info := &ProcessInfo{
		Cmd:    cmd,
		StopCh: make(chan struct{}),
		Name:   name,
		exited: make(chan struct{}),
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	info.Stdin = stdin

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	info.Stdout = stdoutR
	info.Stderr = stderrR

	startErr := cmd.Start()
	// The child owns the write ends now
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		pm.CleanupProcess(info)
		return nil, fmt.Errorf("failed to start LSP server %s: %w", config.Command, startErr)
	}

	info.mu.Lock()
	info.active = true
	info.mu.Unlock()

	go pm.reap(info)
	go pm.forwardStderr(info)

	pm.logger.Info("Started LSP server process for %s: PID %d", name, cmd.Process.Pid)
	return info, nil
}

// StopProcess runs the shutdown sequence through sender (when non-nil), closes stdin,
// waits for the process to exit on its own and kills it if it does not. Once ctx
// ends the remaining waits are skipped and the process is killed.
func (pm *LSPProcessManager) StopProcess(ctx context.Context, info *ProcessInfo, sender ShutdownSender) error {
	if info == nil {
		return nil
	}

	info.mu.Lock()
	info.intentionalStop = true
	info.mu.Unlock()
	info.signalStop()

	if sender != nil {
		pm.sendShutdown(ctx, sender)
	}

	info.mu.Lock()
	info.active = false
	info.mu.Unlock()

	// Most servers also exit on stdin EOF
	if info.Stdin != nil {
		_ = info.Stdin.Close()
	}

	if info.PID() != 0 {
		grace := time.NewTimer(pm.gracePeriod())
		defer grace.Stop()

		kill := false
		select {
		case <-info.exited:
		case <-grace.C:
			pm.logger.Debug("LSP server %s did not exit within %v, force killing", info.Name, pm.gracePeriod())
			kill = true
		case <-ctx.Done():
			pm.logger.Debug("Stop of LSP server %s cancelled, force killing", info.Name)
			kill = true
		}
		if kill {
			if err := info.Cmd.Process.Kill(); err != nil && !isExpectedKillError(err) {
				pm.logger.Debug("Failed to kill LSP server %s: %v", info.Name, err)
			}
			select {
			case <-info.exited:
			case <-time.After(2 * time.Second):
				pm.logger.Warn("LSP server %s did not terminate after kill", info.Name)
			}
		}
	}

	pm.CleanupProcess(info)
	return nil
}

// MonitorProcess blocks until the process exits and reports the exit to onExit
func (pm *LSPProcessManager) MonitorProcess(info *ProcessInfo, onExit func(error)) {
	if info == nil || info.PID() == 0 {
		pm.logger.Error("MonitorProcess called with nil process info or command")
		if onExit != nil {
			onExit(fmt.Errorf("invalid process info"))
		}
		return
	}

	<-info.exited
	err := info.exitErr

	if !info.IntentionalStop() {
		if err != nil {
			pm.logger.Error("LSP server %s exited unexpectedly: %v", info.Name, err)
		} else {
			pm.logger.Warn("LSP server %s exited before shutdown", info.Name)
		}
	} else {
		pm.logger.Debug("LSP server %s exited: %v", info.Name, err)
	}

	if onExit != nil {
		onExit(err)
	}
}

// CleanupProcess closes all pipes
func (pm *LSPProcessManager) CleanupProcess(info *ProcessInfo) {
	if info == nil {
		return
	}
	info.cleanupOnce.Do(func() {
		if info.Stdin != nil {
			info.Stdin.Close()
		}
		if info.Stdout != nil {
			info.Stdout.Close()
		}
		if info.Stderr != nil {
			info.Stderr.Close()
		}
	})
}

// reap is the only caller of Wait
func (pm *LSPProcessManager) reap(info *ProcessInfo) {
	err := info.Cmd.Wait()

	info.mu.Lock()
	info.active = false
	info.mu.Unlock()

	info.exitErr = err
	close(info.exited)
	info.signalStop()
}

// forwardStderr copies server stderr into the log line by line
func (pm *LSPProcessManager) forwardStderr(info *ProcessInfo) {
	scanner := bufio.NewScanner(info.Stderr)
	scanner.Buffer(make([]byte, 64*1024), constants.LSPResponseBufferSize)

	logger := pm.logger.With("server", info.Name)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if looksLikeError(line) {
			logger.Warn("[stderr] %s", line)
		} else {
			logger.Debug("[stderr] %s", line)
		}
	}
}

func looksLikeError(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{"error", "exception", "panic", "fatal", "traceback"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// sendShutdown sends shutdown sequence to LSP server through the ShutdownSender
func (pm *LSPProcessManager) sendShutdown(ctx context.Context, sender ShutdownSender) {
	shutdownCtx, shutdownCancel := common.WithTimeout(ctx, constants.ShutdownRequestTimeout)
	defer shutdownCancel()

	if err := sender.SendShutdownRequest(shutdownCtx); err != nil {
		pm.logger.Debug("Shutdown request failed: %v", err)
	}

	exitCtx, exitCancel := common.WithTimeout(ctx, constants.ExitNotifyTimeout)
	defer exitCancel()

	if err := sender.SendExitNotification(exitCtx); err != nil {
		pm.logger.Debug("Exit notification failed: %v", err)
	}
}
