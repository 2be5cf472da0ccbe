// Package supervisor manages the local OpenCode server process.
//
// supervisor.go - Backend server lifecycle management
//
// This file contains:
// - Supervisor managing the `opencode serve` process
// - Server lifecycle (EnsureRunning, Stop, IsRunning)
// - Health checking (waitForHealth, CheckHealth)
//
// An externally managed server is adopted rather than duplicated: when the
// health endpoint already answers, the supervisor leaves process ownership
// alone and only the locally started process is stopped on shutdown.

package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aotsukiqx/opendian/internal/logger"
)

const (
	serverStartTimeout = 30 * time.Second
	healthCheckRetries = 30
	healthCheckDelay   = time.Second
	healthProbeTimeout = 2 * time.Second
	stopGracePeriod    = 5 * time.Second
)

// Supervisor manages one local OpenCode server process
type Supervisor struct {
	binary   string
	hostname string
	port     int
	logDir   string

	httpc *http.Client

	mu      sync.RWMutex
	cmd     *exec.Cmd
	logFile *os.File
	running bool
}

// New creates a supervisor for `<binary> serve --port <port>`
func New(binary, hostname string, port int, logDir string) *Supervisor {
	return &Supervisor{
		binary:   binary,
		hostname: hostname,
		port:     port,
		logDir:   logDir,
		httpc:    &http.Client{},
	}
}

// BaseURL returns the supervised server's HTTP endpoint
func (s *Supervisor) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.hostname, s.port)
}

// EnsureRunning makes the server reachable: an already healthy server is
// adopted as-is, otherwise the binary is launched and polled until healthy
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	if s.CheckHealth(ctx) {
		logger.Slog().Info("adopting running server", "url", s.BaseURL())
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	path, err := exec.LookPath(s.binary)
	if err != nil {
		return fmt.Errorf("server binary %q not found: %w", s.binary, err)
	}

	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(s.logDir, "opencode-server.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open server log: %w", err)
	}

	cmd := exec.Command(path, "serve",
		"--port", strconv.Itoa(s.port),
		"--hostname", s.hostname,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Slog().Info("server started", "binary", path, "pid", cmd.Process.Pid, "url", s.BaseURL())

	if err := s.waitForHealth(ctx); err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		_ = logFile.Close()
		return fmt.Errorf("server failed to become healthy: %w", err)
	}

	s.cmd = cmd
	s.logFile = logFile
	s.running = true
	return nil
}

// waitForHealth polls the health endpoint until the server is ready
func (s *Supervisor) waitForHealth(ctx context.Context) error {
	deadline := time.Now().Add(serverStartTimeout)

	for i := 0; i < healthCheckRetries; i++ {
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for server")
		}

		if s.CheckHealth(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthCheckDelay):
		}
	}

	return fmt.Errorf("server did not become healthy after %d retries", healthCheckRetries)
}

// CheckHealth probes the server's health endpoint with a bounded timeout
func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL()+"/global/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// IsRunning reports whether the supervisor owns a running server process
func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop terminates the locally started server process, if any. Adopted
// external servers are left running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	_ = s.cmd.Process.Signal(os.Interrupt)

	done := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		_ = s.cmd.Process.Kill()
		<-done
	}

	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
	s.cmd = nil
	s.running = false
	logger.Slog().Info("server stopped")
}
