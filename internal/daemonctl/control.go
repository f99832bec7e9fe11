package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nftpin/internal/config"
	"nftpin/internal/ipc"
	"nftpin/internal/logging"
	"nftpin/internal/pinstore"
	"nftpin/internal/preflight"
	"nftpin/internal/prefs"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	Diagnostic bool
}

// StartResult captures daemon start orchestration state.
type StartResult struct {
	AlreadyRunning bool
	PID            int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch starts a detached nftpin daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if opts.Diagnostic {
		args = append(args, "--diagnostic")
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

const pollInterval = 200 * time.Millisecond

// pollUntil calls check every pollInterval until it reports done or timeout
// elapses. It returns the last error check produced.
func pollUntil(timeout time.Duration, check func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		done, err := check()
		if done {
			return true, nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			return false, lastErr
		}
		time.Sleep(pollInterval)
	}
}

// WaitForClient dials socketPath until the daemon answers or timeout elapses.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	ok, err := pollUntil(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		client = c
		return true, nil
	})
	if ok {
		return client, nil
	}
	if err == nil {
		err = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", err)
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if running, pid, err := ProcessInfo(socketPath); err == nil && running {
		return StartResult{AlreadyRunning: true, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{PID: status.PID}, nil
}

// WaitForShutdown waits for the daemon socket to stop answering.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	stopped, _ := pollUntil(timeout, func() (bool, error) {
		running, _, err := ProcessInfo(socketPath)
		return err == nil && !running, err
	})
	if !stopped {
		return fmt.Errorf("daemon did not stop within %s", timeout)
	}
	return nil
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// ReadPID returns the pid recorded in path, or 0 when the file is missing.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", path)
	}
	return pid, nil
}

// ForceKillProcess sends SIGKILL to the daemon and removes its pid file.
func ForceKillProcess(pidPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return pid, nil
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if it is
// still answering after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(socketPath)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		if pid, err = ReadPID(cfg.PIDPath()); err != nil {
			return StopResult{}, err
		}
	}
	if pid <= 0 || pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid")
	}
	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if err := WaitForShutdown(socketPath, gracePeriod); err == nil {
		return result, nil
	}

	killedPID, err := ForceKillProcess(cfg.PIDPath(), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// BuildStatusSnapshot asks the daemon for its status. When none is running it
// builds an offline view from the preference store and fresh preflight
// checks.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*ipc.StatusResponse, error) {
	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		return client.Status()
	}
	if !isDaemonUnavailable(err) {
		return nil, err
	}

	status := &ipc.StatusResponse{
		StatusCounts: map[string]int{},
		StorePath:    prefs.Location(cfg),
		LockPath:     cfg.LockPath(),
	}
	entries, err := ListOffline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		status.StatusCounts[string(entry.Record.EffectiveStatus())]++
	}

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for _, check := range preflight.RunAll(checkCtx, cfg) {
		status.Preflight = append(status.Preflight, ipc.CheckResult{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
	}
	return status, nil
}

// ListOffline reads every pin record straight from the preference store.
// Only valid while no daemon holds the store.
func ListOffline(ctx context.Context, cfg *config.Config) ([]pinstore.Entry, error) {
	store, err := prefs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open preference store: %w", err)
	}
	defer store.Close()
	return pinstore.New(store, logging.NewNop()).ListRecords(ctx, "")
}

// IsDaemonUnavailable reports whether a dial error means nobody is listening.
func IsDaemonUnavailable(err error) bool {
	return isDaemonUnavailable(err)
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
