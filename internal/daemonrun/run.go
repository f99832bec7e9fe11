package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"nftpin/internal/config"
	"nftpin/internal/daemon"
	"nftpin/internal/fileutil"
	"nftpin/internal/ipc"
	"nftpin/internal/logging"
	"nftpin/internal/prefs"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the nftpin daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("nftpin-%s.log", runID))
	sessionID := uuid.NewString()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		SessionID:        sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		logger = withDebugLog(logger, cfg, runID, sessionID)
	}

	if err := ensureCurrentLogPointer(cfg.CurrentLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update nftpin.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "nftpin-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "nftpin-*.log"},
	)
	logEndpointSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := prefs.Open(cfg)
	if err != nil {
		logger.Error("open preference store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("nftpin daemon shutting down")
	return nil
}

func withDebugLog(logger *slog.Logger, cfg *config.Config, runID, sessionID string) *slog.Logger {
	debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to create debug log directory: %v\n", err)
		return logger
	}
	debugLogPath := filepath.Join(debugDir, fmt.Sprintf("nftpin-%s.log", runID))
	debugLogger, err := logging.New(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{debugLogPath},
		ErrorOutputPaths: []string{debugLogPath},
		Development:      true,
		SessionID:        sessionID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", err)
		return logger
	}
	logger = logging.TeeLogger(logger, debugLogger.Handler())
	logger.Info("diagnostic mode enabled",
		logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
		logging.String("debug_log_path", debugLogPath),
	)
	return logger
}

func ensureCurrentLogPointer(current, target string) error {
	if target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return fileutil.WriteAtomic(path, []byte(value), 0o644)
}

func logEndpointSnapshot(logger *slog.Logger, cfg *config.Config) {
	chains := make([]string, 0, len(cfg.Metadata.RPCURLs))
	for chain := range cfg.Metadata.RPCURLs {
		chains = append(chains, chain)
	}
	logger.Info("endpoint snapshot",
		logging.String(logging.FieldEventType, "endpoint_snapshot"),
		logging.String("ipfs_api", cfg.IPFS.APIURL),
		logging.String("ipfs_gateway", cfg.IPFS.GatewayURL),
		logging.Any("rpc_chains", chains),
		logging.String("inventory", cfg.Paths.InventoryFile),
		logging.String("store_backend", cfg.Store.Backend),
		logging.Bool("ntfy_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.Bool("autopin_default", cfg.AutoPin.Enabled),
	)
}
