package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/remindd/internal/alarm"
	"github.com/kalambet/remindd/internal/api"
	"github.com/kalambet/remindd/internal/backup"
	"github.com/kalambet/remindd/internal/config"
	"github.com/kalambet/remindd/internal/lifecycle"
	"github.com/kalambet/remindd/internal/notify"
	"github.com/kalambet/remindd/internal/snooze"
	"github.com/kalambet/remindd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the remindd daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running remindd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show remindd daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "remindd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "remindd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	// Refuse to start twice. The health probe catches a live daemon whose PID
	// file was lost; the PID file catches one whose port changed.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("remindd is already running (PID %d)", pid)
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		printWarning("remindd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	pending, err := notify.OpenPendingSet(filepath.Join(cfg.Storage.DataDir, "notifications.db"))
	if err != nil {
		return fmt.Errorf("opening pending notification set: %w", err)
	}
	defer func() {
		if err := pending.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing pending set: %v\n", err)
		}
	}()

	var notifySvc notify.Service
	switch cfg.Notify.Backend {
	case "log":
		notifySvc = &notify.LogService{}
	default:
		notifySvc = notify.NewDesktopService()
	}
	aggregator := notify.NewAggregator(pending, notifySvc)

	timers := alarm.NewTimerService(cfg.Alarm.ExactEnabled, cfg.InexactWindow())
	defer timers.Stop()
	scheduler := alarm.NewScheduler(timers)

	docs, err := backup.NewDirStore(cfg.Backup.Dir)
	if err != nil {
		return fmt.Errorf("opening backup dir: %w", err)
	}
	backups := backup.NewService(store, docs)
	debouncer := backup.NewDebouncer(cfg.DebounceDelay(), func() {
		if err := backups.WriteAuto(); err != nil {
			slog.Error("auto backup failed", "error", err)
		}
	})
	defer debouncer.Stop()

	presets := snooze.NewManager(store)
	controller := lifecycle.New(store, scheduler, aggregator, debouncer)
	scheduler.SetFireHandler(func(id string) {
		if err := controller.HandleFire(id); err != nil {
			slog.Error("handling fired reminder", "id", id, "error", err)
		}
	})

	// Reconcile stored state with wall clock before accepting traffic: missed
	// fires surface now, future reminders get re-armed.
	if err := controller.Recover(ctx); err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}

	appHandler := api.NewAppHandler(api.AppDeps{
		Control:       controller,
		Reminders:     store,
		Backups:       backups,
		Presets:       presets,
		Alarms:        scheduler,
		Notifications: aggregator,
		Token:         cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// MCP server on stdio so local assistants can manage reminders.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Control:   controller,
		Reminders: store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "remindd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Any backup still waiting out its debounce window is written now, so a
	// mutation right before shutdown is never lost.
	debouncer.Flush()
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("remindd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop remindd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to remindd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Daemon", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Daemon", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Daemon", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		req, _ := http.NewRequest("GET", serverURL+"/status", nil)
		if cfg.API.Token != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.API.Token)
		}
		if statusResp, err := client.Do(req); err == nil {
			var st struct {
				ActiveReminders      int    `json:"active_reminders"`
				PendingNotifications int    `json:"pending_notifications"`
				AlarmsDegraded       bool   `json:"alarms_degraded"`
				NextTrigger          string `json:"next_trigger"`
			}
			if json.NewDecoder(statusResp.Body).Decode(&st) == nil {
				printStatus("Active reminders", "%d", st.ActiveReminders)
				printStatus("Pending notifications", "%d", st.PendingNotifications)
				if st.NextTrigger != "" {
					if at, err := time.Parse(time.RFC3339, st.NextTrigger); err == nil {
						printStatus("Next trigger", "%s", at.Local().Format("2006-01-02 15:04"))
					}
				}
				if st.AlarmsDegraded {
					printWarning("exact alarms unavailable, wakeups may be delayed")
				}
			}
			statusResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Backup dir", "%s", cfg.Backup.Dir)
	return nil
}
